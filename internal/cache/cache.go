// Package cache provides the read-mostly in-memory lookup tables the pipeline
// consults on every order: strategy webhooks and activation flags, index
// signal values, lot sizes, and monthly expiry dates. The tables are loaded
// once at startup from a YAML document and are only mutated by an explicit
// Reload, which must not run while the pipeline is active.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// Provider names a webhook destination family. Each strategy carries one URL
// list per provider.
type Provider string

const (
	ProviderTradetron Provider = "tradetron"
	ProviderAlgotest  Provider = "algotest"
)

// document is the on-disk YAML shape.
type document struct {
	Strategies []struct {
		Name          string           `yaml:"name"`
		Active        bool             `yaml:"active"`
		TradetronURLs []domain.Webhook `yaml:"tradetron_urls"`
		AlgotestURLs  []domain.Webhook `yaml:"algotest_urls"`
	} `yaml:"strategies"`
	IndexMappings map[string]int               `yaml:"index_mappings"`
	LotSizes      map[string]int               `yaml:"lot_sizes"`
	MonthlyExpiry map[string]map[string]string `yaml:"monthly_expiry"`
}

type strategyKey struct {
	strategy string
	provider Provider
}

// Cache is the ownership root for all lookup maps. Readers receive values
// copied out of the maps, never references into them.
type Cache struct {
	path   string
	logger *slog.Logger

	webhooks      map[strategyKey][]domain.Webhook
	active        map[string]bool
	indexValues   map[string]int
	lotSizes      map[string]int
	monthlyExpiry map[string]map[string]string
}

// Load reads the YAML document at path and builds the cache. A load failure
// is fatal to the process; callers must not continue with a partial cache.
func Load(path string, logger *slog.Logger) (*Cache, error) {
	c := &Cache{
		path:   path,
		logger: logger.With(slog.String("component", "cache")),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) load() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", c.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("cache: parse %s: %w", c.path, err)
	}

	webhooks := make(map[strategyKey][]domain.Webhook)
	active := make(map[string]bool, len(doc.Strategies))
	for _, s := range doc.Strategies {
		active[s.Name] = s.Active
		if len(s.TradetronURLs) > 0 {
			webhooks[strategyKey{s.Name, ProviderTradetron}] = normalizeWebhooks(s.TradetronURLs)
		}
		if len(s.AlgotestURLs) > 0 {
			webhooks[strategyKey{s.Name, ProviderAlgotest}] = normalizeWebhooks(s.AlgotestURLs)
		}
	}

	monthly := make(map[string]map[string]string, len(doc.MonthlyExpiry))
	for index, months := range doc.MonthlyExpiry {
		m := make(map[string]string, len(months))
		for month, date := range months {
			m[strings.ToUpper(month)] = date
		}
		monthly[strings.ToUpper(index)] = m
	}

	c.webhooks = webhooks
	c.active = active
	c.indexValues = doc.IndexMappings
	c.lotSizes = doc.LotSizes
	c.monthlyExpiry = monthly

	c.logger.Info("cache loaded",
		slog.String("path", c.path),
		slog.Int("strategies", len(active)),
		slog.Int("lot_sizes", len(c.lotSizes)),
		slog.Int("index_mappings", len(c.indexValues)),
	)
	return nil
}

// normalizeWebhooks clamps missing multipliers up to 1 so downstream quantity
// math never multiplies by zero.
func normalizeWebhooks(in []domain.Webhook) []domain.Webhook {
	out := make([]domain.Webhook, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Multiplier < 1 {
			out[i].Multiplier = 1
		}
	}
	return out
}

// Reload clears every table and re-reads the YAML document. It must only be
// called while the pipeline is quiesced.
func (c *Cache) Reload() error {
	return c.load()
}

// StrategyActive reports whether orders for the given strategy tag should be
// processed. Unknown strategies are inactive.
func (c *Cache) StrategyActive(strategy string) bool {
	return c.active[strategy]
}

// StrategyWebhooks returns the webhook list configured for a strategy and
// provider. The returned slice is a copy.
func (c *Cache) StrategyWebhooks(strategy string, provider Provider) ([]domain.Webhook, error) {
	hooks, ok := c.webhooks[strategyKey{strategy, provider}]
	if !ok || len(hooks) == 0 {
		return nil, fmt.Errorf("cache: no %s webhooks for strategy %q: %w", provider, strategy, domain.ErrCacheMiss)
	}
	out := make([]domain.Webhook, len(hooks))
	copy(out, hooks)
	return out, nil
}

// LotSize returns the configured lot size for an index.
func (c *Cache) LotSize(index string) (int, error) {
	size, ok := c.lotSizes[index]
	if !ok || size <= 0 {
		return 0, fmt.Errorf("cache: no lot size for index %q: %w", index, domain.ErrCacheMiss)
	}
	return size, nil
}

// SignedIndexValue returns the numeric signal value for an index, negated for
// sells. The sign convention comes from the grouped provider's condition
// builder.
func (c *Cache) SignedIndexValue(index string, side domain.Side) (int, error) {
	v, ok := c.indexValues[index]
	if !ok {
		return 0, fmt.Errorf("cache: no index mapping for %q: %w", index, domain.ErrCacheMiss)
	}
	if side == domain.SideSell {
		return -v, nil
	}
	return v, nil
}

// MonthlyExpiry resolves a month-only expiry (e.g. "OCT") for an index into a
// concrete YYYY-MM-DD date.
func (c *Cache) MonthlyExpiry(index, month string) (string, error) {
	months, ok := c.monthlyExpiry[strings.ToUpper(index)]
	if ok {
		if date, ok := months[strings.ToUpper(month)]; ok {
			return date, nil
		}
	}
	return "", fmt.Errorf("cache: no monthly expiry for %s %s: %w", index, month, domain.ErrCacheMiss)
}
