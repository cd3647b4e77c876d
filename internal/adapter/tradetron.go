package adapter

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	"github.com/iamansin/Stoxxo-Script/internal/cache"
	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// WebhookSource resolves the configured webhooks for a strategy and
// provider.
type WebhookSource interface {
	StrategyWebhooks(strategy string, provider cache.Provider) ([]domain.Webhook, error)
}

// Tradetron packs whole batches into numbered key/value signal payloads and
// fires them at the Tradetron webhook endpoint. It always runs in grouped
// mode: one GET per webhook per batch, all orders of the batch sharing one
// outcome.
type Tradetron struct {
	*Base
	baseURL     string
	hooks       WebhookSource
	counterSize int
	counters    map[string]int
	signal      func() int
}

// NewTradetron builds the Tradetron adapter. baseURL is the shared webhook
// endpoint; counterSize bounds the rotating per-condition slot counter on
// the Tradetron side.
func NewTradetron(opts Options, baseURL string, hooks WebhookSource, counterSize int, sink Recorder, logger *slog.Logger) *Tradetron {
	t := &Tradetron{
		baseURL:     baseURL,
		hooks:       hooks,
		counterSize: counterSize,
		counters:    make(map[string]int),
		signal:      func() int { return rand.Intn(10000) + 1 },
	}
	opts.Name = string(cache.ProviderTradetron)
	opts.Method = http.MethodGet
	opts.Grouping = true
	t.Base = newBase(opts, sink, logger)
	t.Base.batchMapper = t
	return t
}

// MapBatch builds one payload per configured webhook. Every order in the
// batch contributes one slot group: a condition key (INDEX_SIDE_OPT suffixed
// with the rotating counter) carrying the batch signal value, plus quantity,
// strike and expiry keys under the same counter. Webhook auth tokens are
// prepended per payload and quantity values are scaled by the webhook
// multiplier.
func (t *Tradetron) MapBatch(batch domain.Batch) ([]domain.Payload, string, error) {
	if len(batch) == 0 {
		return nil, "", fmt.Errorf("tradetron: empty batch")
	}

	hooks, err := t.hooks.StrategyWebhooks(batch[0].StrategyTag, cache.ProviderTradetron)
	if err != nil {
		return nil, "", fmt.Errorf("tradetron: resolve webhooks for %q: %w", batch[0].StrategyTag, err)
	}

	// One signal value per batch; the provider reads the same R from every
	// condition slot.
	r := strconv.Itoa(t.signal())

	base := domain.Payload{}
	for _, o := range batch {
		opt := o.OptionType.Code()
		condition := fmt.Sprintf("%s_%s_%s", o.Index, o.Side, opt)
		k := t.nextCounter(condition)

		side := o.Side.Cap()
		base = base.Set(condition+strconv.Itoa(k), r)
		base = base.Set(fmt.Sprintf("%s_Quantity_%s_%s%d", o.Index, opt, side, k), strconv.Itoa(o.Quantity))
		base = base.Set(fmt.Sprintf("%s_Strike_%s_%s%d", o.Index, opt, side, k), o.Strike)
		base = base.Set(fmt.Sprintf("%s_Expiry_%s_%s%d", o.Index, opt, side, k), o.Expiry)
	}

	payloads := make([]domain.Payload, 0, len(hooks))
	for _, h := range hooks {
		p := domain.Payload{{Key: domain.AuthTokenKey, Value: h.URL}}
		p = append(p, base.Clone()...)
		if h.Multiplier > 1 {
			scaleQuantities(p, h.Multiplier)
		}
		payloads = append(payloads, p)
	}
	return payloads, t.baseURL, nil
}

// nextCounter advances the rotating counter for a condition key, wrapping
// back to 1 past counterSize.
func (t *Tradetron) nextCounter(condition string) int {
	k := t.counters[condition] + 1
	if k > t.counterSize {
		k = 1
	}
	t.counters[condition] = k
	return k
}

func scaleQuantities(p domain.Payload, mult int) {
	for i := range p {
		if strings.Contains(p[i].Key, "_Quantity_") {
			if q, err := strconv.Atoi(p[i].Value); err == nil {
				p[i].Value = strconv.Itoa(q * mult)
			}
		}
	}
}
