package cache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

const testDoc = `
strategies:
  - name: S1
    active: true
    tradetron_urls:
      - url: tok-1
        multiplier: 2
      - url: tok-2
    algotest_urls:
      - url: https://hook.example/a
        multiplier: 1
  - name: S2
    active: false

index_mappings:
  NIFTY: 1
  BANKNIFTY: 2

lot_sizes:
  NIFTY: 75

monthly_expiry:
  nifty:
    oct: "2025-10-28"
`

func writeDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func loadTestCache(t *testing.T) *Cache {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := Load(writeDoc(t, testDoc), logger)
	require.NoError(t, err)
	return c
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), logger)
	assert.Error(t, err)
}

func TestLoadFailsOnMalformedYAML(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Load(writeDoc(t, "strategies: [unterminated"), logger)
	assert.Error(t, err)
}

func TestStrategyActive(t *testing.T) {
	c := loadTestCache(t)
	assert.True(t, c.StrategyActive("S1"))
	assert.False(t, c.StrategyActive("S2"))
	assert.False(t, c.StrategyActive("UNKNOWN"))
}

func TestStrategyWebhooks(t *testing.T) {
	c := loadTestCache(t)

	hooks, err := c.StrategyWebhooks("S1", ProviderTradetron)
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, domain.Webhook{URL: "tok-1", Multiplier: 2}, hooks[0])
	// Missing multiplier is clamped to 1.
	assert.Equal(t, domain.Webhook{URL: "tok-2", Multiplier: 1}, hooks[1])

	hooks, err = c.StrategyWebhooks("S1", ProviderAlgotest)
	require.NoError(t, err)
	assert.Len(t, hooks, 1)

	_, err = c.StrategyWebhooks("S2", ProviderTradetron)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	_, err = c.StrategyWebhooks("UNKNOWN", ProviderAlgotest)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestStrategyWebhooksReturnsCopy(t *testing.T) {
	c := loadTestCache(t)

	hooks, err := c.StrategyWebhooks("S1", ProviderTradetron)
	require.NoError(t, err)
	hooks[0].Multiplier = 99

	again, err := c.StrategyWebhooks("S1", ProviderTradetron)
	require.NoError(t, err)
	assert.Equal(t, 2, again[0].Multiplier)
}

func TestLotSize(t *testing.T) {
	c := loadTestCache(t)

	size, err := c.LotSize("NIFTY")
	require.NoError(t, err)
	assert.Equal(t, 75, size)

	_, err = c.LotSize("BANKNIFTY")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSignedIndexValue(t *testing.T) {
	c := loadTestCache(t)

	v, err := c.SignedIndexValue("BANKNIFTY", domain.SideBuy)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = c.SignedIndexValue("BANKNIFTY", domain.SideSell)
	require.NoError(t, err)
	assert.Equal(t, -2, v)

	_, err = c.SignedIndexValue("SENSEX", domain.SideBuy)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestMonthlyExpiryCaseInsensitive(t *testing.T) {
	c := loadTestCache(t)

	date, err := c.MonthlyExpiry("NIFTY", "OCT")
	require.NoError(t, err)
	assert.Equal(t, "2025-10-28", date)

	date, err = c.MonthlyExpiry("nifty", "Oct")
	require.NoError(t, err)
	assert.Equal(t, "2025-10-28", date)

	_, err = c.MonthlyExpiry("NIFTY", "NOV")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestReloadPicksUpChanges(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := writeDoc(t, testDoc)
	c, err := Load(path, logger)
	require.NoError(t, err)
	require.True(t, c.StrategyActive("S1"))

	updated := `
strategies:
  - name: S1
    active: false
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, c.Reload())
	assert.False(t, c.StrategyActive("S1"))
}
