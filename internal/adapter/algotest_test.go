package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

type stubLots struct {
	sizes map[string]int
}

func (s *stubLots) LotSize(index string) (int, error) {
	if size, ok := s.sizes[index]; ok {
		return size, nil
	}
	return 0, domain.ErrCacheMiss
}

func newTestAlgoTest(t *testing.T, hooks ...domain.Webhook) *AlgoTest {
	t.Helper()
	return NewAlgoTest(Options{Timeout: time.Second},
		&stubHooks{hooks: hooks},
		&stubLots{sizes: map[string]int{"NIFTY": 75}},
		&captureSink{}, discardLogger())
}

func TestAlgoTestMapOrderBody(t *testing.T) {
	a := newTestAlgoTest(t, domain.Webhook{URL: "https://hook.example/u", Multiplier: 2})

	o := niftyOrder("L1", "25000", 150)
	reqs, err := a.MapOrder(o)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	body, ok := reqs[0].Payload.Get("payload")
	require.True(t, ok)
	assert.Equal(t, "NIFTY251016C25000 BUY 4", body)
	assert.Equal(t, "https://hook.example/u", reqs[0].URL)
}

func TestAlgoTestMapOrderSellPut(t *testing.T) {
	a := newTestAlgoTest(t, domain.Webhook{URL: "U", Multiplier: 1})

	o := niftyOrder("L1", "24500", 75)
	o.Side = domain.SideSell
	o.OptionType = domain.OptionPut

	reqs, err := a.MapOrder(o)
	require.NoError(t, err)

	body, _ := reqs[0].Payload.Get("payload")
	assert.Equal(t, "NIFTY251016P24500 SELL 1", body)
}

// lots = floor(quantity * multiplier / lot_size).
func TestAlgoTestLotMath(t *testing.T) {
	tests := []struct {
		qty, mult int
		want      string
	}{
		{75, 1, "1"},
		{150, 2, "4"},
		{100, 1, "1"},  // 100/75 floors to 1
		{74, 1, "0"},   // below one lot
		{225, 3, "9"},
	}
	for _, tt := range tests {
		a := newTestAlgoTest(t, domain.Webhook{URL: "U", Multiplier: tt.mult})
		reqs, err := a.MapOrder(niftyOrder("x", "25000", tt.qty))
		require.NoError(t, err)
		body, _ := reqs[0].Payload.Get("payload")
		assert.Equal(t, "NIFTY251016C25000 BUY "+tt.want, body, "qty %d mult %d", tt.qty, tt.mult)
	}
}

func TestAlgoTestMapOrderPerWebhook(t *testing.T) {
	a := newTestAlgoTest(t,
		domain.Webhook{URL: "U1", Multiplier: 1},
		domain.Webhook{URL: "U2", Multiplier: 2},
	)

	reqs, err := a.MapOrder(niftyOrder("x", "25000", 150))
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	b1, _ := reqs[0].Payload.Get("payload")
	b2, _ := reqs[1].Payload.Get("payload")
	assert.Equal(t, "NIFTY251016C25000 BUY 2", b1)
	assert.Equal(t, "NIFTY251016C25000 BUY 4", b2)
}

func TestAlgoTestMissingLotSize(t *testing.T) {
	a := newTestAlgoTest(t, domain.Webhook{URL: "U", Multiplier: 1})

	o := niftyOrder("x", "51000", 30)
	o.Index = "BANKNIFTY"
	_, err := a.MapOrder(o)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestAlgoTestMissingWebhooks(t *testing.T) {
	a := NewAlgoTest(Options{Timeout: time.Second},
		&stubHooks{err: domain.ErrCacheMiss},
		&stubLots{sizes: map[string]int{"NIFTY": 75}},
		&captureSink{}, discardLogger())

	_, err := a.MapOrder(niftyOrder("x", "25000", 75))
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}
