package adapter

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iamansin/Stoxxo-Script/internal/cache"
	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// LotSource resolves instrument lot sizes for quantity-to-lots conversion.
type LotSource interface {
	LotSize(index string) (int, error)
}

// AlgoTest sends one plain-text POST per order per webhook. The body is the
// instrument symbol in AlgoTest notation with the order quantity converted
// to lots.
type AlgoTest struct {
	*Base
	hooks WebhookSource
	lots  LotSource
}

// NewAlgoTest builds the AlgoTest adapter.
func NewAlgoTest(opts Options, hooks WebhookSource, lots LotSource, sink Recorder, logger *slog.Logger) *AlgoTest {
	a := &AlgoTest{hooks: hooks, lots: lots}
	opts.Name = string(cache.ProviderAlgotest)
	opts.Method = http.MethodPost
	opts.Grouping = false
	a.Base = newBase(opts, sink, logger)
	a.Base.orderMapper = a
	return a
}

// MapOrder renders the order as "SYMBOL SIDE LOTS" for every configured
// webhook, scaling by the webhook multiplier before converting to lots.
// SYMBOL is INDEX + YYMMDD expiry + C/P + strike, e.g. NIFTY251016C25000.
func (a *AlgoTest) MapOrder(o *domain.Order) ([]Request, error) {
	hooks, err := a.hooks.StrategyWebhooks(o.StrategyTag, cache.ProviderAlgotest)
	if err != nil {
		return nil, fmt.Errorf("algotest: resolve webhooks for %q: %w", o.StrategyTag, err)
	}

	lot, err := a.lots.LotSize(o.Index)
	if err != nil {
		return nil, fmt.Errorf("algotest: lot size for %q: %w", o.Index, err)
	}

	compact := strings.ReplaceAll(o.Expiry, "-", "")
	if len(compact) == 8 {
		compact = compact[2:]
	}
	instrument := o.Index + compact + o.OptionType.Letter() + o.Strike

	reqs := make([]Request, 0, len(hooks))
	for _, h := range hooks {
		qty := o.Quantity * h.Multiplier
		body := fmt.Sprintf("%s %s %d", instrument, o.Side, qty/lot)
		reqs = append(reqs, Request{
			Payload: domain.Payload{{Key: "payload", Value: body}},
			URL:     h.URL,
		})
	}
	return reqs, nil
}
