// Package domain defines the canonical order record produced by the parser
// and mutated by the dispatcher/adapters, along with the enums and payload
// types shared across the pipeline.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Side indicates whether this is a buy or sell.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Cap returns the capitalized form used in grouped payload key names
// ("Buy" / "Sell").
func (s Side) Cap() string {
	if s == SideSell {
		return "Sell"
	}
	return "Buy"
}

// Exchange identifies the venue segment the instrument trades on.
type Exchange string

const (
	ExchangeNFO Exchange = "NFO"
	ExchangeBFO Exchange = "BFO"
)

// Product is the broker product type.
type Product string

const (
	ProductMIS  Product = "MIS"
	ProductNRML Product = "NRML"
)

// OptionType distinguishes calls from puts. The numeric values are part of
// the provider wire contract (CALL=1, PUT=0).
type OptionType int

const (
	OptionPut  OptionType = 0
	OptionCall OptionType = 1
)

// Code returns the two-letter option code ("CE" / "PE").
func (o OptionType) Code() string {
	if o == OptionCall {
		return "CE"
	}
	return "PE"
}

// Letter returns the single-letter option code ("C" / "P") used in compact
// instrument names.
func (o OptionType) Letter() string {
	if o == OptionCall {
		return "C"
	}
	return "P"
}

// OrderStatus tracks the order lifecycle. Transitions are monotonic: PENDING
// moves to exactly one of SENT, FAILED, or SKIPPED and never back.
type OrderStatus string

const (
	StatusPending OrderStatus = "pending"
	StatusSent    OrderStatus = "sent"
	StatusFailed  OrderStatus = "failed"
	StatusSkipped OrderStatus = "skipped"
)

// Order is the canonical trade intent extracted from one broker log line.
type Order struct {
	OrderID     string
	StrategyTag string
	Index       string
	Strike      string
	Quantity    int
	Expiry      string // normalized YYYY-MM-DD
	Side        Side
	Exchange    Exchange
	Product     Product
	OptionType  OptionType

	ActualTime time.Time // HH:MM:SS:mmm prefix reconciled to a full date
	ParseTime  time.Time
	SentTime   *time.Time

	StoxxoOrder     string // original log line verbatim
	ProcessingGapMs int64  // parse_time - actual_time

	MappedOrder  Payload
	AdapterName  string
	Status       OrderStatus
	ErrorMessage string
}

// Clone returns an independent copy of the order. Every adapter mutates the
// status fields of the orders it is handed, so concurrent adapters must each
// receive their own copy.
func (o *Order) Clone() *Order {
	c := *o
	if o.SentTime != nil {
		t := *o.SentTime
		c.SentTime = &t
	}
	if o.MappedOrder != nil {
		c.MappedOrder = o.MappedOrder.Clone()
	}
	return &c
}

// NewOrderID returns a freshly generated unique order id, used when the log
// line carries no Leg ID.
func NewOrderID() string {
	return uuid.NewString()
}

// PipelineLatencyMs returns sent_time - parse_time in milliseconds. The
// second return is false until the order has been sent.
func (o *Order) PipelineLatencyMs() (int64, bool) {
	if o.SentTime == nil {
		return 0, false
	}
	return o.SentTime.Sub(o.ParseTime).Milliseconds(), true
}

// EndToEndLatencyMs returns sent_time - actual_time in milliseconds.
func (o *Order) EndToEndLatencyMs() (int64, bool) {
	if o.SentTime == nil {
		return 0, false
	}
	return o.SentTime.Sub(o.ActualTime).Milliseconds(), true
}

// Summary returns the six identity fields plus enums, in the shape the log
// sink embeds as order_summary.
func (o *Order) Summary() map[string]any {
	return map[string]any{
		"order_id":    o.OrderID,
		"strategy":    o.StrategyTag,
		"index":       o.Index,
		"strike":      o.Strike,
		"quantity":    o.Quantity,
		"expiry":      o.Expiry,
		"order_type":  string(o.Side),
		"exchange":    string(o.Exchange),
		"product":     string(o.Product),
		"option_type": int(o.OptionType),
	}
}

// Batch is an ordered non-empty group of orders produced from one filesystem
// notification and delivered atomically through the queue.
type Batch []*Order

// Clone deep-copies every order in the batch.
func (b Batch) Clone() Batch {
	c := make(Batch, len(b))
	for i, o := range b {
		c[i] = o.Clone()
	}
	return c
}

// Webhook is one provider destination: a URL (or auth token, depending on the
// provider) and a quantity multiplier applied per destination.
type Webhook struct {
	URL        string `yaml:"url"`
	Multiplier int    `yaml:"multiplier"`
}
