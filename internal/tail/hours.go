// Package tail watches a broker log directory tree for appends to the target
// log file, gates incoming batches on trading hours, and streams parsed
// orders into the pipeline queue.
package tail

import (
	"fmt"
	"time"
)

// HoursConfig configures the trading-hours gate. Weekdays use the broker
// convention: 0 = Monday through 6 = Sunday. Window times are minutes from
// midnight.
type HoursConfig struct {
	AllowedWeekdays []int
	TradingStart    int
	TradingEnd      int
	EnablePremarket bool
	PremarketStart  int
	EnablePostmark  bool
	PostmarketEnd   int
}

// HoursValidator answers whether trading activity is allowed at a given
// wall-clock instant, and why.
type HoursValidator struct {
	allowed    map[time.Weekday]bool
	start, end int
	premarket  bool
	preStart   int
	postmarket bool
	postEnd    int
}

// NewHoursValidator builds a validator from config. Monday-based weekday
// indices are translated to Go's Sunday-based time.Weekday.
func NewHoursValidator(cfg HoursConfig) *HoursValidator {
	allowed := make(map[time.Weekday]bool, len(cfg.AllowedWeekdays))
	for _, d := range cfg.AllowedWeekdays {
		allowed[time.Weekday((d+1)%7)] = true
	}
	return &HoursValidator{
		allowed:    allowed,
		start:      cfg.TradingStart,
		end:        cfg.TradingEnd,
		premarket:  cfg.EnablePremarket,
		preStart:   cfg.PremarketStart,
		postmarket: cfg.EnablePostmark,
		postEnd:    cfg.PostmarketEnd,
	}
}

// Allowed reports whether t falls inside an allowed trading window together
// with a human-readable reason.
func (v *HoursValidator) Allowed(t time.Time) (bool, string) {
	if !v.allowed[t.Weekday()] {
		return false, "Non-trading day: " + t.Weekday().String()
	}

	minute := t.Hour()*60 + t.Minute()

	if v.premarket && v.preStart <= minute && minute < v.start {
		return true, "Pre-market hours"
	}
	if v.start <= minute && minute <= v.end {
		return true, "Regular trading hours"
	}
	if v.postmarket && v.end < minute && minute <= v.postEnd {
		return true, "Post-market hours"
	}

	return false, fmt.Sprintf("Outside trading hours: %s", t.Format("15:04:05"))
}
