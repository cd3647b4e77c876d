// Package parse turns raw broker log lines into validated canonical orders.
// Rejections are normal control flow, not errors: most lines in the watched
// file are noise and are dropped silently.
package parse

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// relevantKeyword marks the only log messages that describe an order.
const relevantKeyword = "Initiating Order Placement"

// StrategyCache is the subset of the variable cache the parser consults.
type StrategyCache interface {
	StrategyActive(strategy string) bool
	MonthlyExpiry(index, month string) (string, error)
}

// symbolRe matches "INDEX <EXPIRY> <STRIKE> <OPT>" where EXPIRY is one of the
// three supported dialects. Multiple spaces are tolerated and matching is
// case-insensitive.
var symbolRe = regexp.MustCompile(`(?i)^\s*([A-Z]+)\s+(?:(\d{1,2}(?:ST|ND|RD|TH)?)\s+([A-Z]{3})(?:\s*(\d{2}))?|(\d{1,2}[A-Z]{3}\d{2})|([A-Z]{3})(\d{2})?)\s+(\d+)\s+(CE|PE|C|P)\s*$`)

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Parser validates log lines against quantity bounds and strategy activation
// and decodes the composite symbol string.
type Parser struct {
	cache  StrategyCache
	minQty int
	maxQty int
	logger *slog.Logger
	now    func() time.Time
}

// NewParser creates a Parser with the given quantity bounds.
func NewParser(cache StrategyCache, minQty, maxQty int, logger *slog.Logger) *Parser {
	return &Parser{
		cache:  cache,
		minQty: minQty,
		maxQty: maxQty,
		logger: logger.With(slog.String("component", "parser")),
		now:    time.Now,
	}
}

// ParseLine processes one raw CSV line. It returns the validated order and
// true, or nil and false when the line is rejected.
func (p *Parser) ParseLine(line string) (*domain.Order, bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	parts := strings.Split(trimmed, ",")
	if len(parts) < 6 || parts[1] != "TRADING" || !strings.Contains(parts[2], relevantKeyword) {
		return nil, false
	}

	strategy := parts[3]
	if !p.cache.StrategyActive(strategy) {
		p.logger.Warn("strategy not active, dropping order",
			slog.String("strategy", strategy),
			slog.String("details", parts[2]),
		)
		return nil, false
	}

	details := parseDetails(parts[2])

	symbol, ok := details["Symbol"]
	if !ok {
		p.logger.Error("order line missing Symbol attribute", slog.String("line", trimmed))
		return nil, false
	}
	index, expiry, strike, optType, err := p.parseSymbol(symbol)
	if err != nil {
		p.logger.Error("symbol parse failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	qty, err := strconv.Atoi(strings.TrimSpace(details["Qty"]))
	if err != nil || qty < p.minQty || qty > p.maxQty {
		p.logger.Error("invalid quantity",
			slog.String("qty", details["Qty"]),
			slog.Int("min", p.minQty),
			slog.Int("max", p.maxQty),
		)
		return nil, false
	}

	side := domain.SideBuy
	if details["Txn"] == "SELL" {
		side = domain.SideSell
	}

	orderID := details["Leg ID"]
	if orderID == "" {
		orderID = domain.NewOrderID()
	}

	now := p.now()
	actualTime := p.parseClock(parts[0], now)

	return &domain.Order{
		OrderID:         orderID,
		StrategyTag:     strategy,
		Index:           index,
		Strike:          strike,
		Quantity:        qty,
		Expiry:          expiry,
		Side:            side,
		Exchange:        domain.ExchangeNFO,
		Product:         domain.ProductNRML,
		OptionType:      optType,
		ActualTime:      actualTime,
		ParseTime:       now,
		StoxxoOrder:     trimmed,
		ProcessingGapMs: now.Sub(actualTime).Milliseconds(),
		Status:          domain.StatusPending,
	}, true
}

// parseDetails splits the free-text order description into its "key: value"
// attributes.
func parseDetails(text string) map[string]string {
	out := make(map[string]string)
	for _, item := range strings.Split(text, ";") {
		item = strings.TrimSpace(item)
		key, value, ok := strings.Cut(item, ": ")
		if !ok {
			continue
		}
		out[key] = strings.Trim(value, " ;")
	}
	return out
}

// parseSymbol decodes "INDEX <EXPIRY> <STRIKE> <OPT>" and normalizes the
// expiry to YYYY-MM-DD.
func (p *Parser) parseSymbol(symbol string) (index, expiry, strike string, optType domain.OptionType, err error) {
	m := symbolRe.FindStringSubmatch(strings.TrimSpace(symbol))
	if m == nil {
		return "", "", "", 0, domain.ErrInvalidSymbol
	}

	index = strings.ToUpper(m[1])

	var expiryRaw string
	switch {
	case m[5] != "": // compact DDMMMYY
		expiryRaw = strings.ToUpper(m[5])
	case m[2] != "" && m[3] != "": // day + month (+ optional year)
		expiryRaw = strings.ToUpper(m[2]) + " " + strings.ToUpper(m[3])
		if m[4] != "" {
			expiryRaw += " " + m[4]
		}
	default: // month-only, optionally with trailing year
		expiryRaw = strings.ToUpper(m[6]) + m[7]
	}

	expiry, err = p.formatExpiry(expiryRaw, index)
	if err != nil {
		return "", "", "", 0, err
	}

	strike = m[8]
	opt := strings.ToUpper(m[9])
	optType = domain.OptionPut
	if opt == "CE" || opt == "C" {
		optType = domain.OptionCall
	}
	return index, expiry, strike, optType, nil
}

// formatExpiry resolves the three expiry dialects to a YYYY-MM-DD date.
// Month-only forms consult the cache's monthly expiry table for the index.
func (p *Parser) formatExpiry(raw, index string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	now := p.now()

	// Compact form: 16OCT25.
	if len(s) == 7 && isDigit(s[0]) && isDigit(s[1]) {
		day, _ := strconv.Atoi(s[:2])
		month, ok := months[s[2:5]]
		year, err := strconv.Atoi(s[5:7])
		if ok && err == nil {
			if date, valid := makeDate(2000+year, month, day); valid {
				return date, nil
			}
		}
	}

	// Day + month (+ optional 2-digit year): "7TH OCT", "05 NOV 25".
	parts := strings.Fields(s)
	if len(parts) >= 2 {
		day, dayErr := strconv.Atoi(strings.TrimRight(parts[0], "STNDRH"))
		month, ok := months[parts[1]]
		if dayErr == nil && ok {
			year := now.Year()
			if len(parts) == 3 {
				if y, err := strconv.Atoi(parts[2]); err == nil {
					year = 2000 + y
				}
			}
			if date, valid := makeDate(year, month, day); valid {
				return date, nil
			}
		}
	}

	// Month-only: "OCT", "OCT25".
	monthStr := s
	if len(s) > 3 && isAlpha(s[:3]) {
		monthStr = s[:3]
	}
	if _, ok := months[monthStr]; ok {
		return p.cache.MonthlyExpiry(index, monthStr)
	}

	return "", domain.ErrInvalidExpiry
}

// makeDate formats a calendar date, rejecting day values that time.Date would
// silently normalize into the next month.
func makeDate(year int, month time.Month, day int) (string, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// parseClock parses the HH:MM:SS:mmm line prefix onto today's date, then
// reconciles against the wall clock: a future time belongs to yesterday, and
// a time trailing by more than 12 hours belongs to tomorrow. On malformed
// input it falls back to now.
func (p *Parser) parseClock(ts string, now time.Time) time.Time {
	fields := strings.Split(ts, ":")
	if len(fields) != 4 {
		p.logger.Error("malformed timestamp", slog.String("timestamp", ts))
		return now
	}
	nums := make([]int, 4)
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			p.logger.Error("malformed timestamp", slog.String("timestamp", ts))
			return now
		}
		nums[i] = n
	}

	dt := time.Date(now.Year(), now.Month(), now.Day(),
		nums[0], nums[1], nums[2], nums[3]*int(time.Millisecond), now.Location())

	if dt.After(now) {
		dt = dt.AddDate(0, 0, -1)
	} else if now.Sub(dt) > 12*time.Hour {
		dt = dt.AddDate(0, 0, 1)
	}
	return dt
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
