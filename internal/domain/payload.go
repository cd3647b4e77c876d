package domain

import (
	"net/url"
	"strconv"
	"strings"
)

// AuthTokenKey is the reserved entry name carrying the provider auth token.
// It is serialized verbatim rather than through the numbered key scheme.
const AuthTokenKey = "auth-token"

// Entry is one (name, value) pair of a mapped payload.
type Entry struct {
	Key   string
	Value string
}

// Payload is the provider-facing form of an order: an ordered sequence of
// (name, value) entries. The grouped provider reads it as numbered
// keyN/valueN query parameters; the per-order provider reads the single
// "payload" entry as a text body. Order matters, so it is a slice, not a map.
type Payload []Entry

// Get returns the value for key and whether it is present.
func (p Payload) Get(key string) (string, bool) {
	for _, e := range p {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key, appending the entry if absent.
func (p Payload) Set(key, value string) Payload {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Entry{Key: key, Value: value})
}

// Clone returns a deep copy so per-webhook mutation never aliases.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	copy(out, p)
	return out
}

// EncodeNumbered serializes the payload as a query string in entry order,
// mapping entry i to key<i>=<name>&value<i>=<value>. The auth-token entry is
// emitted as a literal auth-token parameter and does not consume a slot.
func (p Payload) EncodeNumbered() string {
	var b strings.Builder
	n := 0
	for _, e := range p {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		if e.Key == AuthTokenKey {
			b.WriteString(AuthTokenKey)
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(e.Value))
			continue
		}
		n++
		slot := strconv.Itoa(n)
		b.WriteString("key" + slot + "=" + url.QueryEscape(e.Key))
		b.WriteString("&value" + slot + "=" + url.QueryEscape(e.Value))
	}
	return b.String()
}

// Map flattens the payload into a plain map for structured logging. Numbered
// duplicate keys cannot occur because grouped payload key names embed their
// own slot counter.
func (p Payload) Map() map[string]string {
	out := make(map[string]string, len(p))
	for _, e := range p {
		out[e.Key] = e.Value
	}
	return out
}
