// internal/settings/settings.go
package settings

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one entry of the settings store. Value is either a
// JSON-encoded string holding the settings object, the object itself, or a
// bare scalar.
type RawRecord struct {
	ID    string          `json:"id,omitempty"`
	Value json.RawMessage `json:"value"`
}

// CheckinSettings is the parsed check-in configuration.
type CheckinSettings struct {
	CheckoutTimeoutEnabled         bool `json:"checkoutTimeout"`
	CheckoutTimeoutDurationMinutes int  `json:"checkoutTimeoutDuration"`
	WildcardLookupEnabled          bool `json:"wildcardLookupEnabled"`
}

// Timeout returns the inactivity timeout, or zero when none is configured.
func (s *CheckinSettings) Timeout() time.Duration {
	if s == nil || !s.CheckoutTimeoutEnabled || s.CheckoutTimeoutDurationMinutes <= 0 {
		return 0
	}
	return time.Duration(s.CheckoutTimeoutDurationMinutes) * time.Minute
}

// Resolve parses the first record. It returns false when there are no
// records at all. Anything unparseable yields empty settings.
func Resolve(records []RawRecord) (*CheckinSettings, bool) {
	if len(records) == 0 {
		return nil, false
	}

	raw := records[0].Value
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed == nil {
		return &CheckinSettings{}, true
	}

	s := &CheckinSettings{}
	s.CheckoutTimeoutEnabled = parseFlag(parsed["checkoutTimeout"])
	s.WildcardLookupEnabled = parseFlag(parsed["wildcardLookupEnabled"])
	s.CheckoutTimeoutDurationMinutes = parseMinutes(parsed["checkoutTimeoutDuration"])
	return s, true
}

// parseFlag accepts booleans and the strings strconv.ParseBool knows.
// Anything else is false.
func parseFlag(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	b, _ = strconv.ParseBool(strings.TrimSpace(s))
	return b
}

// parseMinutes accepts both numbers and numeric strings.
func parseMinutes(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		n = json.Number(s)
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}
