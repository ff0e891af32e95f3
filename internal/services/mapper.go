package services

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Canonical signal fields
const (
	FieldDirection  = "direction"
	FieldSymbol     = "symbol"
	FieldPrice      = "price"
	FieldTime       = "time"
	FieldInterval   = "interval"
	FieldExternalID = "external_id"
)

// defaultMapping is used for any canonical field the credential does not map
var defaultMapping = map[string]string{
	FieldDirection:  "signal",
	FieldSymbol:     "symbol",
	FieldPrice:      "price",
	FieldTime:       "time",
	FieldInterval:   "interval",
	FieldExternalID: "alertId",
}

// SignalFields is the canonical field set extracted from an inbound payload.
// HasPrice distinguishes a parsed zero price from an unresolvable one.
type SignalFields struct {
	Direction  string
	Symbol     string
	Price      float64
	HasPrice   bool
	Time       time.Time
	Interval   string
	ExternalID string
}

// FieldMapper resolves canonical signal fields from an arbitrary JSON or
// form-encoded body using a per-credential path mapping (dot notation for
// nested objects, e.g. "data.ticker") plus fallback defaults. It is pure:
// no I/O, no shared state beyond the clock.
type FieldMapper struct {
	mapping  map[string]string
	defaults map[string]string
	now      func() time.Time
}

// NewFieldMapper creates a mapper from a credential's configured mapping and
// default values; either may be nil
func NewFieldMapper(mapping, defaults map[string]string) *FieldMapper {
	return &FieldMapper{
		mapping:  mapping,
		defaults: defaults,
		now:      time.Now,
	}
}

// EffectiveMapping returns the mapping actually in use, with the hardcoded
// fallbacks filled in for unmapped fields. Echoed back on validation errors.
func (m *FieldMapper) EffectiveMapping() map[string]string {
	out := make(map[string]string, len(defaultMapping))
	for field, path := range defaultMapping {
		out[field] = path
	}
	for field, path := range m.mapping {
		if path != "" {
			out[field] = path
		}
	}
	return out
}

// Resolve extracts the canonical field set from a raw body. Direction,
// symbol and a parseable price are mandatory; the returned error lists
// exactly which fields could not be resolved and the mapping in effect.
func (m *FieldMapper) Resolve(body []byte) (*SignalFields, error) {
	doc := normalizeBody(body)
	fields := &SignalFields{}

	fields.Direction = m.resolveString(doc, FieldDirection)
	fields.Symbol = m.resolveString(doc, FieldSymbol)
	fields.Interval = m.resolveString(doc, FieldInterval)
	fields.ExternalID = m.resolveString(doc, FieldExternalID)

	if raw := m.resolveRaw(doc, FieldPrice); raw != "" {
		if price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			fields.Price = price
			fields.HasPrice = true
		}
	}

	if raw := m.resolveRaw(doc, FieldTime); raw != "" {
		if t, ok := ParseSignalTime(raw); ok {
			fields.Time = t
		}
	}
	if fields.Time.IsZero() {
		fields.Time = m.now()
	}

	var missing []string
	if fields.Direction == "" {
		missing = append(missing, FieldDirection)
	}
	if fields.Symbol == "" {
		missing = append(missing, FieldSymbol)
	}
	if !fields.HasPrice {
		missing = append(missing, FieldPrice)
	}
	if len(missing) > 0 {
		return nil, NewServiceError(http.StatusBadRequest, "unresolved_fields",
			"required signal fields could not be resolved", ErrMissingFields).
			WithDetail(map[string]interface{}{
				"missing": missing,
				"mapping": m.EffectiveMapping(),
			})
	}

	return fields, nil
}

func (m *FieldMapper) path(field string) string {
	if p, ok := m.mapping[field]; ok && p != "" {
		return p
	}
	return defaultMapping[field]
}

// resolveRaw walks the configured path against the body, falling back to the
// credential's default value when the path yields nothing
func (m *FieldMapper) resolveRaw(doc []byte, field string) string {
	if res := gjson.GetBytes(doc, m.path(field)); res.Exists() {
		return res.String()
	}
	if def, ok := m.defaults[field]; ok {
		return def
	}
	return ""
}

func (m *FieldMapper) resolveString(doc []byte, field string) string {
	return strings.TrimSpace(m.resolveRaw(doc, field))
}

// normalizeBody turns form-encoded and JSON-in-text payloads into a JSON
// object; valid JSON objects pass through untouched
func normalizeBody(body []byte) []byte {
	if gjson.ValidBytes(body) && gjson.ParseBytes(body).IsObject() {
		return body
	}
	s := strings.TrimSpace(string(body))

	// form-encoded bodies become a flat object
	if strings.Contains(s, "=") && !strings.ContainsAny(s, "{}") {
		if vals, err := url.ParseQuery(s); err == nil && len(vals) > 0 {
			flat := make(map[string]string, len(vals))
			for k, v := range vals {
				if len(v) > 0 {
					flat[k] = v[0]
				}
			}
			if b, err := json.Marshal(flat); err == nil {
				return b
			}
		}
	}

	// plain text with a JSON object embedded in it: unwrap once
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			if cand := s[i : j+1]; gjson.Valid(cand) {
				return []byte(cand)
			}
		}
	}

	return body
}

// ParseSignalTime accepts RFC3339, a plain datetime, and unix seconds or
// milliseconds
func ParseSignalTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t, true
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	return time.Time{}, false
}
