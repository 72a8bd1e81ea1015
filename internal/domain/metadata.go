package domain

import (
	"encoding/json"
	"maps"
	"strconv"
)

// Metadata is the provider-defined asset description. Only the fields the
// lifecycle validates get typed accessors.
type Metadata map[string]any

func (m Metadata) Duration() float64 { return m.Number("duration") }
func (m Metadata) Width() float64    { return m.Number("width") }
func (m Metadata) Height() float64   { return m.Number("height") }
func (m Metadata) Bytes() float64    { return m.Number("bytes") }

func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Complete reports whether duration, resolution and size are all positive.
func (m Metadata) Complete() bool {
	return m.Duration() > 0 && m.Width() > 0 && m.Height() > 0 && m.Bytes() > 0
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Number reads key as a float64, accepting any JSON number representation.
// Missing or non-numeric values read as zero.
func (m Metadata) Number(key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}
