package domain

import (
	"encoding/json"
	"math"
)

// maxExactInt is the largest integer a float64 holds without loss (2^53).
const maxExactInt = 1 << 53

// Normalize puts v in the form it takes after a snapshot round trip, so a
// restored run sees the same types as one that never left memory. Whole
// numbers become int, other numbers float64. Maps and slices of any are
// normalized recursively; every other value is returned as is.
func Normalize(v any) any {
	switch t := v.(type) {
	case int:
		return t
	case int8:
		return int(t)
	case int16:
		return int(t)
	case int32:
		return int(t)
	case int64:
		return normalizeInt64(t)
	case uint:
		return normalizeUint64(uint64(t))
	case uint8:
		return int(t)
	case uint16:
		return int(t)
	case uint32:
		return int(t)
	case uint64:
		return normalizeUint64(t)
	case float32:
		return normalizeFloat(float64(t))
	case float64:
		return normalizeFloat(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return normalizeInt64(n)
		}
		if f, err := t.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return t.String()
	case map[string]any:
		return NormalizeMap(t)
	case Output:
		return Output(NormalizeMap(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Normalize(item)
		}
		return out
	default:
		return v
	}
}

// NormalizeMap returns a copy of m with every value normalized.
func NormalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

func normalizeInt64(n int64) any {
	if n > math.MaxInt || n < math.MinInt {
		return float64(n)
	}
	return int(n)
}

func normalizeUint64(n uint64) any {
	if n > math.MaxInt {
		return float64(n)
	}
	return int(n)
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxExactInt ||
		f > math.MaxInt || f < math.MinInt {
		return f
	}
	return int(f)
}
