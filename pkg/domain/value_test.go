package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/chainflow/pkg/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 3, 3},
		{"int64", int64(-4), -4},
		{"uint8", uint8(5), 5},
		{"whole float", float64(6), 6},
		{"float32", float32(1.5), 1.5},
		{"fraction", 0.25, 0.25},
		{"beyond exact range", float64(1 << 60), float64(1 << 60)},
		{"infinity", math.Inf(1), math.Inf(1)},
		{"json number", json.Number("12"), 12},
		{"json float", json.Number("1.5"), 1.5},
		{"string", "7", "7"},
		{"nested", map[string]any{"a": []any{float64(1), map[string]any{"b": int32(2)}}},
			map[string]any{"a": []any{1, map[string]any{"b": 2}}}},
		{"output", domain.Output{"output": float64(2)}, domain.Output{"output": 2}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Normalize(tt.in))
		})
	}
}

func TestNormalize_MatchesJSONRoundTrip(t *testing.T) {
	live := domain.NormalizeMap(map[string]any{"n": 3, "f": 2.5, "list": []any{int64(1), "x"}})

	data, err := json.Marshal(live)
	assert.NoError(t, err)
	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, live, domain.NormalizeMap(decoded))
}
