package retrieval

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		typ    domain.AttributeType
		raw    string
		want   any
		wantOK bool
	}{
		{"null", domain.TypeInt, `null`, nil, false},
		{"int", domain.TypeInt, `42`, int64(42), true},
		{"int from float", domain.TypeInt, `42.0`, int64(42), true},
		{"float", domain.TypeFloat, `1.5`, 1.5, true},
		{"float infinity", domain.TypeFloat, `"Infinity"`, math.Inf(1), true},
		{"string", domain.TypeString, `"abc"`, "abc", true},
		{"bool", domain.TypeBool, `true`, true, true},
		{"datetime", domain.TypeDatetime, `"2024-01-02T03:04:05.123Z"`, time.Date(2024, 1, 2, 3, 4, 5, 123e6, time.UTC), true},
		{"datetime millis", domain.TypeDatetime, `1700000000000`, time.UnixMilli(1700000000000).UTC(), true},
		{"string set", domain.TypeStringSet, `["a","b"]`, []string{"a", "b"}, true},
		{"empty string set", domain.TypeStringSet, `[]`, []string{}, true},
		{"file", domain.TypeFile, `{"path":"p","sizeBytes":3,"mimeType":"text/plain"}`, domain.File{Path: "p", SizeBytes: 3, MimeType: "text/plain"}, true},
		{"string series", domain.TypeStringSeries, `{"last":"done","lastStep":7}`, domain.StringSeriesAggregations{Last: "done", LastStep: 7}, true},
		{"string series without points", domain.TypeStringSeries, `{"lastStep":0}`, nil, false},
		{
			"histogram series",
			domain.TypeHistogramSeries,
			`{"last":{"type":"COUNTING","edges":[0,1],"values":[3]},"lastStep":2}`,
			domain.HistogramSeriesAggregations{Last: domain.Histogram{Type: "COUNTING", Edges: []float64{0, 1}, Values: []float64{3}}, LastStep: 2},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := domain.AttributeDefinition{Name: "a", Type: tt.typ}
			got, ok, err := Decode(def, json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.NoError(t, domain.CheckValue(tt.typ, got))
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := Decode(domain.AttributeDefinition{Name: "a", Type: domain.TypeInt}, json.RawMessage(`"x"`))
	assert.ErrorContains(t, err, "decode a:int")

	_, _, err = Decode(domain.AttributeDefinition{Name: "a", Type: "matrix"}, json.RawMessage(`1`))
	var ute *domain.UnsupportedTypeError
	assert.True(t, errors.As(err, &ute))
}

func TestTypeWarner_WarnsOnce(t *testing.T) {
	w := &TypeWarner{}
	assert.True(t, w.Warn("complexMatrix"))
	assert.False(t, w.Warn("complexMatrix"))
	assert.True(t, w.Warn("other"))
}

func TestFilterHelpers(t *testing.T) {
	assert.Nil(t, escapeNameEq(nil))
	assert.Equal(t, []string{`^a\+b$`}, escapeNameEq([]string{"a+b"}))

	assert.Nil(t, nameFilterDTOs(AttributeFilter{}))
	assert.Equal(t, []nameFilterDTO{{MustMatchRegexes: []string{"^x$"}}}, nameFilterDTOs(AttributeFilter{NameEq: []string{"x"}}))
	assert.Empty(t, nameFilterDTOs(AttributeFilter{MustMatchAny: []AttributeNameFilter{{}}}))

	split := SplitAttributeFilters(Any(
		AttributeFilter{NameEq: []string{"a"}},
		Any(AttributeFilter{NameEq: []string{"b"}}, AttributeFilter{NameEq: []string{"c"}}),
	))
	require.Len(t, split, 3)
	assert.Equal(t, []string{"c"}, split[2].NameEq)

	assert.Equal(t, []string{domain.AggLast}, AttributeFilter{}.SelectedAggregations())
	assert.ErrorIs(t, AttributeFilter{Aggregations: []string{"median"}}.Validate(), domain.ErrInvalidConfiguration)
}
