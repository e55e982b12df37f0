package retrieval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// TypeWarner logs one warning per unsupported attribute type.
type TypeWarner struct {
	seen sync.Map
}

// DefaultTypeWarner is shared by all flows of the process.
var DefaultTypeWarner = &TypeWarner{}

// Warn logs a warning the first time typ is seen and reports whether it did.
func (w *TypeWarner) Warn(typ string) bool {
	if _, loaded := w.seen.LoadOrStore(typ, struct{}{}); loaded {
		return false
	}
	slog.Warn("Skipping values of unsupported attribute type", "type", typ)
	return true
}

type floatAggregationsDTO struct {
	Last     jsonFloat `json:"last"`
	Min      jsonFloat `json:"min"`
	Max      jsonFloat `json:"max"`
	Average  jsonFloat `json:"average"`
	Variance jsonFloat `json:"variance"`
}

type lastStepDTO[T any] struct {
	Last     *T        `json:"last"`
	LastStep jsonFloat `json:"lastStep"`
}

// Decode converts the raw JSON value of def into its Go form (see
// domain.AttributeValue). A null or absent value yields (nil, false, nil).
func Decode(def domain.AttributeDefinition, raw json.RawMessage) (any, bool, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false, nil
	}

	value, ok, err := decodeValue(def.Type, raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", def, err)
	}
	return value, ok, nil
}

func decodeValue(t domain.AttributeType, raw json.RawMessage) (any, bool, error) {
	switch t {
	case domain.TypeInt:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, false, err
		}
		if i, err := n.Int64(); err == nil {
			return i, true, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false, err
		}
		return int64(f), true, nil

	case domain.TypeFloat:
		var f jsonFloat
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, false, err
		}
		return float64(f), true, nil

	case domain.TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, err
		}
		return s, true, nil

	case domain.TypeBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, false, err
		}
		return b, true, nil

	case domain.TypeDatetime:
		return decodeDatetime(raw)

	case domain.TypeStringSet:
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, false, err
		}
		if values == nil {
			values = []string{}
		}
		return values, true, nil

	case domain.TypeFile:
		var f domain.File
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, false, err
		}
		return f, true, nil

	case domain.TypeFloatSeries:
		var dto floatAggregationsDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, false, err
		}
		return domain.FloatSeriesAggregations{
			Last:     float64(dto.Last),
			Min:      float64(dto.Min),
			Max:      float64(dto.Max),
			Average:  float64(dto.Average),
			Variance: float64(dto.Variance),
		}, true, nil

	case domain.TypeStringSeries:
		var dto lastStepDTO[string]
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, false, err
		}
		if dto.Last == nil {
			return nil, false, nil
		}
		return domain.StringSeriesAggregations{Last: *dto.Last, LastStep: float64(dto.LastStep)}, true, nil

	case domain.TypeFileSeries:
		var dto lastStepDTO[domain.File]
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, false, err
		}
		if dto.Last == nil {
			return nil, false, nil
		}
		return domain.FileSeriesAggregations{Last: *dto.Last, LastStep: float64(dto.LastStep)}, true, nil

	case domain.TypeHistogramSeries:
		var dto lastStepDTO[domain.Histogram]
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, false, err
		}
		if dto.Last == nil {
			return nil, false, nil
		}
		return domain.HistogramSeriesAggregations{Last: *dto.Last, LastStep: float64(dto.LastStep)}, true, nil

	default:
		return nil, false, &domain.UnsupportedTypeError{Type: string(t)}
	}
}

// decodeDatetime accepts RFC 3339 strings and epoch milliseconds.
func decodeDatetime(raw json.RawMessage) (any, bool, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, err
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, false, err
		}
		return ts.UTC(), true, nil
	}
	var ms jsonFloat
	if err := json.Unmarshal(raw, &ms); err != nil {
		return nil, false, err
	}
	return time.UnixMilli(int64(ms)).UTC(), true, nil
}
