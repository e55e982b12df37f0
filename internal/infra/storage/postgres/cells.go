package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// Cell kinds stored alongside JSON values so loads restore Go types.
const (
	kindInt       = "int"
	kindFloat     = "float"
	kindString    = "string"
	kindBool      = "bool"
	kindTime      = "time"
	kindStrings   = "strings"
	kindFile      = "file"
	kindHistogram = "histogram"
)

type cellEnvelope struct {
	Kind  string          `json:"k"`
	Value json.RawMessage `json:"v"`
}

// encodeCell renders a cell as JSON. Floats are stored as strings so NaN
// and infinities survive.
func encodeCell(v any) (string, error) {
	var (
		kind    string
		payload any
	)
	switch v := v.(type) {
	case int64:
		kind, payload = kindInt, v
	case float64:
		kind, payload = kindFloat, strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		kind, payload = kindString, v
	case bool:
		kind, payload = kindBool, v
	case time.Time:
		kind, payload = kindTime, v.UTC().Format(time.RFC3339Nano)
	case []string:
		kind, payload = kindStrings, v
	case domain.File:
		kind, payload = kindFile, v
	case domain.Histogram:
		kind, payload = kindHistogram, v
	default:
		return "", fmt.Errorf("unsupported cell value type %T", v)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(cellEnvelope{Kind: kind, Value: raw})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeCell(data string) (any, error) {
	var env cellEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("decode cell: %w", err)
	}

	switch env.Kind {
	case kindInt:
		return decodeAs[int64](env.Value)
	case kindFloat:
		s, err := decodeAs[string](env.Value)
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(s.(string), 64)
	case kindString:
		return decodeAs[string](env.Value)
	case kindBool:
		return decodeAs[bool](env.Value)
	case kindTime:
		s, err := decodeAs[string](env.Value)
		if err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, s.(string))
		if err != nil {
			return nil, err
		}
		return ts.UTC(), nil
	case kindStrings:
		return decodeAs[[]string](env.Value)
	case kindFile:
		return decodeAs[domain.File](env.Value)
	case kindHistogram:
		return decodeAs[domain.Histogram](env.Value)
	}
	return nil, fmt.Errorf("unknown cell kind %q", env.Kind)
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode cell: %w", err)
	}
	return v, nil
}
