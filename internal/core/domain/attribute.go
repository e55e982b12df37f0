package domain

import (
	"fmt"
	"slices"
	"time"
)

// AttributeType is the client-side name of an attribute type.
type AttributeType string

const (
	TypeInt             AttributeType = "int"
	TypeFloat           AttributeType = "float"
	TypeString          AttributeType = "string"
	TypeBool            AttributeType = "bool"
	TypeDatetime        AttributeType = "datetime"
	TypeStringSet       AttributeType = "string_set"
	TypeFile            AttributeType = "file"
	TypeFloatSeries     AttributeType = "float_series"
	TypeStringSeries    AttributeType = "string_series"
	TypeFileSeries      AttributeType = "file_series"
	TypeHistogramSeries AttributeType = "histogram_series"
)

// AllTypes lists every supported attribute type.
var AllTypes = []AttributeType{
	TypeInt, TypeFloat, TypeString, TypeBool, TypeDatetime, TypeStringSet,
	TypeFile, TypeFloatSeries, TypeStringSeries, TypeFileSeries, TypeHistogramSeries,
}

var clientToBackend = map[AttributeType]string{
	TypeInt:             "int",
	TypeFloat:           "float",
	TypeString:          "string",
	TypeBool:            "bool",
	TypeDatetime:        "datetime",
	TypeStringSet:       "stringSet",
	TypeFile:            "fileRef",
	TypeFloatSeries:     "floatSeries",
	TypeStringSeries:    "stringSeries",
	TypeFileSeries:      "fileRefSeries",
	TypeHistogramSeries: "histogramSeries",
}

var backendToClient = func() map[string]AttributeType {
	m := make(map[string]AttributeType, len(clientToBackend))
	for c, b := range clientToBackend {
		m[b] = c
	}
	return m
}()

// ParseAttributeType validates a client-side type name.
func ParseAttributeType(s string) (AttributeType, error) {
	t := AttributeType(s)
	if _, ok := clientToBackend[t]; !ok {
		return "", fmt.Errorf("%w: unknown attribute type %q", ErrInvalidConfiguration, s)
	}
	return t, nil
}

// Backend returns the name the remote service uses for this type.
func (t AttributeType) Backend() string {
	return clientToBackend[t]
}

// IsSeries reports whether values of this type are aggregation structs.
func (t AttributeType) IsSeries() bool {
	_, ok := TypeAggregations[t]
	return ok
}

// FromBackendType maps a remote type name to its client name.
func FromBackendType(s string) (AttributeType, error) {
	t, ok := backendToClient[s]
	if !ok {
		return "", &UnsupportedTypeError{Type: s}
	}
	return t, nil
}

// Aggregation names.
const (
	AggLast     = "last"
	AggMin      = "min"
	AggMax      = "max"
	AggAverage  = "average"
	AggVariance = "variance"
	AggLastStep = "last_step"
)

// TypeAggregations lists the aggregation fields each series type exposes.
var TypeAggregations = map[AttributeType][]string{
	TypeFloatSeries:     {AggLast, AggMin, AggMax, AggAverage, AggVariance},
	TypeStringSeries:    {AggLast, AggLastStep},
	TypeFileSeries:      {AggLast, AggLastStep},
	TypeHistogramSeries: {AggLast, AggLastStep},
}

// SupportsAggregation reports whether agg is a field of the series type t.
func SupportsAggregation(t AttributeType, agg string) bool {
	return slices.Contains(TypeAggregations[t], agg)
}

// File describes a file stored on the remote side.
type File struct {
	Path      string `json:"path" msgpack:"path"`
	SizeBytes int64  `json:"sizeBytes" msgpack:"size_bytes"`
	MimeType  string `json:"mimeType" msgpack:"mime_type"`
}

// Histogram is a single histogram point.
type Histogram struct {
	Type   string    `json:"type" msgpack:"type"`
	Edges  []float64 `json:"edges" msgpack:"edges"`
	Values []float64 `json:"values" msgpack:"values"`
}

// Aggregations is implemented by the value structs of series types.
type Aggregations interface {
	Field(name string) (any, bool)
}

type FloatSeriesAggregations struct {
	Last     float64
	Min      float64
	Max      float64
	Average  float64
	Variance float64
}

func (a FloatSeriesAggregations) Field(name string) (any, bool) {
	switch name {
	case AggLast:
		return a.Last, true
	case AggMin:
		return a.Min, true
	case AggMax:
		return a.Max, true
	case AggAverage:
		return a.Average, true
	case AggVariance:
		return a.Variance, true
	}
	return nil, false
}

type StringSeriesAggregations struct {
	Last     string
	LastStep float64
}

func (a StringSeriesAggregations) Field(name string) (any, bool) {
	return lastAndStep(a.Last, a.LastStep, name)
}

type FileSeriesAggregations struct {
	Last     File
	LastStep float64
}

func (a FileSeriesAggregations) Field(name string) (any, bool) {
	return lastAndStep(a.Last, a.LastStep, name)
}

type HistogramSeriesAggregations struct {
	Last     Histogram
	LastStep float64
}

func (a HistogramSeriesAggregations) Field(name string) (any, bool) {
	return lastAndStep(a.Last, a.LastStep, name)
}

func lastAndStep(last any, step float64, name string) (any, bool) {
	switch name {
	case AggLast:
		return last, true
	case AggLastStep:
		return step, true
	}
	return nil, false
}

// AttributeValue is one materialized value. The dynamic type of Value is
// determined by Attribute.Type:
//
//	int              int64
//	float            float64
//	string           string
//	bool             bool
//	datetime         time.Time
//	string_set       []string
//	file             File
//	float_series     FloatSeriesAggregations
//	string_series    StringSeriesAggregations
//	file_series      FileSeriesAggregations
//	histogram_series HistogramSeriesAggregations
type AttributeValue struct {
	Attribute AttributeDefinition
	Value     any
	Run       RunIdentifier
}

// CheckValue verifies that v has the Go type expected for t.
func CheckValue(t AttributeType, v any) error {
	var ok bool
	switch t {
	case TypeInt:
		_, ok = v.(int64)
	case TypeFloat:
		_, ok = v.(float64)
	case TypeString:
		_, ok = v.(string)
	case TypeBool:
		_, ok = v.(bool)
	case TypeDatetime:
		_, ok = v.(time.Time)
	case TypeStringSet:
		_, ok = v.([]string)
	case TypeFile:
		_, ok = v.(File)
	case TypeFloatSeries:
		_, ok = v.(FloatSeriesAggregations)
	case TypeStringSeries:
		_, ok = v.(StringSeriesAggregations)
	case TypeFileSeries:
		_, ok = v.(FileSeriesAggregations)
	case TypeHistogramSeries:
		_, ok = v.(HistogramSeriesAggregations)
	default:
		return &UnsupportedTypeError{Type: string(t)}
	}
	if !ok {
		return fmt.Errorf("value of type %T does not match attribute type %s", v, t)
	}
	return nil
}

// FloatPointValue is a single metric point.
type FloatPointValue struct {
	TimestampMillis   int64
	Step              float64
	Value             float64
	IsPreview         bool
	PreviewCompletion float64
}

// SeriesValue is a single point of a non-numeric series. Value holds a
// string, File or Histogram.
type SeriesValue struct {
	Step            float64
	Value           any
	TimestampMillis int64
}
