package retrieval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

const (
	definitionsPath = "/api/leaderboard/v1/leaderboard/attributes/definitions/query"
	valuesPath      = "/api/leaderboard/v1/leaderboard/attributes/query"
	seriesPath      = "/api/leaderboard/v1/proto/attributes/series"
	metricsPath     = "/api/leaderboard/v1/proto/attributes/series/float"
	searchPath      = "/api/leaderboard/v1/leaderboard/entries/search/"
)

type nextPage struct {
	Limit         int    `json:"limit"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

type nextPageResponse struct {
	NextPageToken string `json:"nextPageToken"`
}

func (p *nextPageResponse) token() string {
	if p == nil {
		return ""
	}
	return p.NextPageToken
}

// Definitions

type nameFilterDTO struct {
	MustMatchRegexes    []string `json:"mustMatchRegexes,omitempty"`
	MustNotMatchRegexes []string `json:"mustNotMatchRegexes,omitempty"`
}

type attributeNameFilterDTO struct {
	MustMatchAny []nameFilterDTO `json:"mustMatchAny,omitzero"`
}

type attributeTypeFilterDTO struct {
	AttributeType string `json:"attributeType"`
}

type definitionsParams struct {
	ProjectIdentifiers  []string                 `json:"projectIdentifiers"`
	ExperimentIdsFilter []string                 `json:"experimentIdsFilter,omitempty"`
	AttributeNameFilter attributeNameFilterDTO   `json:"attributeNameFilter"`
	AttributeFilter     []attributeTypeFilterDTO `json:"attributeFilter,omitempty"`
	NextPage            nextPage                 `json:"nextPage"`
}

type definitionEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type definitionsResponse struct {
	Entries  []definitionEntry `json:"entries"`
	NextPage *nextPageResponse `json:"nextPage"`
}

// Values

type valuesParams struct {
	ExperimentIdsFilter  []string `json:"experimentIdsFilter"`
	AttributeNamesFilter []string `json:"attributeNamesFilter"`
	NextPage             nextPage `json:"nextPage"`
}

type rawAttribute struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type valuesEntry struct {
	ExperimentShortID string         `json:"experimentShortId"`
	Attributes        []rawAttribute `json:"attributes"`
}

type valuesResponse struct {
	Entries  []valuesEntry     `json:"entries"`
	NextPage *nextPageResponse `json:"nextPage"`
}

// Run search

type attributePath struct {
	Path string `json:"path"`
}

type pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type nqlQuery struct {
	Query string `json:"query"`
}

type sortBy struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type sorting struct {
	Dir    string `json:"dir"`
	SortBy sortBy `json:"sortBy"`
}

type searchParams struct {
	AttributeFilters []attributePath `json:"attributeFilters"`
	Pagination       pagination      `json:"pagination"`
	ExperimentLeader bool            `json:"experimentLeader"`
	Query            *nqlQuery       `json:"query,omitempty"`
	Sorting          sorting         `json:"sorting"`
}

type stringProperties struct {
	Value string `json:"value"`
}

type searchAttribute struct {
	Name             string            `json:"name"`
	StringProperties *stringProperties `json:"stringProperties"`
}

type searchEntry struct {
	Attributes []searchAttribute `json:"attributes"`
}

type searchResponse struct {
	Entries []searchEntry `json:"entries"`
}

// Series and metrics

type holder struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
}

type seriesSpec struct {
	Holder         holder `json:"holder"`
	Attribute      string `json:"attribute"`
	Lineage        string `json:"lineage"`
	IncludePreview bool   `json:"includePreview,omitempty"`
}

type searchAfter struct {
	Finished bool   `json:"finished"`
	Token    string `json:"token"`
}

type seriesRequest struct {
	RequestID   string       `json:"requestId"`
	Series      seriesSpec   `json:"series"`
	SearchAfter *searchAfter `json:"searchAfter,omitempty"`
}

type stepRange struct {
	From *float64 `json:"from"`
	To   *float64 `json:"to"`
}

type seriesParams struct {
	Requests             []seriesRequest `json:"requests"`
	StepRange            stepRange       `json:"stepRange"`
	Order                string          `json:"order"`
	PerSeriesPointsLimit *int            `json:"perSeriesPointsLimit,omitempty"`
}

type objectValue struct {
	StringValue *string           `json:"stringValue"`
	FileRef     *domain.File      `json:"fileRef"`
	Histogram   *domain.Histogram `json:"histogram"`
}

// point covers both float points and object points. TimestampMillis is a
// float because protojson may render large integers in exponent form.
type point struct {
	Step            jsonFloat    `json:"step"`
	TimestampMillis jsonFloat    `json:"timestampMillis"`
	Value           *jsonFloat   `json:"value"`
	Object          *objectValue `json:"object"`
	IsPreview       bool         `json:"isPreview"`
	CompletionRatio jsonFloat    `json:"completionRatio"`
}

type seriesResult struct {
	RequestID    string       `json:"requestId"`
	SearchAfter  *searchAfter `json:"searchAfter"`
	SeriesValues struct {
		Values []point `json:"values"`
	} `json:"seriesValues"`
}

type seriesResponse struct {
	Series []seriesResult `json:"series"`
}

// jsonFloat accepts JSON numbers as well as the string forms the API uses
// for non-finite values ("NaN", "Infinity", "-Infinity").
type jsonFloat float64

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := parseFloatString(s)
		if err != nil {
			return err
		}
		*f = jsonFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

func parseFloatString(s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity", "+Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", s, err)
	}
	return v, nil
}
