package retrieval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// AttributeNameFilter is one AND-group of name regexes: a name must match
// every MustMatchRegexes entry and none of MustNotMatchRegexes.
type AttributeNameFilter struct {
	MustMatchRegexes    []string
	MustNotMatchRegexes []string
}

// BaseAttributeFilter is either a single AttributeFilter or an alternative of filters.
type BaseAttributeFilter interface {
	split() []AttributeFilter
}

// AttributeFilter selects attribute definitions.
//
// Nil and empty slices differ where it matters:
//   - TypeIn nil matches all types.
//   - MustMatchAny nil matches all names; an empty, non-nil slice matches nothing.
type AttributeFilter struct {
	NameEq       []string
	TypeIn       []domain.AttributeType
	MustMatchAny []AttributeNameFilter
	// Aggregations selects series aggregation fields for tables. The
	// definitions query ignores it. Empty means {"last"}.
	Aggregations []string
}

func (f AttributeFilter) split() []AttributeFilter {
	return []AttributeFilter{f}
}

// Validate checks types and aggregation names.
func (f AttributeFilter) Validate() error {
	for _, t := range f.TypeIn {
		if _, err := domain.ParseAttributeType(string(t)); err != nil {
			return err
		}
	}
	for _, agg := range f.Aggregations {
		if !isKnownAggregation(agg) {
			return fmt.Errorf("%w: unknown aggregation %q", domain.ErrInvalidConfiguration, agg)
		}
	}
	return nil
}

// SelectedAggregations returns the aggregation set for series types.
func (f AttributeFilter) SelectedAggregations() []string {
	if len(f.Aggregations) == 0 {
		return []string{domain.AggLast}
	}
	return f.Aggregations
}

// AttributeFilterAlternative matches what any of its filters matches.
type AttributeFilterAlternative struct {
	Filters []BaseAttributeFilter
}

func (a AttributeFilterAlternative) split() []AttributeFilter {
	var out []AttributeFilter
	for _, f := range a.Filters {
		out = append(out, f.split()...)
	}
	return out
}

// Any combines filters into an alternative.
func Any(filters ...BaseAttributeFilter) AttributeFilterAlternative {
	return AttributeFilterAlternative{Filters: filters}
}

// SplitAttributeFilters flattens nested alternatives into single filters.
func SplitAttributeFilters(f BaseAttributeFilter) []AttributeFilter {
	return f.split()
}

func isKnownAggregation(agg string) bool {
	for _, aggs := range domain.TypeAggregations {
		for _, a := range aggs {
			if a == agg {
				return true
			}
		}
	}
	return false
}

// escapeNameEq turns exact names into one anchored regex.
func escapeNameEq(names []string) []string {
	if names == nil {
		return nil
	}
	escaped := make([]string, len(names))
	for i, n := range names {
		escaped[i] = regexp.QuoteMeta(n)
	}
	if len(escaped) == 1 {
		return []string{"^" + escaped[0] + "$"}
	}
	return []string{"^(" + strings.Join(escaped, "|") + ")$"}
}

// unionOptions concatenates the non-nil lists; nil if all are nil.
func unionOptions(options ...[]string) []string {
	var result []string
	for _, o := range options {
		if o != nil {
			if result == nil {
				result = []string{}
			}
			result = append(result, o...)
		}
	}
	return result
}

// nameFilterDTOs converts a filter's name constraints to the wire form.
// NameEq is ANDed into every MustMatchAny alternative; alternatives left
// without any constraint are dropped.
func nameFilterDTOs(f AttributeFilter) []nameFilterDTO {
	nameRegexes := escapeNameEq(f.NameEq)

	if f.MustMatchAny != nil {
		dtos := make([]nameFilterDTO, 0, len(f.MustMatchAny))
		for _, alt := range f.MustMatchAny {
			dto := nameFilterDTO{
				MustMatchRegexes:    unionOptions(nameRegexes, alt.MustMatchRegexes),
				MustNotMatchRegexes: alt.MustNotMatchRegexes,
			}
			if dto.MustMatchRegexes != nil || dto.MustNotMatchRegexes != nil {
				dtos = append(dtos, dto)
			}
		}
		return dtos
	}

	if nameRegexes != nil {
		return []nameFilterDTO{{MustMatchRegexes: nameRegexes}}
	}
	return nil
}
