package table

import (
	"fmt"
	"slices"
	"strings"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// File property sub-columns.
const (
	FieldPath      = "path"
	FieldSizeBytes = "size_bytes"
	FieldMimeType  = "mime_type"
)

// EntityValues is the attribute values of one row, usually one run.
type EntityValues struct {
	Label  string
	Values []domain.AttributeValue
}

// AttributeTableOptions controls AttributeTable.
type AttributeTableOptions struct {
	// SelectedAggregations lists the aggregation columns per series
	// attribute. Series attributes without an entry get no columns.
	SelectedAggregations map[domain.AttributeDefinition][]string
	// TypeSuffixInName keeps ":type" in attribute column names.
	TypeSuffixInName bool
	// FlattenAggregations drops the field level. Only valid when every
	// selection is exactly {last}.
	FlattenAggregations bool
	// FlattenFileProperties splits file values into path, size and mime type.
	FlattenFileProperties bool
	IndexColumnName       string
}

func (o AttributeTableOptions) validate() error {
	if o.FlattenAggregations && o.FlattenFileProperties {
		return fmt.Errorf("%w: cannot flatten aggregations and file properties together", domain.ErrInvalidConfiguration)
	}
	if o.FlattenAggregations {
		for def, aggs := range o.SelectedAggregations {
			if !slices.Equal(uniqueSorted(aggs), []string{domain.AggLast}) {
				return fmt.Errorf("%w: flattened aggregations require exactly [last] for %s, got %v",
					domain.ErrInvalidConfiguration, def, aggs)
			}
		}
	}
	return nil
}

// AttributeTable builds one row per entity, in input order, and one column
// per attribute (and aggregation or file property). Entities without values
// still get a row.
func AttributeTable(rows []EntityValues, opts AttributeTableOptions) (*Table, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	b := newBuilder()
	for _, entity := range rows {
		id := b.row(entity.Label, nil)
		for _, v := range entity.Values {
			for col, cell := range attributeCells(v, opts) {
				if !b.set(id, col, cell) {
					return nil, &domain.ConflictingAttributeTypesError{Names: []string{v.Attribute.Name}}
				}
			}
		}
	}

	if !opts.TypeSuffixInName {
		if err := stripTypeSuffixes(b); err != nil {
			return nil, err
		}
	}
	return b.build([]string{indexName(opts.IndexColumnName)}, !opts.FlattenAggregations, false), nil
}

// attributeCells expands one value into its (column, cell) pairs.
func attributeCells(v domain.AttributeValue, opts AttributeTableOptions) map[ColumnKey]any {
	def := v.Attribute
	name := def.String()

	if aggs, ok := v.Value.(domain.Aggregations); ok && def.Type.IsSeries() {
		cells := make(map[ColumnKey]any)
		for _, agg := range opts.SelectedAggregations[def] {
			if !domain.SupportsAggregation(def.Type, agg) {
				continue
			}
			field, ok := aggs.Field(agg)
			if !ok {
				continue
			}
			key := ColumnKey{Attribute: name, Field: agg}
			if opts.FlattenAggregations {
				key.Field = ""
			}
			cells[key] = field
		}
		return cells
	}

	if f, ok := v.Value.(domain.File); ok && opts.FlattenFileProperties {
		return map[ColumnKey]any{
			{Attribute: name, Field: FieldPath}:      f.Path,
			{Attribute: name, Field: FieldSizeBytes}: f.SizeBytes,
			{Attribute: name, Field: FieldMimeType}:  f.MimeType,
		}
	}

	return map[ColumnKey]any{{Attribute: name}: v.Value}
}

// stripTypeSuffixes renames "name:type" columns to "name". Names that
// survive with more than one type are a conflict.
func stripTypeSuffixes(b *builder) error {
	types := make(map[string]map[string]struct{})
	for c := range b.columns {
		name, typ := splitTypeSuffix(c.Attribute)
		if types[name] == nil {
			types[name] = make(map[string]struct{})
		}
		types[name][typ] = struct{}{}
	}

	var conflicts []string
	for name, ts := range types {
		if len(ts) > 1 {
			conflicts = append(conflicts, name)
		}
	}
	if len(conflicts) > 0 {
		slices.Sort(conflicts)
		return &domain.ConflictingAttributeTypesError{Names: conflicts}
	}

	b.renameColumns(func(c ColumnKey) ColumnKey {
		c.Attribute, _ = splitTypeSuffix(c.Attribute)
		return c
	})
	return nil
}

func splitTypeSuffix(attribute string) (string, string) {
	i := strings.LastIndex(attribute, ":")
	if i < 0 {
		return attribute, ""
	}
	return attribute[:i], attribute[i+1:]
}

func uniqueSorted(items []string) []string {
	out := slices.Clone(items)
	slices.Sort(out)
	return slices.Compact(out)
}
