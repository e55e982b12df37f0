package table

import (
	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// DownloadedFile is a file attribute of a run and where it was stored
// locally. Path is nil when the file could not be downloaded.
type DownloadedFile struct {
	Run       domain.RunIdentifier
	Attribute domain.AttributeDefinition
	Path      *string
}

// FilesTableOptions controls FilesTable.
type FilesTableOptions struct {
	IndexColumnName string
}

// FilesTable builds one row per label and one flat column per attribute
// name. Cells hold local paths.
func FilesTable(
	files []DownloadedFile,
	labels map[domain.RunIdentifier]string,
	opts FilesTableOptions,
) (*Table, error) {
	b := newBuilder()
	for _, f := range files {
		id := b.row(labelOf(labels, f.Run), nil)
		col := ColumnKey{Attribute: f.Attribute.Name}
		b.columns[col] = struct{}{}
		if f.Path == nil {
			continue
		}
		b.values[id][col] = *f.Path
	}
	return b.build([]string{indexName(opts.IndexColumnName)}, false, true), nil
}
