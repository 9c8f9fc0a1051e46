// Package dataset loads delimited talk-metadata exports into memory.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Talk is one imported record: a unique URL, an optional title, and the
// serialized tag-list string exactly as it appeared in the source file.
type Talk struct {
	URL     string
	Title   string
	RawTags string
}

// LoadResult carries the parsed talks plus skip counters for reporting.
type LoadResult struct {
	Talks        []Talk
	SkippedEmpty int // rows with a blank identifier
	SourceFile   string
}

// Loader reads CSV/TSV files whose header row names the columns. Column
// names are matched case-insensitively.
type Loader struct {
	IDColumn    string // default "url"
	TagsColumn  string // default "tags"
	TitleColumn string // default "title"; missing column is tolerated
}

// CanHandle returns true for CSV/TSV file extensions.
func (l *Loader) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Load parses a delimited file into talks. The first row is treated as
// headers; rows with a blank identifier are skipped and counted rather than
// failing the import.
func (l *Loader) Load(path string) (*LoadResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)

	// Auto-detect TSV
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}

	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if len(records) < 2 {
		// Need at least headers + one row.
		return &LoadResult{SourceFile: absPath}, nil
	}

	idCol := l.columnOr("url", l.IDColumn)
	tagsCol := l.columnOr("tags", l.TagsColumn)
	titleCol := l.columnOr("title", l.TitleColumn)

	headers := records[0]
	idIdx := findColumn(headers, idCol)
	tagsIdx := findColumn(headers, tagsCol)
	titleIdx := findColumn(headers, titleCol)

	if idIdx < 0 {
		return nil, fmt.Errorf("%s: missing identifier column %q", path, idCol)
	}
	if tagsIdx < 0 {
		return nil, fmt.Errorf("%s: missing tag column %q", path, tagsCol)
	}

	result := &LoadResult{SourceFile: absPath}
	for _, row := range records[1:] {
		id := cellAt(row, idIdx)
		if id == "" {
			result.SkippedEmpty++
			continue
		}

		talk := Talk{
			URL:     id,
			RawTags: cellAt(row, tagsIdx),
		}
		if titleIdx >= 0 {
			talk.Title = cellAt(row, titleIdx)
		}
		result.Talks = append(result.Talks, talk)
	}

	return result, nil
}

func (l *Loader) columnOr(fallback, configured string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	return fallback
}

func findColumn(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
