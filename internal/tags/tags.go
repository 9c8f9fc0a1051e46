// Package tags turns serialized tag-list strings into long-form
// (record, tag) assignments and an ordered tag dictionary.
package tags

import "strings"

// Record is the minimal record shape needed for tag extraction.
type Record struct {
	ID      string
	RawTags string
}

// Assignment links one record to one tag token from its serialized list.
type Assignment struct {
	Record string
	Tag    string
}

// ParseList splits a serialized tag list (bracket-delimited, quoted,
// comma-separated) into its tokens. One token is produced per comma-separated
// entry, duplicates included; malformed entries degrade to whatever survives
// stripping rather than failing. An empty list yields nil.
func ParseList(raw string) []string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		tokens = append(tokens, cleanToken(part))
	}
	return tokens
}

func cleanToken(token string) string {
	t := strings.TrimSpace(token)
	t = strings.Trim(t, `'"`)
	return strings.Join(strings.Fields(t), " ")
}

// Explode converts records into long-form assignments, one row per
// (record, tag) pair, in record order then list order. Records with empty
// tag lists contribute no rows.
func Explode(records []Record) []Assignment {
	assignments := make([]Assignment, 0, len(records))
	for _, record := range records {
		for _, tag := range ParseList(record.RawTags) {
			assignments = append(assignments, Assignment{Record: record.ID, Tag: tag})
		}
	}
	return assignments
}

// Dictionary is the explicit ordered tag vocabulary for one analysis run.
// Indicator matrix columns, loading rows, and reports all share its ordering,
// which keeps the long-form and wide-form views of the data aligned.
type Dictionary struct {
	tags  []string
	index map[string]int
}

// NewDictionary builds a dictionary from assignments in first-appearance
// order. Repeated tags keep their first position.
func NewDictionary(assignments []Assignment) *Dictionary {
	d := &Dictionary{index: make(map[string]int)}
	for _, a := range assignments {
		if _, ok := d.index[a.Tag]; ok {
			continue
		}
		d.index[a.Tag] = len(d.tags)
		d.tags = append(d.tags, a.Tag)
	}
	return d
}

// Index returns the column position for a tag.
func (d *Dictionary) Index(tag string) (int, bool) {
	i, ok := d.index[tag]
	return i, ok
}

// Tags returns the tags in dictionary order.
func (d *Dictionary) Tags() []string {
	return append([]string(nil), d.tags...)
}

// Len returns the number of distinct tags.
func (d *Dictionary) Len() int {
	return len(d.tags)
}
