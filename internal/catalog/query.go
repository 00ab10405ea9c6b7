package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// ErrInvalidQuery is returned by ParseQuery for malformed query text.
var ErrInvalidQuery = errors.New("invalid catalog query")

// Query selects entries by system, type, and exact tag field values. Empty
// parts match everything.
type Query struct {
	System string
	Type   string
	// Tags maps a tag field id to the value some tag of the entry must hold.
	Tags map[string]string
}

// WithTag returns a copy of q that also requires field=value.
func (q Query) WithTag(field, value string) Query {
	tags := make(map[string]string, len(q.Tags)+1)
	for k, v := range q.Tags {
		tags[k] = v
	}
	tags[field] = value
	q.Tags = tags
	return q
}

// ParseQuery parses the text form, e.g.
// "system=apache_atlas type=table tag:guid:3fa8".
func ParseQuery(s string) (Query, error) {
	var q Query
	for _, term := range strings.Fields(s) {
		switch {
		case strings.HasPrefix(term, "system="):
			q.System = strings.TrimPrefix(term, "system=")
		case strings.HasPrefix(term, "type="):
			q.Type = strings.TrimPrefix(term, "type=")
		case strings.HasPrefix(term, "tag:"):
			parts := strings.SplitN(strings.TrimPrefix(term, "tag:"), ":", 2)
			if len(parts) != 2 || parts[0] == "" {
				return Query{}, fmt.Errorf("%w: tag term %q needs a field and a value", ErrInvalidQuery, term)
			}
			q = q.WithTag(parts[0], parts[1])
		default:
			return Query{}, fmt.Errorf("%w: unknown term %q", ErrInvalidQuery, term)
		}
	}
	return q, nil
}

// String renders q in the form ParseQuery accepts. Tag terms are sorted.
func (q Query) String() string {
	var terms []string
	if q.System != "" {
		terms = append(terms, "system="+q.System)
	}
	if q.Type != "" {
		terms = append(terms, "type="+q.Type)
	}
	fields := make([]string, 0, len(q.Tags))
	for f := range q.Tags {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		terms = append(terms, "tag:"+f+":"+q.Tags[f])
	}
	return strings.Join(terms, " ")
}

// Matches reports whether rec satisfies q.
func (q Query) Matches(rec models.Record) bool {
	if q.System != "" && rec.Entry.System != q.System {
		return false
	}
	if q.Type != "" && rec.Entry.Type != q.Type {
		return false
	}
	for field, value := range q.Tags {
		if !hasTagValue(rec.Tags, field, value) {
			return false
		}
	}
	return true
}

func hasTagValue(tags []models.Tag, field, value string) bool {
	for _, t := range tags {
		if f, ok := t.Fields[field]; ok && f.Text() == value {
			return true
		}
	}
	return false
}

// tagTerms renders every field of tags as "field=value", the form the graph
// backend indexes for exact tag-value search.
func tagTerms(tag models.Tag) []string {
	terms := make([]string, 0, len(tag.Fields))
	for field, v := range tag.Fields {
		terms = append(terms, field+"="+v.Text())
	}
	sort.Strings(terms)
	return terms
}
