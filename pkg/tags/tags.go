// Package tags models the desired tag assignments read from tag files and
// the small set algebra the reconciliation engine runs on them.
package tags

import (
	"strings"
)

// Record is one desired-state row. Attribute is empty for table rows.
type Record struct {
	Schema    string `json:"schema" yaml:"schema"`
	Table     string `json:"table" yaml:"table"`
	Attribute string `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Tags      string `json:"tags" yaml:"tags"`
}

// TableName returns schema.table.
func (r Record) TableName() string {
	return r.Schema + "." + r.Table
}

// ColumnName returns schema.table.attribute.
func (r Record) ColumnName() string {
	return r.TableName() + "." + r.Attribute
}

// Key returns the qualified name the record is matched on in the catalog.
func (r Record) Key() string {
	if r.Attribute == "" {
		return r.TableName()
	}
	return r.ColumnName()
}

// TagSet splits the comma separated tag list. Empty names are dropped.
func (r Record) TagSet() Set {
	return Split(r.Tags)
}

// Split parses a comma separated tag list into a set, dropping empty
// names and surrounding blanks.
func Split(list string) Set {
	set := Set{}
	for _, tag := range strings.Split(list, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		set.Add(tag)
	}
	return set
}

// FromSource returns the union of all tag names referenced by records.
func FromSource(records []Record) Set {
	set := Set{}
	for _, r := range records {
		set.AddSet(r.TagSet())
	}
	return set
}

// StripQualifiedName removes the cluster suffix of a catalog qualified
// name: everything from the first '@'.
func StripQualifiedName(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i]
	}
	return name
}

// Schemas returns the distinct schemas of records in first-seen order.
func Schemas(records []Record) []string {
	return distinct(records, func(r Record) string { return r.Schema })
}

// Tables returns the distinct schema.table names of records in first-seen order.
func Tables(records []Record) []string {
	return distinct(records, Record.TableName)
}

// Columns returns the distinct schema.table.attribute names of records.
func Columns(records []Record) []string {
	return distinct(records, Record.ColumnName)
}

// WithEnvironment returns a copy of records whose schemas carry the
// _<env> suffix used by per-environment databases.
func WithEnvironment(records []Record, env string) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Schema = r.Schema + "_" + env
		out[i] = r
	}
	return out
}

// GroupByTable indexes records by schema.table, keeping file order inside
// each group.
func GroupByTable(records []Record) map[string][]Record {
	groups := make(map[string][]Record)
	for _, r := range records {
		groups[r.TableName()] = append(groups[r.TableName()], r)
	}
	return groups
}

// Filter drops records whose schema.table is listed in ignore.
func Filter(records []Record, ignore []string) []Record {
	if len(ignore) == 0 {
		return records
	}
	skip := NewSet(ignore...)
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if skip.Has(r.TableName()) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func distinct(records []Record, key func(Record) string) []string {
	seen := Set{}
	var out []string
	for _, r := range records {
		k := key(r)
		if seen.Has(k) {
			continue
		}
		seen.Add(k)
		out = append(out, k)
	}
	return out
}
