package tagsync

import (
	"slices"

	"github.com/agentstation/policytool/pkg/tags"
)

// kind describes how one entity type is keyed and fetched.
type kind struct {
	name     string
	typeName string
	key      func(tags.Record) string
	scopes   func([]tags.Record) [][]string
}

var (
	tableKind = kind{
		name:     "table",
		typeName: "hive_table",
		key:      tags.Record.TableName,
		scopes: func(records []tags.Record) [][]string {
			schemas := tags.Schemas(records)
			slices.Sort(schemas)
			out := make([][]string, len(schemas))
			for i, s := range schemas {
				out[i] = []string{s}
			}
			return out
		},
	}

	columnKind = kind{
		name:     "column",
		typeName: "hive_column",
		key:      tags.Record.ColumnName,
		scopes: func(records []tags.Record) [][]string {
			seen := tags.Set{}
			var out [][]string
			for _, r := range records {
				if seen.Has(r.TableName()) {
					continue
				}
				seen.Add(r.TableName())
				out = append(out, []string{r.Schema, r.Table})
			}
			slices.SortFunc(out, func(a, b []string) int {
				return slices.Compare(a, b)
			})
			return out
		},
	}
)

// target is the desired tag set of one entity key.
type target struct {
	key  string
	want tags.Set
}

// targets merges records sharing a key, keeping first-seen order.
func targets(k kind, records []tags.Record) []target {
	index := make(map[string]int)
	var out []target
	for _, r := range records {
		key := k.key(r)
		if i, ok := index[key]; ok {
			out[i].want.AddSet(r.TagSet())
			continue
		}
		index[key] = len(out)
		out = append(out, target{key: key, want: r.TagSet()})
	}
	return out
}
