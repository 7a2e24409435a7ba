// Package policycache reads the tag section of a policy service cache
// file, the copy of tag assignments a query engine plugin keeps locally.
// It is used to rebuild catalog tags when the catalog lost them.
package policycache

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/tags"
)

// Tag is a tag definition of the cache.
type Tag struct {
	Type string `json:"type"`
}

// ResourceElement selects values of one resource kind.
type ResourceElement struct {
	Values []string `json:"values"`
}

// ServiceResource is one tagged resource.
type ServiceResource struct {
	ID               int64                      `json:"id"`
	ResourceElements map[string]ResourceElement `json:"resourceElements"`
}

// Cache is the decoded cache file.
type Cache struct {
	Tags             map[string]Tag     `json:"tags"`
	ServiceResources []ServiceResource  `json:"serviceResources"`
	ResourceToTagIDs map[string][]int64 `json:"resourceToTagIds"`
}

// Resource shapes, matched on the exact set of element keys.
var (
	databaseShape = []string{"database"}
	tableShape    = []string{"database", "table"}
	columnShape   = []string{"database", "table", "column"}
)

// Read loads a cache file from fs.
func Read(fs afero.Fs, path string) (*Cache, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Parse(f, path)
}

// Parse decodes a cache document.
func Parse(r io.Reader, name string) (*Cache, error) {
	var c Cache
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.WrapParse("json", name, err)
	}
	return &c, nil
}

// DatabaseRecords returns one record per tagged database. Table is empty.
func (c *Cache) DatabaseRecords() ([]tags.Record, error) {
	return c.records(databaseShape)
}

// TableRecords returns one record per tagged table.
func (c *Cache) TableRecords() ([]tags.Record, error) {
	return c.records(tableShape)
}

// ColumnRecords returns one record per tagged column.
func (c *Cache) ColumnRecords() ([]tags.Record, error) {
	return c.records(columnShape)
}

func (c *Cache) records(shape []string) ([]tags.Record, error) {
	var out []tags.Record
	for _, res := range c.ServiceResources {
		if !hasShape(res, shape) {
			continue
		}
		values := make([]string, len(shape))
		for i, key := range shape {
			elem := res.ResourceElements[key]
			if len(elem.Values) == 0 {
				return nil, errors.NewValidationError(key, res.ID, fmt.Sprintf("resource %d has no %s value", res.ID, key))
			}
			values[i] = elem.Values[0]
		}
		names, err := c.tagNames(res.ID)
		if err != nil {
			return nil, err
		}
		rec := tags.Record{Schema: values[0], Tags: strings.Join(names, ",")}
		if len(values) > 1 {
			rec.Table = values[1]
		}
		if len(values) > 2 {
			rec.Attribute = values[2]
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out, nil
}

// tagNames returns the tag names of a resource in cache order.
func (c *Cache) tagNames(id int64) ([]string, error) {
	ids := c.ResourceToTagIDs[strconv.FormatInt(id, 10)]
	names := make([]string, 0, len(ids))
	for _, tagID := range ids {
		tag, ok := c.Tags[strconv.FormatInt(tagID, 10)]
		if !ok {
			return nil, errors.NewValidationError("resourceToTagIds", tagID,
				fmt.Sprintf("resource %d refers to unknown tag id %d", id, tagID))
		}
		names = append(names, tag.Type)
	}
	return names, nil
}

func hasShape(res ServiceResource, shape []string) bool {
	if len(res.ResourceElements) != len(shape) {
		return false
	}
	for key := range res.ResourceElements {
		if !slices.Contains(shape, key) {
			return false
		}
	}
	return true
}
