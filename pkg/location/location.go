// Package location is the contract for resolving where a table or a
// database keeps its files.
package location

import (
	"context"
	"net/url"
)

// Locator resolves the storage location of a table, or of a database
// when table is empty or "*". An empty location means the object has no
// storage of its own, as for a view.
type Locator interface {
	Location(ctx context.Context, database, table string) (string, error)
}

// Path drops scheme and authority from a location URI:
// hdfs://nn/my/path.db becomes /my/path.db.
func Path(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		return location
	}
	return u.Path
}

// IsDatabase reports whether table selects the database itself.
func IsDatabase(table string) bool {
	return table == "" || table == "*"
}
