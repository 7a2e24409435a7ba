// Package metastore resolves table and database locations from the
// relational database backing the table metastore.
package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/location"
)

// DriverName is the database/sql driver used by Open.
const DriverName = "postgres"

const (
	tableLocationQuery = `SELECT s."LOCATION" AS location, t."TBL_TYPE" AS table_type
FROM "TBLS" t
JOIN "DBS" d ON t."DB_ID" = d."DB_ID"
LEFT JOIN "SDS" s ON t."SD_ID" = s."SD_ID"
WHERE d."NAME" = $1 AND t."TBL_NAME" = $2`

	databaseLocationQuery = `SELECT "DB_LOCATION_URI" FROM "DBS" WHERE "NAME" = $1`
)

const virtualView = "VIRTUAL_VIEW"

var identifier = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Queryer runs a query returning one row. *sqlx.DB satisfies it.
type Queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Client looks up locations.
type Client struct {
	db Queryer
}

var _ location.Locator = (*Client)(nil)

// New creates a client on an existing connection.
func New(db Queryer) *Client {
	return &Client{db: db}
}

// Open connects to the metastore database.
func Open(ctx context.Context, dsn string) (*Client, *sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, DriverName, dsn)
	if err != nil {
		return nil, nil, errors.WrapIO("connect", "metastore", err)
	}
	return New(db), db, nil
}

type tableRow struct {
	Location  sql.NullString `db:"location"`
	TableType sql.NullString `db:"table_type"`
}

// Location returns the storage URI of database.table, or of the database
// when table is empty or "*". Views and tables without storage return an
// empty location.
func (c *Client) Location(ctx context.Context, database, table string) (string, error) {
	if err := checkIdentifier(database); err != nil {
		return "", err
	}
	database = strings.ToLower(database)

	if location.IsDatabase(table) {
		var uri sql.NullString
		if err := c.db.GetContext(ctx, &uri, databaseLocationQuery, database); err != nil {
			return "", c.queryError(err, "database", database)
		}
		return uri.String, nil
	}

	if err := checkIdentifier(table); err != nil {
		return "", err
	}
	table = strings.ToLower(table)

	var row tableRow
	if err := c.db.GetContext(ctx, &row, tableLocationQuery, database, table); err != nil {
		return "", c.queryError(err, "table", database+"."+table)
	}
	if row.TableType.String == virtualView {
		return "", nil
	}
	return row.Location.String, nil
}

func (c *Client) queryError(err error, resource, name string) error {
	if err == sql.ErrNoRows {
		nf := errors.NewNotFoundError(resource, name)
		nf.Service = "metastore"
		return nf
	}
	return errors.WrapIO("query", "metastore", err)
}

// checkIdentifier rejects names that are not plain identifiers.
func checkIdentifier(name string) error {
	if !identifier.MatchString(name) {
		return errors.NewValidationError("", name, fmt.Sprintf("%q includes non allowed characters", name))
	}
	return nil
}
