package importcache

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/internal/appcontext"
	"github.com/agentstation/policytool/internal/tagfile"
	fakes "github.com/agentstation/policytool/internal/testutil"
	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/tags"
)

const cacheJSON = `{
  "tags": {"1": {"type": "pii"}, "2": {"type": "hr"}},
  "serviceResources": [
    {"id": 10, "resourceElements": {"database": {"values": ["s"]}, "table": {"values": ["t1"]}}},
    {"id": 11, "resourceElements": {"database": {"values": ["s"]}, "table": {"values": ["tmp"]}}},
    {"id": 12, "resourceElements": {"database": {"values": ["s"]}, "table": {"values": ["t1"]}, "column": {"values": ["c1"]}}}
  ],
  "resourceToTagIds": {"10": [1], "11": [2], "12": [1, 2]}
}`

func newApp(t *testing.T, catalog *fakes.Catalog) *appcontext.Mock {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "cache.json", []byte(cacheJSON), 0o644))
	return &appcontext.Mock{Filesystem: fs, Output: &bytes.Buffer{}, CatalogClient: catalog}
}

func execute(t *testing.T, app appcontext.Interface, args ...string) error {
	t.Helper()
	cmd := NewCommand(app)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestImportToFiles(t *testing.T) {
	app := newApp(t, nil)

	require.NoError(t, execute(t, app, "-e", "prod", "--policycachefile", "cache.json",
		"--tabletagfile", "out/table_tags.csv", "--columntagfile", "out/column_tags.csv", "--ignore", "s.tmp"))

	tables, err := tagfile.Read(app.FS(), "out/table_tags.csv", tagfile.Tables)
	require.NoError(t, err)
	assert.Equal(t, []tags.Record{{Schema: "s", Table: "t1", Tags: "pii"}}, tables)

	columns, err := tagfile.Read(app.FS(), "out/column_tags.csv", tagfile.Columns)
	require.NoError(t, err)
	assert.Equal(t, []tags.Record{{Schema: "s", Table: "t1", Attribute: "c1", Tags: "pii,hr"}}, columns)
}

func TestImportRequiresBothFiles(t *testing.T) {
	app := newApp(t, nil)

	err := execute(t, app, "-e", "prod", "--policycachefile", "cache.json", "--tabletagfile", "t.csv")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	exists, _ := afero.Exists(app.FS(), "t.csv")
	assert.False(t, exists)
}

func TestImportSyncsCatalog(t *testing.T) {
	catalog := fakes.NewCatalog("pii", "hr")
	catalog.AddEntity("g1", "hive_table", "s.t1@cl", "stale")
	catalog.AddEntity("g2", "hive_table", "s.tmp@cl")
	catalog.AddEntity("g3", "hive_table", "s.t9@cl", "pii")
	catalog.AddEntity("g4", "hive_column", "s.t1.c1@cl")
	catalog.AddEntity("g5", "hive_column", "s.t1.c2@cl", "hr")
	app := newApp(t, catalog)

	require.NoError(t, execute(t, app, "-e", "prod", "--policycachefile", "cache.json"))

	assert.Equal(t, []string{"pii"}, catalog.Tags("g1"))
	assert.Equal(t, []string{"hr"}, catalog.Tags("g2"))
	assert.Empty(t, catalog.Tags("g3"))
	assert.Equal(t, []string{"hr", "pii"}, catalog.Tags("g4"))
	assert.Empty(t, catalog.Tags("g5"))
}

func TestImportMissingCacheFile(t *testing.T) {
	app := newApp(t, fakes.NewCatalog())
	err := execute(t, app, "-e", "prod", "--policycachefile", "nope.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.json")
}
