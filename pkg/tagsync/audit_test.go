package tagsync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/pkg/tags"
	"github.com/agentstation/policytool/pkg/tagsync"
)

func TestAudit(t *testing.T) {
	catalog := newFakeCatalog("a", "b")
	catalog.addEntity("t1", "hive_table", "s.t1@c", "a")
	catalog.addEntity("t2", "hive_table", "s.extra@c")
	catalog.addEntity("c1", "hive_column", "s.t1.x@c", "b")
	syncer := newSyncer(t, catalog)

	report, err := syncer.Audit(context.Background(),
		[]tags.Record{
			{Schema: "s", Table: "t1", Tags: "b,new"},
			{Schema: "s", Table: "missing", Tags: "a"},
		},
		[]tags.Record{
			{Schema: "s", Table: "t1", Attribute: "x", Tags: "b"},
			{Schema: "s", Table: "t1", Attribute: "y", Tags: ""},
		},
	)
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Equal(t, []string{"new"}, report.MissingTags)
	assert.Equal(t, []string{"s.extra"}, report.TablesOnlyInCatalog)
	assert.Equal(t, []string{"s.missing"}, report.TablesOnlyInSource)
	assert.Equal(t, []string{"s.t1.y"}, report.ColumnsOnlyInSource)
	assert.Equal(t, []tagsync.TagDiff{{
		Entity:        "s.t1",
		OnlyInSource:  []string{"b", "new"},
		OnlyInCatalog: []string{"a"},
	}}, report.TableDiffs)
	assert.Empty(t, report.ColumnDiffs)

	assert.Zero(t, catalog.addCalls+catalog.removeCalls, "audit never mutates")
	assert.Empty(t, catalog.createCalls)
}
