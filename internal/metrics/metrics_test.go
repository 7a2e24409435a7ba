package metrics_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/internal/metrics"
	"github.com/agentstation/policytool/pkg/policy"
	"github.com/agentstation/policytool/pkg/policysync"
	"github.com/agentstation/policytool/pkg/worklog"
)

func TestRecordAndWrite(t *testing.T) {
	m := metrics.New()

	log := worklog.New()
	log.Add(1, "new tags added to catalog from table tag file", worklog.TagsRegistered, []string{"pii"})
	log.Add(1, "s.t1", worklog.TagsAdded, []string{"pii", "gdpr"})
	log.Add(1, "s.t2", worklog.TagsDeleted, []string{"hr"})
	log.Add(1, "tables not existing in tags file", worklog.NotInSource, []string{"s.x"})
	m.RecordWorklog("table", log)

	m.RecordPolicySync(&policysync.Result{
		DryRun:  true,
		Deleted: []policy.Identity{{Service: "hive", Name: "a"}},
		Created: []policy.Identity{{Service: "hive", Name: "b"}, {Service: "hive", Name: "c"}},
	})
	m.RecordRun("sync-tags", 1500*time.Millisecond, nil)
	m.RecordRun("sync-policies", time.Second, errors.New("boom"))

	path := filepath.Join(t.TempDir(), "policytool.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, `policytool_tag_changes_total{action="added tag",kind="table"} 2`)
	assert.Contains(t, text, `policytool_tag_changes_total{action="deleted tag",kind="table"} 1`)
	assert.Contains(t, text, `policytool_tag_changes_total{action="registered",kind="table"} 1`)
	assert.NotContains(t, text, "not in source")
	assert.Contains(t, text, `policytool_policy_changes_total{action="created",dry_run="true"} 2`)
	assert.Contains(t, text, `policytool_run_duration_seconds{command="sync-tags"} 1.5`)
	assert.Contains(t, text, `policytool_run_success{command="sync-policies"} 0`)
}

func TestRecordNil(t *testing.T) {
	m := metrics.New()
	m.RecordWorklog("column", nil)
	m.RecordPolicySync(nil)
	count, err := testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Zero(t, count)
}
