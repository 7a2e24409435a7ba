package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/internal/config"
	"github.com/agentstation/policytool/pkg/policysync"
)

const rulesFile = `[
  {
    "command": "apply_rule",
    "policy": {
      "service": "hive",
      "name": "${project_name}_${environment}_read",
      "policyType": 0,
      "resources": {"database": {"values": ["${project_name}_${environment}"]}},
      "policyItems": [{"groups": ["analysts"], "accesses": [{"type": "select", "isAllowed": true}]}]
    }
  }
]`

// policyServer answers like a policy service holding one stale policy.
type policyServer struct {
	mu    sync.Mutex
	calls []string
}

func (s *policyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls = append(s.calls, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/service/public/v2/api/policy":
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("policyNamePartial") == "sales_prod" {
			_, _ = w.Write([]byte(`[{"id": 7, "service": "hive", "name": "sales_prod_old", "policyType": 0}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	case r.Method == http.MethodGet:
		http.NotFound(w, r)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestExecuteSyncPolicies(t *testing.T) {
	server := &policyServer{}
	ts := httptest.NewServer(server)
	defer ts.Close()

	fs := afero.NewMemMapFs()
	for path, content := range map[string]string{
		"src/main/tags/table_tags.csv":       "schema;table;tags\nsales;t1;pii\n",
		"src/main/tags/column_tags.csv":      "schema;table;attribute;tags\n",
		"src/main/tags/ranger_policies.json": rulesFile,
	} {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}

	app, out := newTestApp(t, WithFS(fs), WithConfigFile(&config.File{
		Environments: []config.Environment{{
			Name:         "prod",
			Retries:      1,
			RangerAPIURL: ts.URL,
			Auth:         config.Auth{Method: config.AuthNone},
		}},
	}))

	require.NoError(t, app.Execute(context.Background(),
		[]string{"sync-policies", "-p", "sales", "-e", "prod", "-o", "json"}))

	assert.Equal(t, []string{
		"GET /service/public/v2/api/policy",
		"GET /service/public/v2/api/policy",
		"DELETE /service/public/v2/api/policy",
		"GET /service/public/v2/api/service/hive/policy/sales_prod_read",
		"POST /service/plugins/policies",
	}, server.calls)

	var result policysync.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Len(t, result.Deleted, 1)
	assert.Equal(t, "sales_prod_old", result.Deleted[0].Name)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "sales_prod_read", result.Created[0].Name)
}
