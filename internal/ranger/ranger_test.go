package ranger_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/internal/ranger"
	"github.com/agentstation/policytool/internal/transport"
	pkgerrors "github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/policy"
)

func newClient(t *testing.T, handler http.HandlerFunc, opts ...ranger.Option) *ranger.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return ranger.New(server.URL, transport.New("ranger"), opts...)
}

func TestFindPolicyByName(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/service/public/v2/api/service/hive/policy/p1":
			_, _ = w.Write([]byte(`{"id":7,"service":"hive","name":"p1","policyType":0,"zoneName":"z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p, err := client.FindPolicyByName(context.Background(), "hive", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "z", p.Extra["zoneName"])

	_, err = client.FindPolicyByName(context.Background(), "hive", "nope")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "hive/nope")
}

func TestFindPoliciesByNamePartPages(t *testing.T) {
	var starts []string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/service/public/v2/api/policy", r.URL.Path)
		assert.Equal(t, "hive", q.Get("serviceName"))
		assert.Equal(t, "proj_dev", q.Get("policyNamePartial"))
		assert.Equal(t, "2", q.Get("pageSize"))
		starts = append(starts, q.Get("startIndex"))

		start, _ := strconv.Atoi(q.Get("startIndex"))
		var page []map[string]any
		for i := start; i < 3 && i < start+2; i++ {
			page = append(page, map[string]any{"name": fmt.Sprintf("proj_dev_%d", i)})
		}
		_ = json.NewEncoder(w).Encode(page)
	}, ranger.WithPageSize(2))

	policies, err := client.FindPoliciesByNamePart(context.Background(), "hive", "proj_dev")
	require.NoError(t, err)
	require.Len(t, policies, 3)
	assert.Equal(t, "proj_dev_2", policies[2].Name)
	assert.Equal(t, []string{"0", "2"}, starts)
}

func TestMutations(t *testing.T) {
	var calls []string
	var bodies []map[string]any
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.RequestURI())
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			var body map[string]any
			require.NoError(t, json.Unmarshal(data, &body))
			bodies = append(bodies, body)
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	p := policy.Policy{Service: "hive", Name: "p1", PolicyType: policy.IntPtr(2)}
	ctx := context.Background()
	require.NoError(t, client.CreatePolicy(ctx, p))
	require.NoError(t, client.UpdatePolicy(ctx, 42, p))
	require.NoError(t, client.DeletePolicyByName(ctx, "hive", "p1"))

	assert.Equal(t, []string{
		"POST /service/plugins/policies",
		"PUT /service/plugins/policies/42",
		"DELETE /service/public/v2/api/policy?policyname=p1&servicename=hive",
	}, calls)
	require.Len(t, bodies, 2)
	assert.Equal(t, float64(2), bodies[0]["policyType"])
}

func TestMutationFailure(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad policy"))
	})

	err := client.DeletePolicyByName(context.Background(), "hive", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "couldn't delete policy hive/p1")
	assert.Contains(t, err.Error(), "bad policy")
	var apiErr *pkgerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
