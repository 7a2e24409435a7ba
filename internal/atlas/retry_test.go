package atlas_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/internal/atlas"
	"github.com/agentstation/policytool/internal/transport"
	pkgerrors "github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/logging"
	"github.com/agentstation/policytool/pkg/tags"
	"github.com/agentstation/policytool/pkg/tagsync"
)

func TestSyncRetriesRequestTimeouts(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(200 * time.Millisecond):
		}
	}))
	t.Cleanup(server.Close)

	httpClient := transport.New("atlas", transport.WithTimeout(20*time.Millisecond))
	client := atlas.New(server.URL+"/api/atlas/", httpClient, atlas.WithLogger(logging.NewNopLogger()))
	syncer := tagsync.New(client,
		tagsync.WithLogger(logging.NewNopLogger()),
		tagsync.WithRetries(3),
		tagsync.WithRetryDelay(0),
	)

	_, err := syncer.SyncTableTags(context.Background(), []tags.Record{{Schema: "s", Table: "t1", Tags: "pii"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, int32(4), requests.Load())
}

func TestSyncDoesNotRetryCancelledRun(t *testing.T) {
	var requests atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := atlas.New(server.URL+"/api/atlas/", transport.New("atlas"), atlas.WithLogger(logging.NewNopLogger()))
	syncer := tagsync.New(client,
		tagsync.WithLogger(logging.NewNopLogger()),
		tagsync.WithRetries(3),
		tagsync.WithRetryDelay(0),
	)

	_, err := syncer.SyncTableTags(ctx, []tags.Record{{Schema: "s", Table: "t1", Tags: "pii"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load())
}
