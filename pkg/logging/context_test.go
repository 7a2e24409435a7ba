package logging_test

import (
	"context"
	"testing"

	"github.com/agentstation/policytool/pkg/logging"
	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Run("FromContext falls back to default", func(t *testing.T) {
		assert.Same(t, logging.Default(), logging.FromContext(context.Background()))
	})

	t.Run("WithLogger round trips", func(t *testing.T) {
		tl := logging.NewTestLogger(t)
		ctx := logging.WithLogger(context.Background(), tl.Logger)
		logging.FromContext(ctx).Info().Msg("hello")
		assert.True(t, tl.Contains("hello"))
	})

	t.Run("WithRunID stamps every line", func(t *testing.T) {
		tl := logging.NewTestLogger(t)
		ctx := logging.WithLogger(context.Background(), tl.Logger)
		ctx = logging.WithRunID(ctx, "abc-123")
		ctx = logging.WithEnvironment(ctx, "prod")
		ctx = logging.WithFields(ctx, map[string]any{"tables": 2, "dry_run": true})

		logging.FromContext(ctx).Info().Msg("sync")
		assert.Equal(t, "abc-123", logging.RunID(ctx))
		assert.True(t, tl.ContainsAll(`"run_id":"abc-123"`, `"environment":"prod"`, `"tables":2`, `"dry_run":true`))
	})

	t.Run("RunID empty when unset", func(t *testing.T) {
		assert.Empty(t, logging.RunID(context.Background()))
	})
}
