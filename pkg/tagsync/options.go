package tagsync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/policytool/pkg/location"
)

// DefaultRetryDelay is the pause between two attempts.
const DefaultRetryDelay = 60 * time.Second

// Option configures a Syncer.
type Option func(*Syncer)

// WithRetries sets how many times a failed attempt is repeated.
func WithRetries(n int) Option {
	return func(s *Syncer) {
		if n < 0 {
			n = 0
		}
		s.retries = n
	}
}

// WithRetryDelay sets the fixed pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Syncer) {
		s.retryDelay = d
	}
}

// WithLocator sets the table location client used for storage tags.
func WithLocator(l location.Locator) Option {
	return func(s *Syncer) {
		s.locator = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// SyncOptions holds per-call options.
type SyncOptions struct {
	// ClearNotListed removes every tag from catalog entities in scope
	// that the tag file does not list.
	ClearNotListed bool
}

// SyncOption configures a single sync call.
type SyncOption func(*SyncOptions)

// WithClearNotListed enables or disables clearing unlisted entities.
func WithClearNotListed(clear bool) SyncOption {
	return func(o *SyncOptions) {
		o.ClearNotListed = clear
	}
}

func applySyncOptions(opts []SyncOption) SyncOptions {
	var o SyncOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
