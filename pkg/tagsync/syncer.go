// Package tagsync reconciles the tags of catalog entities with the tags
// listed in tag files. Every sync call is a sequence of whole attempts;
// an attempt recomputes the diff from scratch, so a retried run never
// repeats a change that already landed.
package tagsync

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/location"
	"github.com/agentstation/policytool/pkg/logging"
	"github.com/agentstation/policytool/pkg/tags"
	"github.com/agentstation/policytool/pkg/worklog"
)

// Syncer applies desired tag assignments to a catalog.
type Syncer struct {
	catalog    CatalogClient
	locator    location.Locator
	retries    int
	retryDelay time.Duration
	logger     *zerolog.Logger
}

// New creates a Syncer.
func New(catalog CatalogClient, opts ...Option) *Syncer {
	s := &Syncer{
		catalog:    catalog,
		retryDelay: DefaultRetryDelay,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncTableTags makes the tags of the tables in scope equal to records.
// The scope is every table of the schemas named in records.
func (s *Syncer) SyncTableTags(ctx context.Context, records []tags.Record, opts ...SyncOption) (*worklog.Worklog, error) {
	o := applySyncOptions(opts)
	return s.withRetries(ctx, "sync table tags", func(ctx context.Context, run int, log *worklog.Worklog) error {
		return s.syncEntities(ctx, run, tableKind, records, o, log)
	})
}

// SyncColumnTags makes the tags of the columns in scope equal to records.
// The scope is every column of the tables named in records.
func (s *Syncer) SyncColumnTags(ctx context.Context, records []tags.Record, opts ...SyncOption) (*worklog.Worklog, error) {
	o := applySyncOptions(opts)
	return s.withRetries(ctx, "sync column tags", func(ctx context.Context, run int, log *worklog.Worklog) error {
		return s.syncEntities(ctx, run, columnKind, records, o, log)
	})
}

// SyncTableStorageTags puts the table tags on the storage path of each
// table. Tables without a storage location are skipped.
func (s *Syncer) SyncTableStorageTags(ctx context.Context, records []tags.Record) (*worklog.Worklog, error) {
	if s.locator == nil {
		return worklog.New(), errors.NewConfigError("tagsync", "a table location client is required to sync storage tags", nil)
	}
	return s.withRetries(ctx, "sync storage tags", func(ctx context.Context, run int, log *worklog.Worklog) error {
		return s.syncStorage(ctx, run, records, log)
	})
}

type attemptFunc func(ctx context.Context, run int, log *worklog.Worklog) error

// withRetries runs attempt until it succeeds, fails with a fatal error,
// or retries are exhausted. All attempts write into the same worklog.
func (s *Syncer) withRetries(ctx context.Context, operation string, attempt attemptFunc) (*worklog.Worklog, error) {
	log := worklog.New()
	logger := s.logger.With().Str("operation", operation).Logger()

	run := 0
	op := func() error {
		run++
		logger.Debug().Int("run", run).Msg("Starting attempt")
		err := attempt(ctx, run, log)
		if err != nil && (ctx.Err() != nil || !errors.IsRetryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Int("run", run).Dur("retry_in", next).Msg("Attempt failed, retrying")
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), uint64(s.retries)),
		ctx,
	)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		logger.Error().Err(err).Int("runs", run).Msg("Giving up")
		return log, err
	}
	logger.Info().Int("runs", run).Int("changes", log.Len()).Msg("Done")
	return log, nil
}

func (s *Syncer) syncEntities(ctx context.Context, run int, k kind, records []tags.Record, o SyncOptions, log *worklog.Worklog) error {
	if err := s.registerTags(ctx, run, k.name, records, log); err != nil {
		return err
	}

	remote, err := s.fetch(ctx, k, records)
	if err != nil {
		return err
	}

	desired := targets(k, records)
	listed := tags.Set{}
	var missing []string
	for _, t := range desired {
		listed.Add(t.key)
		if _, ok := remote[t.key]; !ok {
			missing = append(missing, t.key)
		}
	}
	if len(missing) > 0 {
		return &errors.NotFoundError{Run: run, Resource: k.name, IDs: missing}
	}

	unlisted := tags.Set{}
	for key := range remote {
		if !listed.Has(key) {
			unlisted.Add(key)
		}
	}
	if len(unlisted) > 0 {
		if o.ClearNotListed {
			for _, key := range unlisted.Sorted() {
				desired = append(desired, target{key: key, want: tags.Set{}})
			}
		} else {
			log.Add(run, fmt.Sprintf("%ss not existing in tags file", k.name), worklog.NotInSource, unlisted.Sorted())
		}
	}

	for _, t := range desired {
		entity := remote[t.key]
		if err := s.apply(ctx, run, t.key, entity.GUID, t.want, tags.NewSet(entity.Tags...), log); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) syncStorage(ctx context.Context, run int, records []tags.Record, log *worklog.Worklog) error {
	if err := s.registerTags(ctx, run, tableKind.name, records, log); err != nil {
		return err
	}

	byTable := tags.GroupByTable(records)
	for _, t := range targets(tableKind, records) {
		r := byTable[t.key][0]
		loc, err := s.locator.Location(ctx, r.Schema, r.Table)
		if err != nil {
			return err
		}
		if loc == "" {
			log.Add(run, t.key, worklog.Skipped, nil)
			continue
		}

		path := location.Path(loc)
		guid, err := s.catalog.RegisterPathEntity(ctx, path)
		if err != nil {
			return err
		}
		current, err := s.catalog.EntityTags(ctx, guid)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, run, path, guid, t.want, tags.NewSet(current...), log); err != nil {
			return err
		}
	}
	return nil
}

// registerTags creates the tag definitions the records use but the
// catalog does not know yet.
func (s *Syncer) registerTags(ctx context.Context, run int, kindName string, records []tags.Record, log *worklog.Worklog) error {
	known, err := s.catalog.KnownTags(ctx)
	if err != nil {
		return err
	}
	missing := tags.FromSource(records).Difference(tags.NewSet(known...)).Sorted()
	if len(missing) == 0 {
		return nil
	}
	if err := s.catalog.CreateTags(ctx, missing); err != nil {
		return err
	}
	log.Add(run, fmt.Sprintf("new tags added to catalog from %s tag file", kindName), worklog.TagsRegistered, missing)
	return nil
}

// fetch returns the catalog entities in scope keyed by qualified name
// without cluster suffix.
func (s *Syncer) fetch(ctx context.Context, k kind, records []tags.Record) (map[string]Entity, error) {
	remote := make(map[string]Entity)
	for _, scope := range k.scopes(records) {
		entities, err := s.catalog.SearchEntities(ctx, k.typeName, scope...)
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			remote[tags.StripQualifiedName(e.QualifiedName)] = e
		}
	}
	return remote, nil
}

// apply adds the missing tags in one call and deletes the surplus tags
// one by one. Failed deletes are collected and reported together after
// the succeeded ones are logged.
func (s *Syncer) apply(ctx context.Context, run int, subject, guid string, want, have tags.Set, log *worklog.Worklog) error {
	if add := want.Difference(have).Sorted(); len(add) > 0 {
		if err := s.catalog.AddTags(ctx, guid, add); err != nil {
			return err
		}
		log.Add(run, subject, worklog.TagsAdded, add)
	}

	remove := have.Difference(want).Sorted()
	if len(remove) == 0 {
		return nil
	}
	var (
		failures errors.PartialFailure
		deleted  []string
	)
	for _, tag := range remove {
		err := s.catalog.RemoveTag(ctx, guid, tag)
		failures.Record(tag, err)
		if err == nil {
			deleted = append(deleted, tag)
		}
	}
	if len(deleted) > 0 {
		log.Add(run, subject, worklog.TagsDeleted, deleted)
	}
	return failures.Err("delete tags", subject)
}
