package tagsync

import (
	"context"

	"github.com/agentstation/policytool/pkg/tags"
)

// TagDiff lists the tags one entity has only on one side.
type TagDiff struct {
	Entity        string   `json:"entity" yaml:"entity"`
	OnlyInSource  []string `json:"only_in_source,omitempty" yaml:"only_in_source,omitempty"`
	OnlyInCatalog []string `json:"only_in_catalog,omitempty" yaml:"only_in_catalog,omitempty"`
}

// AuditReport compares tag files with the catalog without changing it.
type AuditReport struct {
	MissingTags          []string  `json:"missing_tags,omitempty" yaml:"missing_tags,omitempty"`
	TablesOnlyInCatalog  []string  `json:"tables_only_in_catalog,omitempty" yaml:"tables_only_in_catalog,omitempty"`
	TablesOnlyInSource   []string  `json:"tables_only_in_source,omitempty" yaml:"tables_only_in_source,omitempty"`
	ColumnsOnlyInCatalog []string  `json:"columns_only_in_catalog,omitempty" yaml:"columns_only_in_catalog,omitempty"`
	ColumnsOnlyInSource  []string  `json:"columns_only_in_source,omitempty" yaml:"columns_only_in_source,omitempty"`
	TableDiffs           []TagDiff `json:"table_diffs,omitempty" yaml:"table_diffs,omitempty"`
	ColumnDiffs          []TagDiff `json:"column_diffs,omitempty" yaml:"column_diffs,omitempty"`
}

// Clean reports whether source and catalog agree.
func (r *AuditReport) Clean() bool {
	return len(r.MissingTags) == 0 &&
		len(r.TablesOnlyInCatalog) == 0 && len(r.TablesOnlyInSource) == 0 &&
		len(r.ColumnsOnlyInCatalog) == 0 && len(r.ColumnsOnlyInSource) == 0 &&
		len(r.TableDiffs) == 0 && len(r.ColumnDiffs) == 0
}

// Audit compares tables and columns records with the catalog.
func (s *Syncer) Audit(ctx context.Context, tables, columns []tags.Record) (*AuditReport, error) {
	report := &AuditReport{}

	known, err := s.catalog.KnownTags(ctx)
	if err != nil {
		return nil, err
	}
	used := tags.FromSource(tables)
	used.AddSet(tags.FromSource(columns))
	report.MissingTags = used.Difference(tags.NewSet(known...)).Sorted()

	report.TablesOnlyInCatalog, report.TablesOnlyInSource, report.TableDiffs, err = s.compare(ctx, tableKind, tables)
	if err != nil {
		return nil, err
	}
	report.ColumnsOnlyInCatalog, report.ColumnsOnlyInSource, report.ColumnDiffs, err = s.compare(ctx, columnKind, columns)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Bool("clean", report.Clean()).Int("table_diffs", len(report.TableDiffs)).
		Int("column_diffs", len(report.ColumnDiffs)).Msg("Audit finished")
	return report, nil
}

func (s *Syncer) compare(ctx context.Context, k kind, records []tags.Record) (onlyCatalog, onlySource []string, diffs []TagDiff, err error) {
	if len(records) == 0 {
		return nil, nil, nil, nil
	}
	remote, err := s.fetch(ctx, k, records)
	if err != nil {
		return nil, nil, nil, err
	}

	listed := tags.Set{}
	for _, t := range targets(k, records) {
		listed.Add(t.key)
		entity, ok := remote[t.key]
		if !ok {
			onlySource = append(onlySource, t.key)
			continue
		}
		have := tags.NewSet(entity.Tags...)
		diff := TagDiff{
			Entity:        t.key,
			OnlyInSource:  t.want.Difference(have).Sorted(),
			OnlyInCatalog: have.Difference(t.want).Sorted(),
		}
		if len(diff.OnlyInSource) > 0 || len(diff.OnlyInCatalog) > 0 {
			diffs = append(diffs, diff)
		}
	}

	extra := tags.Set{}
	for key := range remote {
		if !listed.Has(key) {
			extra.Add(key)
		}
	}
	return extra.Sorted(), onlySource, diffs, nil
}
