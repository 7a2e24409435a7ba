// Package importcache implements the import-policy-cache command.
package importcache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/policytool/internal/appcontext"
	"github.com/agentstation/policytool/internal/cmd/output"
	"github.com/agentstation/policytool/internal/policycache"
	"github.com/agentstation/policytool/internal/tagfile"
	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/tags"
	"github.com/agentstation/policytool/pkg/tagsync"
	"github.com/agentstation/policytool/pkg/worklog"
)

// Flags holds the import-policy-cache flags.
type Flags struct {
	Environment string
	CacheFile   string
	TableFile   string
	ColumnFile  string
	HDFS        bool
	Retry       int
	Ignore      []string
}

// NewCommand creates the import-policy-cache command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "import-policy-cache",
		GroupID: "sync",
		Short:   "Rebuild catalog tags from a policy cache file",
		Long: `Import-policy-cache reads the tag section of a policy cache file copied
from a query engine host. Use it when the catalog lost tags the policy
service still knows.

With --tabletagfile and --columntagfile the tags are written to tag files.
Without them the catalog is synced so that it equals the cache: tags of
entities not in the cache are removed. Set both files or neither.`,
		Example: `  policytool import-policy-cache -e prod --policycachefile hive_tags.json
  policytool import-policy-cache -e prod --policycachefile hive_tags.json \
    --tabletagfile table_tags.csv --columntagfile column_tags.csv
  policytool import-policy-cache -e prod --policycachefile hive_tags.json --hdfs --ignore s.tmp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.Environment, "environment", "e", "", "Target environment from the config file")
	cmd.Flags().StringVar(&flags.CacheFile, "policycachefile", "", "Policy cache file with tags")
	cmd.Flags().StringVar(&flags.TableFile, "tabletagfile", "", "Write table tags to this file instead of syncing")
	cmd.Flags().StringVar(&flags.ColumnFile, "columntagfile", "", "Write column tags to this file instead of syncing")
	cmd.Flags().BoolVar(&flags.HDFS, "hdfs", false, "Also tag the storage path of each table, when syncing")
	cmd.Flags().CountVarP(&flags.Retry, "retry", "r", "Retry on failure, repeat to multiply the configured retries")
	cmd.Flags().StringSliceVar(&flags.Ignore, "ignore", nil, "Tables to leave out, as schema.table")
	_ = cmd.MarkFlagRequired("environment")
	_ = cmd.MarkFlagRequired("policycachefile")

	return cmd
}

func run(cmd *cobra.Command, app appcontext.Interface, flags *Flags) error {
	if (flags.TableFile == "") != (flags.ColumnFile == "") {
		return errors.NewValidationError("tabletagfile", nil,
			"either both table tag and column tag files must be set or neither")
	}

	cache, err := policycache.Read(app.FS(), flags.CacheFile)
	if err != nil {
		return err
	}
	tables, err := cache.TableRecords()
	if err != nil {
		return err
	}
	columns, err := cache.ColumnRecords()
	if err != nil {
		return err
	}
	tables = tags.Filter(tables, flags.Ignore)
	columns = tags.Filter(columns, flags.Ignore)

	logger := app.Logger()
	if flags.TableFile != "" {
		if err := tagfile.Write(app.FS(), flags.TableFile, tagfile.Tables, tables); err != nil {
			return err
		}
		if err := tagfile.Write(app.FS(), flags.ColumnFile, tagfile.Columns, columns); err != nil {
			return err
		}
		logger.Info().Int("tables", len(tables)).Int("columns", len(columns)).
			Str("table_file", flags.TableFile).Str("column_file", flags.ColumnFile).Msg("Wrote tag files")
		return nil
	}

	return syncCatalog(cmd, app, flags, tables, columns)
}

func syncCatalog(cmd *cobra.Command, app appcontext.Interface, flags *Flags, tables, columns []tags.Record) error {
	ctx := cmd.Context()
	logger := app.Logger()

	env, err := app.Environment(flags.Environment)
	if err != nil {
		return err
	}
	catalog, err := app.Catalog(env)
	if err != nil {
		return err
	}
	opts := []tagsync.Option{
		tagsync.WithRetries(flags.Retry * env.Retries),
		tagsync.WithRetryDelay(env.RetryDelay),
		tagsync.WithLogger(logger),
	}
	if flags.HDFS {
		locator, err := app.Locator(ctx, env)
		if err != nil {
			return err
		}
		opts = append(opts, tagsync.WithLocator(locator))
	}
	syncer := tagsync.New(catalog, opts...)
	printer := output.NewPrinter(app.Out(), output.Format(app.OutputFormat()))
	clearOpt := tagsync.WithClearNotListed(true)

	log, err := syncer.SyncTableTags(ctx, tables, clearOpt)
	if err := report(app, printer, "table", log, err); err != nil {
		return err
	}
	log, err = syncer.SyncColumnTags(ctx, columns, clearOpt)
	if err := report(app, printer, "column", log, err); err != nil {
		return err
	}
	if flags.HDFS {
		log, err = syncer.SyncTableStorageTags(ctx, tables)
		if err := report(app, printer, "storage", log, err); err != nil {
			return err
		}
	}
	return nil
}

func report(app appcontext.Interface, printer *output.Printer, kind string, log *worklog.Worklog, syncErr error) error {
	app.Metrics().RecordWorklog(kind, log)
	if err := printer.Worklog(kind, log); err != nil {
		return err
	}
	if syncErr != nil {
		return fmt.Errorf("%w\npolicy cache import not complete, fix errors and re-run", syncErr)
	}
	return nil
}
