// Package synctags implements the sync-tags command.
package synctags

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/policytool/internal/appcontext"
	"github.com/agentstation/policytool/internal/cmd/cmdutil"
	"github.com/agentstation/policytool/internal/cmd/output"
	"github.com/agentstation/policytool/pkg/tags"
	"github.com/agentstation/policytool/pkg/tagsync"
	"github.com/agentstation/policytool/pkg/worklog"
)

// Flags holds the sync-tags flags.
type Flags struct {
	Source         *cmdutil.SourceFlags
	HDFS           bool
	Retry          int
	ClearNotListed bool
}

// NewCommand creates the sync-tags command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "sync-tags",
		GroupID: "sync",
		Short:   "Sync tags from tag files to the metadata catalog",
		Long: `Sync-tags makes the catalog tags of the listed tables and columns equal
to the tag files. Schemas get the _<environment> suffix.

With --hdfs the table tags are also set on the storage path entity of
each table. A run that fails is retried as a whole when --retry is given;
the number of attempts is the --retry count times the environment's
retries setting.`,
		Example: `  policytool sync-tags -e dev
  policytool sync-tags -e prod --hdfs -r
  policytool sync-tags -e dev --clear-not-listed -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app, flags)
		},
	}

	flags.Source = cmdutil.AddSourceFlags(cmd, "")
	cmd.Flags().BoolVar(&flags.HDFS, "hdfs", false, "Also tag the storage path of each table")
	cmd.Flags().CountVarP(&flags.Retry, "retry", "r", "Retry on failure, repeat to multiply the configured retries")
	cmd.Flags().BoolVar(&flags.ClearNotListed, "clear-not-listed", false,
		"Remove tags from catalog entities of the synced schemas that are not in the tag files")

	return cmd
}

func run(cmd *cobra.Command, app appcontext.Interface, flags *Flags) error {
	ctx := cmd.Context()
	logger := app.Logger()

	env, err := app.Environment(flags.Source.Environment)
	if err != nil {
		return err
	}
	sources, err := cmdutil.ReadSources(app.FS(), flags.Source, logger)
	if err != nil || sources == nil {
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
	clearOpt := tagsync.WithClearNotListed(flags.ClearNotListed)

	tables := tags.WithEnvironment(sources.Tables, env.Name)
	columns := tags.WithEnvironment(sources.Columns, env.Name)

	logger.Info().Msg("Syncing tags for tables")
	log, err := syncer.SyncTableTags(ctx, tables, clearOpt)
	if err := report(app, printer, "table", log, err); err != nil {
		return err
	}

	logger.Info().Msg("Syncing tags for columns")
	log, err = syncer.SyncColumnTags(ctx, columns, clearOpt)
	if err := report(app, printer, "column", log, err); err != nil {
		return err
	}

	if flags.HDFS {
		logger.Info().Msg("Syncing tags for table storage")
		log, err = syncer.SyncTableStorageTags(ctx, tables)
		if err := report(app, printer, "storage", log, err); err != nil {
			return err
		}
	}
	return nil
}

// report records and prints a worklog, also when the sync failed part way.
func report(app appcontext.Interface, printer *output.Printer, kind string, log *worklog.Worklog, syncErr error) error {
	app.Metrics().RecordWorklog(kind, log)
	if err := printer.Worklog(kind, log); err != nil {
		return err
	}
	if syncErr != nil {
		return fmt.Errorf("%w\ntag sync not complete, fix errors and re-run", syncErr)
	}
	return nil
}
