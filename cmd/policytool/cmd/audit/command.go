// Package audit implements the audit command.
package audit

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/policytool/internal/appcontext"
	"github.com/agentstation/policytool/internal/cmd/cmdutil"
	"github.com/agentstation/policytool/internal/cmd/output"
	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/tags"
	"github.com/agentstation/policytool/pkg/tagsync"
)

// Flags holds the audit flags.
type Flags struct {
	Source     *cmdutil.SourceFlags
	FailOnDiff bool
}

// NewCommand creates the audit command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "audit",
		GroupID: "inspect",
		Short:   "Compare tag files with the metadata catalog",
		Long: `Audit lists the differences between the tag files and the catalog
without changing anything: tags the catalog does not define, tables and
columns present on one side only, and entities whose tags differ.`,
		Example: `  policytool audit -e dev
  policytool audit -e prod -o json --fail-on-diff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app, flags)
		},
	}

	flags.Source = cmdutil.AddSourceFlags(cmd, "")
	cmd.Flags().BoolVar(&flags.FailOnDiff, "fail-on-diff", false, "Exit with an error when any difference is found")

	return cmd
}

func run(cmd *cobra.Command, app appcontext.Interface, flags *Flags) error {
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

	syncer := tagsync.New(catalog, tagsync.WithLogger(logger))
	report, err := syncer.Audit(cmd.Context(),
		tags.WithEnvironment(sources.Tables, env.Name),
		tags.WithEnvironment(sources.Columns, env.Name))
	if err != nil {
		return err
	}
	if err := output.NewPrinter(app.Out(), output.Format(app.OutputFormat())).Audit(report); err != nil {
		return err
	}
	if flags.FailOnDiff && !report.Clean() {
		return errors.NewValidationError("audit", nil, "tag files and catalog differ")
	}
	return nil
}
