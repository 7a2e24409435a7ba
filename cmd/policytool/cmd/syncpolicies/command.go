// Package syncpolicies implements the sync-policies command.
package syncpolicies

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/agentstation/policytool/internal/appcontext"
	"github.com/agentstation/policytool/internal/cmd/cmdutil"
	"github.com/agentstation/policytool/internal/cmd/output"
	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/expander"
	"github.com/agentstation/policytool/pkg/logging"
	"github.com/agentstation/policytool/pkg/policysync"
	"github.com/agentstation/policytool/pkg/template"
)

// DefaultPolicyFile is the policy command file inside --srcdir.
const DefaultPolicyFile = "ranger_policies.json"

// LoadETLPrefix marks policies owned by the load jobs of every project.
const LoadETLPrefix = "load_etl_"

// Flags holds the sync-policies flags.
type Flags struct {
	Source      *cmdutil.SourceFlags
	ProjectName string
	PolicyFile  string
	DryRun      bool
	Prefixes    []string
}

// NewCommand creates the sync-policies command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "sync-policies",
		GroupID: "sync",
		Short:   "Expand policy rules and sync them to the policy service",
		Long: `Sync-policies expands the rule commands of the policy file with the tag
files and the environment's variables, then makes the policy service hold
exactly those policies.

Policies whose name contains <project>_<environment> or load_etl_ and that
are no longer produced by the rules are deleted. Other policies are left
alone. With --dry-run nothing is changed; the decisions are printed.`,
		Example: `  policytool sync-policies -p sales
  policytool sync-policies -p sales -e prod --dry-run
  policytool sync-policies -p sales --prefix sales_shared_`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app, flags)
		},
	}

	flags.Source = cmdutil.AddSourceFlags(cmd, "dev")
	cmd.Flags().StringVarP(&flags.ProjectName, "project-name", "p", "", "Project to create policies for")
	cmd.Flags().StringVar(&flags.PolicyFile, "policyfile", DefaultPolicyFile, "Policy command file name inside --srcdir")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Show the changes without applying them")
	cmd.Flags().BoolVar(&flags.DryRun, "dryrun", false, "Alias of --dry-run")
	cmd.Flags().StringSliceVar(&flags.Prefixes, "prefix", nil, "Extra policy name parts that mark policies as managed")
	_ = cmd.Flags().MarkHidden("dryrun")
	_ = cmd.MarkFlagRequired("project-name")

	return cmd
}

// ManagedPrefixes returns the name parts of the policies the run manages.
func (f *Flags) ManagedPrefixes(environment string) []string {
	prefixes := []string{f.ProjectName + "_" + environment, LoadETLPrefix}
	return append(prefixes, f.Prefixes...)
}

func run(cmd *cobra.Command, app appcontext.Interface, flags *Flags) error {
	ctx := cmd.Context()
	logger := app.Logger()

	env, err := app.Environment(flags.Source.Environment)
	if err != nil {
		return err
	}
	policyPath := flags.Source.Path(flags.PolicyFile)
	sources, err := cmdutil.ReadSources(app.FS(), flags.Source, logger, policyPath)
	if err != nil || sources == nil {
		return err
	}

	data, err := afero.ReadFile(app.FS(), policyPath)
	if err != nil {
		return errors.WrapIO("read", policyPath, err)
	}
	commands, err := expander.ParseCommands(data, policyPath)
	if err != nil {
		return err
	}

	ectx := expander.Context{
		Vars: template.NewContext(
			map[string]any{
				"project_name": flags.ProjectName,
				"environment":  env.Name,
			},
			env.VariableMap(),
		),
		Tables:  sources.Tables,
		Columns: sources.Columns,
	}
	if env.MetastoreDSN != "" {
		ectx.Locator, err = app.Locator(ctx, env)
		if err != nil {
			return err
		}
	}

	ctx = logging.WithLogger(ctx, logger)
	policies, err := expander.Expand(ctx, commands, ectx)
	if err != nil {
		return err
	}
	logger.Debug().Int("policies", len(policies)).Int("commands", len(commands)).Msg("Expanded policy rules")

	client, err := app.PolicyService(env)
	if err != nil {
		return err
	}
	syncer := policysync.New(client, policysync.WithDryRun(flags.DryRun), policysync.WithLogger(logger))
	result, err := syncer.Sync(ctx, flags.ManagedPrefixes(env.Name), policies)
	app.Metrics().RecordPolicySync(result)
	if result != nil {
		if perr := output.NewPrinter(app.Out(), output.Format(app.OutputFormat())).PolicySync(result); perr != nil {
			return perr
		}
	}
	return err
}
