package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentstation/policytool/cmd/policytool/cmd/audit"
	"github.com/agentstation/policytool/cmd/policytool/cmd/importcache"
	"github.com/agentstation/policytool/cmd/policytool/cmd/syncpolicies"
	"github.com/agentstation/policytool/cmd/policytool/cmd/synctags"
	"github.com/agentstation/policytool/internal/cmd/output"
	"github.com/agentstation/policytool/pkg/logging"
)

// Execute runs the policytool CLI with the given arguments. The duration
// and outcome of the command are recorded, and written to the metrics
// file when one is set.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)

	start := time.Now()
	cmd, err := rootCmd.ExecuteContextC(ctx)
	if cmd == nil || cmd == rootCmd || !cmd.Runnable() {
		return err
	}

	a.metrics.RecordRun(cmd.Name(), time.Since(start), err)
	if a.settings.MetricsFile != "" {
		if werr := a.metrics.WriteTextfile(a.settings.MetricsFile); werr != nil {
			a.logger.Error().Err(werr).Str("path", a.settings.MetricsFile).Msg("Failed to write metrics")
		}
	}
	return err
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "policytool",
		Short:   "Tag and access policy management for data lake projects",
		Version: a.version,
		Long: `Policytool keeps the metadata catalog and the policy service of a data
lake in line with the tag files and policy rules kept in each project.

Tags of tables and columns are read from ';' separated files, policies are
expanded from rule templates. Environments, service URLs and credentials
come from the config file.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "sync",
		Title: "Sync Commands:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "inspect",
		Title: "Inspect Commands:",
	})

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.settings.ConfigFile, "config", "c", a.settings.ConfigFile,
		"config file (default is $POLICYTOOL_CONFIG or ~/.config/policytool/config.json)")
	flags.CountVarP(&a.settings.Verbose, "verbose", "v", "verbose output, repeat for trace")
	flags.StringVar(&a.settings.LogLevel, "log-level", a.settings.LogLevel,
		"log level: trace, debug, info, warn, error (overrides -v)")
	flags.StringVarP(&a.settings.Format, "format", "o", a.settings.Format, "output format: table, json, yaml")
	flags.StringVar(&a.settings.MetricsFile, "metrics-file", a.settings.MetricsFile,
		"write run metrics to this Prometheus textfile")

	rootCmd.SetVersionTemplate("policytool {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	if _, err := output.ParseFormat(a.settings.Format); err != nil {
		return err
	}

	logger := NewLogger(a.settings).With().Str("command", cmd.Name()).Logger()
	ctx := logging.WithRunID(logging.WithLogger(cmd.Context(), &logger), uuid.NewString())
	a.logger = logging.FromContext(ctx)
	cmd.SetContext(ctx)
	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(synctags.NewCommand(a))
	rootCmd.AddCommand(syncpolicies.NewCommand(a))
	rootCmd.AddCommand(importcache.NewCommand(a))
	rootCmd.AddCommand(audit.NewCommand(a))
	rootCmd.AddCommand(a.newVersionCommand())
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.out, "policytool %s (commit %s, built %s by %s)\n",
				a.version, a.commit, a.date, a.builtBy)
			return err
		},
	}
}

// ExitOnError prints an error and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
