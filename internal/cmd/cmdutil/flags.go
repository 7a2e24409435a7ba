// Package cmdutil provides flags and helpers shared by policytool commands.
package cmdutil

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/agentstation/policytool/internal/tagfile"
	"github.com/agentstation/policytool/pkg/tags"
)

// DefaultSrcDir is where tag and policy files live in a project.
const DefaultSrcDir = "src/main/tags"

// SourceFlags locate the tag files of a project.
type SourceFlags struct {
	SrcDir      string
	Environment string
	TableFile   string
	ColumnFile  string
}

// AddSourceFlags adds --srcdir, --environment and the tag file names.
func AddSourceFlags(cmd *cobra.Command, defaultEnv string) *SourceFlags {
	flags := &SourceFlags{}

	cmd.Flags().StringVarP(&flags.SrcDir, "srcdir", "s", DefaultSrcDir,
		"Directory holding the tag files")
	cmd.Flags().StringVarP(&flags.Environment, "environment", "e", defaultEnv,
		"Target environment from the config file")
	cmd.Flags().StringVar(&flags.TableFile, "tabletagfile", tagfile.DefaultTableFile,
		"Table tag file name inside --srcdir")
	cmd.Flags().StringVar(&flags.ColumnFile, "columntagfile", tagfile.DefaultColumnFile,
		"Column tag file name inside --srcdir")
	if defaultEnv == "" {
		_ = cmd.MarkFlagRequired("environment")
	}

	return flags
}

// Path returns name inside the source directory.
func (f *SourceFlags) Path(name string) string {
	return filepath.Join(f.SrcDir, name)
}

// Sources holds the records of both tag files.
type Sources struct {
	Tables  []tags.Record
	Columns []tags.Record
}

// ReadSources reads both tag files plus any extra required files. When a
// file is missing it logs them and returns nil without error: a project
// without tag files has nothing to sync.
func ReadSources(fs afero.Fs, flags *SourceFlags, logger *zerolog.Logger, extra ...string) (*Sources, error) {
	tablePath := flags.Path(flags.TableFile)
	columnPath := flags.Path(flags.ColumnFile)

	required := append([]string{tablePath, columnPath}, extra...)
	if missing := tagfile.Missing(fs, required...); len(missing) > 0 {
		logger.Warn().Msg("Following files are missing: " + strings.Join(missing, ", "))
		logger.Warn().Msg("Will not run, exiting!")
		return nil, nil
	}

	tables, err := tagfile.Read(fs, tablePath, tagfile.Tables)
	if err != nil {
		return nil, err
	}
	columns, err := tagfile.Read(fs, columnPath, tagfile.Columns)
	if err != nil {
		return nil, err
	}
	return &Sources{Tables: tables, Columns: columns}, nil
}
