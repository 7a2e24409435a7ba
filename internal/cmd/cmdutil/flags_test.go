package cmdutil

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/pkg/logging"
)

func TestReadSources(t *testing.T) {
	fs := afero.NewMemMapFs()
	flags := &SourceFlags{SrcDir: "/src", TableFile: "table_tags.csv", ColumnFile: "column_tags.csv"}
	logger := logging.NewTestLogger(t)

	sources, err := ReadSources(fs, flags, logger.Logger)
	require.NoError(t, err)
	assert.Nil(t, sources)
	assert.True(t, logger.Contains("Following files are missing: /src/table_tags.csv, /src/column_tags.csv"))

	require.NoError(t, afero.WriteFile(fs, "/src/table_tags.csv", []byte("schema;table;tags\ns;t;pii\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/column_tags.csv", []byte("schema;table;attribute;tags\ns;t;c;\n"), 0o644))

	sources, err = ReadSources(fs, flags, logger.Logger)
	require.NoError(t, err)
	require.NotNil(t, sources)
	assert.Len(t, sources.Tables, 1)
	assert.Len(t, sources.Columns, 1)
}

func TestAddSourceFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	flags := AddSourceFlags(cmd, "dev")
	require.NoError(t, cmd.ParseFlags([]string{"--srcdir", "/p"}))
	assert.Equal(t, "/p", flags.SrcDir)
	assert.Equal(t, "dev", flags.Environment)
	assert.Equal(t, "/p/column_tags.csv", flags.Path(flags.ColumnFile))
}
