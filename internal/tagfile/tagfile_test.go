package tagfile_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/internal/tagfile"
	pkgerrors "github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/tags"
)

func TestParseTables(t *testing.T) {
	input := "schema;table;tags\nsales;orders;pii,gdpr\nsales;items;\n"
	records, err := tagfile.Parse(strings.NewReader(input), "table_tags.csv", tagfile.Tables)
	require.NoError(t, err)
	assert.Equal(t, []tags.Record{
		{Schema: "sales", Table: "orders", Tags: "pii,gdpr"},
		{Schema: "sales", Table: "items", Tags: ""},
	}, records)
}

func TestParseColumnsAnyOrder(t *testing.T) {
	input := "tags;attribute;table;schema\npii;email;customers;crm\n"
	records, err := tagfile.Parse(strings.NewReader(input), "column_tags.csv", tagfile.Columns)
	require.NoError(t, err)
	assert.Equal(t, []tags.Record{{Schema: "crm", Table: "customers", Attribute: "email", Tags: "pii"}}, records)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  tagfile.Kind
		want  string
	}{
		{"missing column", "schema;table;tags\n", tagfile.Columns, `missing column "attribute"`},
		{"empty table", "schema;table;tags\nsales;;pii\n", tagfile.Tables, "table_tags.csv:2:1"},
		{"wrong field count", "schema;table;tags\nsales;orders\n", tagfile.Tables, "wrong number of fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tagfile.Parse(strings.NewReader(tt.input), "table_tags.csv", tt.kind)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			var perr *pkgerrors.ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestParseEmptyFile(t *testing.T) {
	records, err := tagfile.Parse(strings.NewReader(""), "x", tagfile.Tables)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWriteThenRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	records := []tags.Record{
		{Schema: "crm", Table: "customers", Attribute: "email", Tags: "pii,gdpr"},
		{Schema: "crm", Table: "customers", Attribute: "id", Tags: ""},
	}
	require.NoError(t, tagfile.Write(fs, "/out/column_tags.csv", tagfile.Columns, records))

	data, err := afero.ReadFile(fs, "/out/column_tags.csv")
	require.NoError(t, err)
	assert.Equal(t, "schema;table;attribute;tags\ncrm;customers;email;pii,gdpr\ncrm;customers;id;\n", string(data))

	got, err := tagfile.Read(fs, "/out/column_tags.csv", tagfile.Columns)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestFormatTables(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tagfile.Format(&buf, tagfile.Tables, []tags.Record{{Schema: "s", Table: "t", Tags: "a"}}))
	assert.Equal(t, "schema;table;tags\ns;t;a\n", buf.String())
}

func TestMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/table_tags.csv", []byte("schema;table;tags\n"), 0o644))

	assert.Equal(t, []string{"/src/column_tags.csv"}, tagfile.Missing(fs, "/src/table_tags.csv", "/src/column_tags.csv"))

	_, err := tagfile.Read(fs, "/src/column_tags.csv", tagfile.Columns)
	require.Error(t, err)
	var ioErr *pkgerrors.IOError
	assert.ErrorAs(t, err, &ioErr)
}
