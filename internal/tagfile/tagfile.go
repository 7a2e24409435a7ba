// Package tagfile reads and writes the semicolon separated tag files
// kept next to a project's sources.
package tagfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/tags"
)

// Default file names inside the source directory.
const (
	DefaultTableFile  = "table_tags.csv"
	DefaultColumnFile = "column_tags.csv"
)

// Kind selects the columns of a tag file.
type Kind int

const (
	// Tables files have schema;table;tags.
	Tables Kind = iota
	// Columns files have schema;table;attribute;tags.
	Columns
)

// Header returns the column names of the kind.
func (k Kind) Header() []string {
	if k == Columns {
		return []string{"schema", "table", "attribute", "tags"}
	}
	return []string{"schema", "table", "tags"}
}

func (k Kind) String() string {
	if k == Columns {
		return "column"
	}
	return "table"
}

// Read loads a tag file from fs.
func Read(fs afero.Fs, path string, kind Kind) ([]tags.Record, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Parse(f, path, kind)
}

// Parse reads tag records. Columns are matched by header name so their
// order is free; extra columns are ignored.
func Parse(r io.Reader, name string, kind Kind) ([]tags.Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, parseError(name, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range kind.Header() {
		if _, ok := index[col]; !ok {
			return nil, &errors.ParseError{
				Format:  "csv",
				File:    name,
				Line:    1,
				Column:  1,
				Message: fmt.Sprintf("%s tag file header is missing column %q", kind, col),
			}
		}
	}

	var records []tags.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, parseError(name, err)
		}
		field := func(col string) string {
			return strings.TrimSpace(row[index[col]])
		}
		rec := tags.Record{
			Schema: field("schema"),
			Table:  field("table"),
			Tags:   field("tags"),
		}
		if kind == Columns {
			rec.Attribute = field("attribute")
		}
		if err := validate(rec, kind); err != nil {
			line, _ := reader.FieldPos(0)
			return nil, &errors.ParseError{Format: "csv", File: name, Line: line, Column: 1, Message: err.Error()}
		}
		records = append(records, rec)
	}
}

func validate(rec tags.Record, kind Kind) error {
	if rec.Schema == "" || rec.Table == "" {
		return fmt.Errorf("schema and table must be set")
	}
	if kind == Columns && rec.Attribute == "" {
		return fmt.Errorf("attribute must be set on %s", rec.TableName())
	}
	return nil
}

func parseError(name string, err error) error {
	if perr, ok := err.(*csv.ParseError); ok {
		return &errors.ParseError{
			Format:  "csv",
			File:    name,
			Line:    perr.Line,
			Column:  perr.Column,
			Message: perr.Err.Error(),
			Err:     err,
		}
	}
	return errors.WrapParse("csv", name, err)
}

// Write stores records as a tag file on fs, header first.
func Write(fs afero.Fs, path string, kind Kind, records []tags.Record) error {
	f, err := fs.Create(path)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	if err := Format(f, kind, records); err != nil {
		_ = f.Close()
		return errors.WrapIO("write", path, err)
	}
	return errors.WrapIO("close", path, f.Close())
}

// Format writes records in tag file form.
func Format(w io.Writer, kind Kind, records []tags.Record) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'
	if err := writer.Write(kind.Header()); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{r.Schema, r.Table, r.Tags}
		if kind == Columns {
			row = []string{r.Schema, r.Table, r.Attribute, r.Tags}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Missing returns the paths that do not exist on fs.
func Missing(fs afero.Fs, paths ...string) []string {
	var missing []string
	for _, p := range paths {
		if ok, err := afero.Exists(fs, p); err != nil || !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
