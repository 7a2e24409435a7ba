package output

import (
	"io"
	"strconv"
	"strings"

	"github.com/agentstation/policytool/pkg/policy"
	"github.com/agentstation/policytool/pkg/policysync"
	"github.com/agentstation/policytool/pkg/tagsync"
	"github.com/agentstation/policytool/pkg/worklog"
)

// Printer renders command results in one format.
type Printer struct {
	w      io.Writer
	format Format
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

func (p *Printer) table() bool {
	return p.format == FormatTable || p.format == ""
}

func (p *Printer) print(raw any, data func() Data) error {
	if p.table() {
		return NewFormatter(FormatTable).Format(p.w, data())
	}
	return NewFormatter(p.format).Format(p.w, raw)
}

// Worklog prints the entries of a sync, one line per entry.
func (p *Printer) Worklog(title string, log *worklog.Worklog) error {
	entries := log.Entries()
	if entries == nil {
		entries = []worklog.Entry{}
	}
	raw := map[string]any{"sync": title, "entries": entries}
	return p.print(raw, func() Data {
		data := Data{
			Headers:         []string{"Run", "Subject", "Action", "Tags"},
			ColumnAlignment: []Align{AlignRight, AlignLeft, AlignLeft, AlignLeft},
		}
		for _, e := range entries {
			data.Rows = append(data.Rows, []string{
				strconv.Itoa(e.Run), e.Subject, string(e.Action), strings.Join(e.Items, ", "),
			})
		}
		return data
	})
}

// PolicySync prints the decisions of a policy sync.
func (p *Printer) PolicySync(result *policysync.Result) error {
	return p.print(result, func() Data {
		data := Data{Headers: []string{"Action", "Service", "Policy", "Dry Run"}}
		add := func(action string, ids []policy.Identity) {
			for _, id := range ids {
				data.Rows = append(data.Rows, []string{action, id.Service, id.Name, strconv.FormatBool(result.DryRun)})
			}
		}
		add("delete", result.Deleted)
		add("update", result.Updated)
		add("create", result.Created)
		return data
	})
}

// Audit prints the differences between tag files and catalog.
func (p *Printer) Audit(report *tagsync.AuditReport) error {
	return p.print(report, func() Data {
		data := Data{Headers: []string{"Finding", "Subject", "Tags"}}
		row := func(finding, subject string, items []string) {
			data.Rows = append(data.Rows, []string{finding, subject, strings.Join(items, ", ")})
		}
		if len(report.MissingTags) > 0 {
			row("tags missing in catalog", "", report.MissingTags)
		}
		for _, t := range report.TablesOnlyInCatalog {
			row("table only in catalog", t, nil)
		}
		for _, t := range report.TablesOnlyInSource {
			row("table only in source", t, nil)
		}
		for _, c := range report.ColumnsOnlyInCatalog {
			row("column only in catalog", c, nil)
		}
		for _, c := range report.ColumnsOnlyInSource {
			row("column only in source", c, nil)
		}
		for _, d := range report.TableDiffs {
			diffRows(row, "table", d)
		}
		for _, d := range report.ColumnDiffs {
			diffRows(row, "column", d)
		}
		return data
	})
}

func diffRows(row func(string, string, []string), kind string, d tagsync.TagDiff) {
	if len(d.OnlyInSource) > 0 {
		row("catalog missing tags for "+kind, d.Entity, d.OnlyInSource)
	}
	if len(d.OnlyInCatalog) > 0 {
		row("source missing tags for "+kind, d.Entity, d.OnlyInCatalog)
	}
}
