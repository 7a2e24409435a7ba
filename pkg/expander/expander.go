package expander

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/location"
	"github.com/agentstation/policytool/pkg/logging"
	"github.com/agentstation/policytool/pkg/policy"
	"github.com/agentstation/policytool/pkg/tags"
	"github.com/agentstation/policytool/pkg/template"
)

// MissingEndDateColumn is bound to end_date_column for tables without a
// column tagged end_date.
const MissingEndDateColumn = "<END_DATE_COLUMN_MISSING>"

// Context is everything an expansion may read.
type Context struct {
	Vars    template.Context
	Tables  []tags.Record
	Columns []tags.Record
	Locator location.Locator
}

// Expand runs every command and concatenates the produced policies in
// command order.
func Expand(ctx context.Context, commands []Command, ectx Context) ([]policy.Policy, error) {
	var out []policy.Policy
	for _, cmd := range commands {
		var (
			policies []policy.Policy
			err      error
		)
		switch cmd.Kind {
		case KindApplyRule:
			policies, err = ApplyRule(ctx, cmd, ectx)
		case KindApplyTagRowRule:
			policies, err = ApplyTagRowRule(cmd, ectx)
		default:
			err = errors.NewValidationError("command", string(cmd.Kind), fmt.Sprintf("unknown command %q", cmd.Kind))
		}
		if err != nil {
			return nil, err
		}
		out = append(out, policies...)
	}
	return out, nil
}

// ApplyRule validates the template, applies the variables and, when
// asked to, expands hive resources to hdfs.
func ApplyRule(ctx context.Context, cmd Command, ectx Context) ([]policy.Policy, error) {
	raw, err := policy.FromTree(cmd.Template)
	if err != nil {
		return nil, err
	}
	if err := policy.Validate(raw); err != nil {
		return nil, err
	}

	tree, err := template.Apply(cmd.Template, ectx.Vars)
	if err != nil {
		return nil, err
	}
	p, err := policy.FromTree(tree)
	if err != nil {
		return nil, err
	}
	if !cmd.Options.ExpandHiveResourceToHDFS {
		return []policy.Policy{p}, nil
	}

	kind, err := policy.ResourceType(p)
	if err != nil {
		return nil, err
	}
	switch kind {
	case policy.ResourceTag:
		return []policy.Policy{policy.ExtendTagPolicyWithHDFS(p)}, nil
	case policy.ResourceDatabase:
		hp, err := PathPolicy(ctx, p, cmd.Options.HDFSService, ectx.Locator)
		if err != nil {
			return nil, err
		}
		if hp == nil {
			return []policy.Policy{p}, nil
		}
		return []policy.Policy{p, *hp}, nil
	default:
		return []policy.Policy{p}, nil
	}
}

// PathPolicy derives an hdfs path policy granting on storage what p
// grants on databases and tables. It returns nil when none of the
// selected objects has a storage location.
func PathPolicy(ctx context.Context, p policy.Policy, hdfsService string, locator location.Locator) (*policy.Policy, error) {
	if hdfsService == "" {
		return nil, errors.NewConfigError("expander",
			"option hdfsService must be set if expandHiveResourceToHdfs is true on a policy with database resource", nil)
	}
	if locator == nil {
		return nil, errors.NewConfigError("expander",
			"a table location client must be configured when using expandHiveResourceToHdfs", nil)
	}

	databases := p.Resources[policy.ResourceDatabase].Values
	if len(databases) == 0 {
		return nil, errors.NewValidationError("resources.database", nil,
			fmt.Sprintf("database resource of policy %s has no values", p.Name))
	}
	tables := []string{"*"}
	if t, ok := p.Resources["table"]; ok && len(t.Values) > 0 {
		tables = t.Values
	}

	logger := logging.FromContext(ctx)
	seen := tags.Set{}
	var paths []string
	for _, db := range databases {
		for _, table := range tables {
			loc, err := locator.Location(ctx, db, table)
			if err != nil {
				return nil, err
			}
			if loc == "" {
				logger.Debug().Str("database", db).Str("table", table).Msg("No storage location, skipped")
				continue
			}
			path := location.Path(loc)
			if seen.Has(path) {
				continue
			}
			seen.Add(path)
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		logger.Warn().Str("policy", p.Name).Msg("No storage locations found, hdfs policy not created")
		return nil, nil
	}

	return &policy.Policy{
		Service:        hdfsService,
		Name:           "path_" + p.Name,
		PolicyType:     policy.IntPtr(policy.TypeAccess),
		Description:    fmt.Sprintf("Implementing hdfs access for %s. Expanded by policytool.", p.Name),
		IsEnabled:      p.IsEnabled,
		IsAuditEnabled: p.IsAuditEnabled,
		Resources: map[string]policy.Resource{
			policy.ResourcePath: {
				Values:      paths,
				IsRecursive: policy.BoolPtr(true),
				IsExcludes:  policy.BoolPtr(false),
			},
		},
		PolicyItems:     policy.PathItems(p.PolicyItems),
		DenyPolicyItems: policy.PathItems(p.DenyPolicyItems),
	}, nil
}

// ApplyTagRowRule builds one row filter policy per table that at least
// one filter expression applies to.
func ApplyTagRowRule(cmd Command, ectx Context) ([]policy.Policy, error) {
	columns := tags.GroupByTable(ectx.Columns)

	var out []policy.Policy
	for _, table := range ectx.Tables {
		tableTags := table.TagSet()

		var items []any
		for _, filter := range cmd.Filters {
			var exprs []string
			for _, tfe := range filter.TagFilterExprs {
				if tags.NewSet(tfe.Tags...).SubsetOf(tableTags) {
					exprs = append(exprs, tfe.FilterExpr)
				}
			}
			if len(exprs) == 0 {
				continue
			}
			items = append(items, rowFilterItem(filter, strings.Join(exprs, " and ")))
		}
		if len(items) == 0 {
			continue
		}

		vars := ectx.Vars.Extend(map[string]any{
			"schema":          table.Schema,
			"table":           table.Table,
			"end_date_column": endDateColumn(columns[table.TableName()]),
		})
		tmpl := template.Set(cmd.Template, "rowFilterPolicyItems", items)
		tree, err := template.Apply(tmpl, vars)
		if err != nil {
			return nil, err
		}
		p, err := policy.FromTree(tree)
		if err != nil {
			return nil, err
		}
		if err := policy.Validate(p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func rowFilterItem(filter RowFilter, expr string) map[string]any {
	return map[string]any{
		"groups":     filter.Groups,
		"users":      filter.Users,
		"conditions": []any{},
		"accesses": []any{
			map[string]any{"isAllowed": true, "type": "select"},
		},
		"rowFilterInfo": map[string]any{"filterExpr": expr},
		"delegateAdmin": false,
	}
}

// endDateColumn returns the first column of the table tagged end_date.
func endDateColumn(columns []tags.Record) string {
	for _, c := range columns {
		if c.TagSet().Has("end_date") {
			return c.Attribute
		}
	}
	return MissingEndDateColumn
}
