package expander_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/expander"
	"github.com/agentstation/policytool/pkg/location"
	"github.com/agentstation/policytool/pkg/policy"
	"github.com/agentstation/policytool/pkg/tags"
	"github.com/agentstation/policytool/pkg/template"
)

type fakeLocator struct {
	locations map[string]string
	calls     []string
}

func (f *fakeLocator) Location(_ context.Context, database, table string) (string, error) {
	key := database + "." + table
	f.calls = append(f.calls, key)
	loc, ok := f.locations[key]
	if !ok {
		return "", fmt.Errorf("unknown %s", key)
	}
	return loc, nil
}

const commandFile = `[
  {
    "command": "apply_rule",
    "options": {"expandHiveResourceToHdfs": true, "hdfsService": "hdfs_svc"},
    "policy": {
      "service": "hive",
      "name": "${project_name}_${environment}_read",
      "policyType": 0,
      "isEnabled": true,
      "resources": {
        "database": {"values": ["${project_name}_${environment}"]},
        "table": {"values": ["t1", "v1"]},
        "column": {"values": ["*"]}
      },
      "policyItems": [
        {"groups": ["analysts"], "accesses": [{"type": "select", "isAllowed": true}]},
        {"groups": ["etl"], "accesses": [{"type": "update", "isAllowed": true}]},
        {"groups": ["nobody"], "accesses": [{"type": "select", "isAllowed": false}]}
      ]
    }
  },
  {
    "command": "apply_tag_row_rule",
    "filters": [
      {
        "groups": ["analysts"],
        "users": [],
        "tagFilterExprs": [
          {"tags": ["customer"], "filterExpr": "customer_id > 0"},
          {"tags": ["customer", "history"], "filterExpr": "${end_date_column} is null"},
          {"tags": ["employee"], "filterExpr": "1 = 0"}
        ]
      }
    ],
    "policy": {
      "service": "hive",
      "name": "${project_name}_${environment}_rows_${schema}_${table}",
      "policyType": 2,
      "resources": {
        "database": {"values": ["${schema}_${environment}"]},
        "table": {"values": ["${table}"]}
      }
    }
  }
]`

func expansionContext(locator location.Locator) expander.Context {
	return expander.Context{
		Vars: template.NewContext(map[string]any{"project_name": "cobra", "environment": "prod"}),
		Tables: []tags.Record{
			{Schema: "crm", Table: "customers", Tags: "customer,history"},
			{Schema: "crm", Table: "orders", Tags: "customer"},
			{Schema: "crm", Table: "plain", Tags: ""},
		},
		Columns: []tags.Record{
			{Schema: "crm", Table: "customers", Attribute: "valid_to", Tags: "end_date"},
			{Schema: "crm", Table: "customers", Attribute: "valid_to2", Tags: "end_date"},
		},
		Locator: locator,
	}
}

func TestParseCommands(t *testing.T) {
	commands, err := expander.ParseCommands([]byte(commandFile), "ranger_policies.json")
	require.NoError(t, err)
	require.Len(t, commands, 2)

	assert.Equal(t, expander.KindApplyRule, commands[0].Kind)
	assert.True(t, commands[0].Options.ExpandHiveResourceToHDFS)
	assert.Equal(t, "hdfs_svc", commands[0].Options.HDFSService)
	assert.Equal(t, "service", commands[0].Template[0].Key, "template key order is kept")

	assert.Equal(t, expander.KindApplyTagRowRule, commands[1].Kind)
	require.Len(t, commands[1].Filters, 1)
	assert.Len(t, commands[1].Filters[0].TagFilterExprs, 3)
}

func TestParseCommandsErrors(t *testing.T) {
	_, err := expander.ParseCommands([]byte(`[{"command": "drop_everything", "policy": {}}]`), "x.json")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	_, err = expander.ParseCommands([]byte(`[{"command": "apply_rule"}]`), "x.json")
	require.Error(t, err)

	_, err = expander.ParseCommands([]byte(`[1, 2]`), "x.json")
	require.Error(t, err)
}

func TestExpand(t *testing.T) {
	commands, err := expander.ParseCommands([]byte(commandFile), "ranger_policies.json")
	require.NoError(t, err)

	locator := &fakeLocator{locations: map[string]string{
		"cobra_prod.t1": "hdfs://nameservice/warehouse/cobra_prod.db/t1",
		"cobra_prod.v1": "",
	}}
	policies, err := expander.Expand(context.Background(), commands, expansionContext(locator))
	require.NoError(t, err)
	require.Len(t, policies, 4)

	hive := policies[0]
	assert.Equal(t, "cobra_prod_read", hive.Name)
	assert.Equal(t, []string{"cobra_prod"}, hive.Resources["database"].Values)

	hdfs := policies[1]
	assert.Equal(t, policy.Identity{Service: "hdfs_svc", Name: "path_cobra_prod_read"}, hdfs.Identity())
	assert.Equal(t, "Implementing hdfs access for cobra_prod_read. Expanded by policytool.", hdfs.Description)
	assert.Equal(t, []string{"/warehouse/cobra_prod.db/t1"}, hdfs.Resources["path"].Values)
	assert.True(t, *hdfs.Resources["path"].IsRecursive)
	require.Len(t, hdfs.PolicyItems, 2, "item without allowed accesses is dropped")
	assert.Equal(t, []policy.Access{{Type: "read", IsAllowed: true}, {Type: "execute", IsAllowed: true}}, hdfs.PolicyItems[0].Accesses)
	assert.Equal(t, "write", hdfs.PolicyItems[1].Accesses[0].Type)

	customers := policies[2]
	assert.Equal(t, "cobra_prod_rows_crm_customers", customers.Name)
	assert.Equal(t, []string{"crm_prod"}, customers.Resources["database"].Values)
	require.Len(t, customers.RowFilterPolicyItems, 1)
	item := customers.RowFilterPolicyItems[0]
	assert.Equal(t, "customer_id > 0 and valid_to is null", item.RowFilterInfo.FilterExpr)
	assert.Equal(t, []string{"analysts"}, item.Groups)
	assert.Equal(t, []policy.Access{{Type: "select", IsAllowed: true}}, item.Accesses)

	orders := policies[3]
	assert.Equal(t, "cobra_prod_rows_crm_orders", orders.Name)
	assert.Equal(t, "customer_id > 0", orders.RowFilterPolicyItems[0].RowFilterInfo.FilterExpr)
}

func TestApplyRuleValidatesTemplate(t *testing.T) {
	commands, err := expander.ParseCommands([]byte(`[{"command": "apply_rule", "policy": {"name": "x", "resources": {"database": {"values": ["a"]}}}}]`), "x.json")
	require.NoError(t, err)

	_, err = expander.Expand(context.Background(), commands, expansionContext(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not have policyType")
}

func TestApplyRuleMissingVariable(t *testing.T) {
	commands, err := expander.ParseCommands([]byte(`[{"command": "apply_rule", "policy": {
	  "name": "${unknown}", "policyType": 0,
	  "resources": {"database": {"values": ["a"]}},
	  "policyItems": [{"users": ["u"], "accesses": [{"type": "select", "isAllowed": true}]}]}}]`), "x.json")
	require.NoError(t, err)

	_, err = expander.Expand(context.Background(), commands, expansionContext(nil))
	require.Error(t, err)
	assert.True(t, errors.IsMissingVariable(err))
}

func TestPathPolicyErrors(t *testing.T) {
	p := policy.Policy{
		Name:       "p",
		PolicyType: policy.IntPtr(0),
		Resources:  map[string]policy.Resource{"database": {Values: []string{"db"}}},
	}

	_, err := expander.PathPolicy(context.Background(), p, "", &fakeLocator{})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), "hdfsService must be set")

	_, err = expander.PathPolicy(context.Background(), p, "hdfs", nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	p.Resources["database"] = policy.Resource{}
	_, err = expander.PathPolicy(context.Background(), p, "hdfs", &fakeLocator{})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestPathPolicyDatabaseWildcard(t *testing.T) {
	locator := &fakeLocator{locations: map[string]string{
		"a.*": "hdfs://nn/a.db",
		"b.*": "hdfs://nn/b.db",
	}}
	p := policy.Policy{
		Name:        "p",
		PolicyType:  policy.IntPtr(0),
		Resources:   map[string]policy.Resource{"database": {Values: []string{"a", "b"}}, "table": {Values: []string{"*"}}},
		PolicyItems: []policy.Item{{Users: []string{"u"}, Accesses: []policy.Access{{Type: "select", IsAllowed: true}}}},
	}
	hp, err := expander.PathPolicy(context.Background(), p, "hdfs", locator)
	require.NoError(t, err)
	require.NotNil(t, hp)
	assert.Equal(t, []string{"/a.db", "/b.db"}, hp.Resources["path"].Values)
	assert.Equal(t, []string{"a.*", "b.*"}, locator.calls)
}

func TestTagPolicyExpansion(t *testing.T) {
	commands, err := expander.ParseCommands([]byte(`[{"command": "apply_rule",
	  "options": {"expandHiveResourceToHdfs": true},
	  "policy": {"service": "tags", "name": "pii", "policyType": 0,
	    "resources": {"tag": {"values": ["pii"]}},
	    "policyItems": [{"groups": ["g"], "accesses": [{"type": "hive:select", "isAllowed": true}]}]}}]`), "x.json")
	require.NoError(t, err)

	policies, err := expander.Expand(context.Background(), commands, expansionContext(nil))
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, []policy.Access{
		{Type: "hive:select", IsAllowed: true},
		{Type: "hdfs:read", IsAllowed: true},
		{Type: "hdfs:execute", IsAllowed: true},
	}, policies[0].PolicyItems[0].Accesses)
}
