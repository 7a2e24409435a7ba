package policy_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policytool/pkg/policy"
)

const rangerDoc = `{
  "id": 42,
  "guid": "abc",
  "isEnabled": true,
  "version": 3,
  "service": "hive",
  "name": "cobra_prod_read",
  "policyType": 0,
  "resources": {"database": {"values": ["cobra_prod"]}, "table": {"values": ["*"]}},
  "policyItems": [{"groups": ["analysts"], "accesses": [{"type": "select", "isAllowed": true}], "delegateAdmin": false}],
  "zoneName": "",
  "options": {"POLICY_PRIORITY": "0"}
}`

func TestUnmarshalKeepsUnknownFields(t *testing.T) {
	var p policy.Policy
	require.NoError(t, json.Unmarshal([]byte(rangerDoc), &p))

	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, policy.Identity{Service: "hive", Name: "cobra_prod_read"}, p.Identity())
	assert.Equal(t, 0, p.Type())
	assert.Contains(t, p.Extra, "options")
	assert.Contains(t, p.Extra, "zoneName")

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, rangerDoc, string(data))
}

func TestMerge(t *testing.T) {
	var existing policy.Policy
	require.NoError(t, json.Unmarshal([]byte(rangerDoc), &existing))

	var desired policy.Policy
	require.NoError(t, json.Unmarshal([]byte(`{
	  "service": "hive",
	  "name": "cobra_prod_read",
	  "policyType": 0,
	  "description": "new",
	  "resources": {"database": {"values": ["cobra_prod", "other"]}},
	  "policyItems": [],
	  "denyPolicyItems": [{"users": ["bob"], "accesses": [{"type": "select", "isAllowed": true}]}]
	}`), &desired))

	merged, err := policy.Merge(existing, desired)
	require.NoError(t, err)

	assert.Equal(t, int64(42), merged.ID, "id is kept from the existing policy")
	assert.Equal(t, "new", merged.Description)
	assert.Equal(t, []string{"cobra_prod", "other"}, merged.Resources["database"].Values)
	assert.NotContains(t, merged.Resources, "table", "resources are replaced as a whole")
	assert.Empty(t, merged.PolicyItems, "explicitly empty items clear the existing ones")
	require.Len(t, merged.DenyPolicyItems, 1)
	assert.Contains(t, merged.Extra, "options")
}

func TestFromTreeRejectsMalformed(t *testing.T) {
	_, err := policy.FromTree(map[string]any{"name": "x", "policyType": "zero"})
	require.Error(t, err)
}

func TestClone(t *testing.T) {
	p := policy.Policy{Name: "a", PolicyItems: []policy.Item{{Users: []string{"u"}}}}
	c := p.Clone()
	c.PolicyItems[0].Users[0] = "changed"
	assert.Equal(t, "u", p.PolicyItems[0].Users[0])
}
