// Package policy is the access policy document exchanged with the policy
// service. Fields the tool does not model are kept in Extra and written
// back unchanged.
package policy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/template"
)

// Policy types.
const (
	TypeAccess    = 0
	TypeDataMask  = 1
	TypeRowFilter = 2
)

// Policy is one access policy.
type Policy struct {
	ID                   int64               `json:"id,omitempty"`
	GUID                 string              `json:"guid,omitempty"`
	IsEnabled            *bool               `json:"isEnabled,omitempty"`
	Version              int64               `json:"version,omitempty"`
	Service              string              `json:"service,omitempty"`
	Name                 string              `json:"name,omitempty" validate:"required"`
	PolicyType           *int                `json:"policyType,omitempty" validate:"required,oneof=0 1 2"`
	Description          string              `json:"description,omitempty"`
	IsAuditEnabled       *bool               `json:"isAuditEnabled,omitempty"`
	Resources            map[string]Resource `json:"resources,omitempty" validate:"required,min=1"`
	PolicyItems          []Item              `json:"policyItems,omitempty"`
	DenyPolicyItems      []Item              `json:"denyPolicyItems,omitempty"`
	AllowExceptions      []Item              `json:"allowExceptions,omitempty"`
	DenyExceptions       []Item              `json:"denyExceptions,omitempty"`
	RowFilterPolicyItems []RowFilterItem     `json:"rowFilterPolicyItems,omitempty"`
	DataMaskPolicyItems  []map[string]any    `json:"dataMaskPolicyItems,omitempty"`
	PolicyLabels         []string            `json:"policyLabels,omitempty"`

	// Extra holds document fields not listed above.
	Extra map[string]any `json:"-"`

	// present lists the top-level keys the document was decoded from.
	present map[string]struct{}
}

// Resource selects the objects a policy applies to.
type Resource struct {
	Values      []string `json:"values"`
	IsExcludes  *bool    `json:"isExcludes,omitempty"`
	IsRecursive *bool    `json:"isRecursive,omitempty"`
}

// Item grants or denies accesses to principals.
type Item struct {
	Users         []string    `json:"users,omitempty"`
	Groups        []string    `json:"groups,omitempty"`
	Roles         []string    `json:"roles,omitempty"`
	Accesses      []Access    `json:"accesses"`
	Conditions    []Condition `json:"conditions,omitempty"`
	DelegateAdmin bool        `json:"delegateAdmin"`
}

// Access is one access type, such as hive:select.
type Access struct {
	Type      string `json:"type"`
	IsAllowed bool   `json:"isAllowed"`
}

// Condition restricts an item.
type Condition struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

// RowFilterItem is an item of a row filter policy.
type RowFilterItem struct {
	Users         []string      `json:"users,omitempty"`
	Groups        []string      `json:"groups,omitempty"`
	Roles         []string      `json:"roles,omitempty"`
	Accesses      []Access      `json:"accesses"`
	Conditions    []Condition   `json:"conditions"`
	RowFilterInfo RowFilterInfo `json:"rowFilterInfo"`
	DelegateAdmin bool          `json:"delegateAdmin"`
}

// RowFilterInfo carries the filter expression.
type RowFilterInfo struct {
	FilterExpr string `json:"filterExpr"`
}

// Identity is the (service, name) pair a policy is matched on.
type Identity struct {
	Service string `json:"service" yaml:"service"`
	Name    string `json:"name" yaml:"name"`
}

// String renders service/name.
func (i Identity) String() string {
	return i.Service + "/" + i.Name
}

// Identity returns the identity of the policy.
func (p Policy) Identity() Identity {
	return Identity{Service: p.Service, Name: p.Name}
}

// Type returns the policy type, or -1 when unset.
func (p Policy) Type() int {
	if p.PolicyType == nil {
		return -1
	}
	return *p.PolicyType
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}

type plainPolicy Policy

// MarshalJSON writes the modelled fields plus Extra.
func (p Policy) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(plainPolicy(p))
	if err != nil || len(p.Extra) == 0 {
		return data, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for key, value := range p.Extra {
		if _, ok := doc[key]; !ok {
			doc[key] = value
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads a policy and keeps unknown fields in Extra.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var fields plainPolicy
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Policy(fields)
	p.Extra = nil
	p.present = make(map[string]struct{}, len(raw))
	known := knownKeys()
	for key, value := range raw {
		p.present[key] = struct{}{}
		if _, ok := known[key]; ok {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[key] = v
	}
	return nil
}

var (
	knownOnce sync.Once
	known     map[string]struct{}
)

func knownKeys() map[string]struct{} {
	knownOnce.Do(func() {
		known = make(map[string]struct{})
		t := reflect.TypeOf(plainPolicy{})
		for i := 0; i < t.NumField(); i++ {
			name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
			if name != "" && name != "-" {
				known[name] = struct{}{}
			}
		}
	})
	return known
}

// FromTree decodes a template tree (ordered or plain maps) into a Policy.
func FromTree(tree any) (Policy, error) {
	data, err := json.Marshal(template.Plain(tree))
	if err != nil {
		return Policy{}, errors.WrapParse("json", "policy", err)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, errors.NewValidationError("policy", nil, fmt.Sprintf("malformed policy document: %v", err))
	}
	return p, nil
}

// Clone returns a deep copy.
func (p Policy) Clone() Policy {
	data, err := json.Marshal(p)
	if err != nil {
		return p
	}
	var out Policy
	if err := json.Unmarshal(data, &out); err != nil {
		return p
	}
	out.present = p.present
	return out
}

// Merge overlays desired on existing the way a document update does:
// every top-level key set in desired replaces the existing value, keys
// absent from desired keep their existing value.
func Merge(existing, desired Policy) (Policy, error) {
	base, err := toMap(existing)
	if err != nil {
		return Policy{}, err
	}
	overlay, err := toMap(desired)
	if err != nil {
		return Policy{}, err
	}

	for key, value := range overlay {
		base[key] = value
	}
	// keys explicitly present but empty in desired are omitted by
	// marshalling; clear them too
	for key := range desired.present {
		if _, ok := overlay[key]; !ok {
			delete(base, key)
		}
	}

	data, err := json.Marshal(base)
	if err != nil {
		return Policy{}, errors.WrapParse("json", "policy", err)
	}
	var merged Policy
	if err := json.Unmarshal(data, &merged); err != nil {
		return Policy{}, errors.WrapParse("json", "policy", err)
	}
	return merged, nil
}

func toMap(p Policy) (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapParse("json", "policy", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapParse("json", "policy", err)
	}
	return m, nil
}
