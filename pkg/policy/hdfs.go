package policy

import (
	"slices"
	"strings"
)

var (
	hiveReadAccesses  = []string{"select", "read"}
	hiveWriteAccesses = []string{"update", "insert", "create", "drop", "alter", "write"}
)

// ExtendTagPolicyWithHDFS returns a copy of a tag policy where every
// item that allows reading hive also allows hdfs:read and hdfs:execute,
// and every item that allows writing hive also allows hdfs:write.
func ExtendTagPolicyWithHDFS(p Policy) Policy {
	out := p.Clone()
	out.PolicyItems = extendItems(out.PolicyItems)
	out.DenyPolicyItems = extendItems(out.DenyPolicyItems)
	return out
}

func extendItems(items []Item) []Item {
	for i := range items {
		var reads, writes bool
		for _, a := range items[i].Accesses {
			if !a.IsAllowed {
				continue
			}
			switch {
			case slices.Contains(hiveReadAccesses, hivePermission(a.Type)):
				reads = true
			case slices.Contains(hiveWriteAccesses, hivePermission(a.Type)):
				writes = true
			}
		}
		if reads {
			items[i].Accesses = grant(items[i].Accesses, "hdfs:read", "hdfs:execute")
		}
		if writes {
			items[i].Accesses = grant(items[i].Accesses, "hdfs:write")
		}
	}
	return items
}

// grant appends the access types that are not already listed.
func grant(accesses []Access, types ...string) []Access {
	for _, t := range types {
		if !slices.ContainsFunc(accesses, func(a Access) bool { return a.Type == t }) {
			accesses = append(accesses, Access{Type: t, IsAllowed: true})
		}
	}
	return accesses
}

// hivePermission returns the permission of a hive:x access type and ""
// for other services.
func hivePermission(accessType string) string {
	permission, ok := strings.CutPrefix(accessType, "hive:")
	if !ok {
		return ""
	}
	return permission
}

// PathAccesses recodes allowed hive accesses as hdfs path accesses.
// Reading maps to read and execute, any modification to write, read and
// execute. Denied and unknown accesses are dropped.
func PathAccesses(accesses []Access) []Access {
	var read, write bool
	for _, a := range accesses {
		if !a.IsAllowed {
			continue
		}
		switch {
		case slices.Contains(hiveReadAccesses, a.Type):
			read = true
		case slices.Contains(hiveWriteAccesses, a.Type):
			write = true
		}
	}

	var out []Access
	if write {
		out = append(out, Access{Type: "write", IsAllowed: true})
	}
	if read || write {
		out = append(out,
			Access{Type: "read", IsAllowed: true},
			Access{Type: "execute", IsAllowed: true})
	}
	return out
}

// PathItems recodes the accesses of each item and drops items left
// without any access.
func PathItems(items []Item) []Item {
	var out []Item
	for _, item := range items {
		accesses := PathAccesses(item.Accesses)
		if len(accesses) == 0 {
			continue
		}
		item.Accesses = accesses
		out = append(out, item)
	}
	return out
}
