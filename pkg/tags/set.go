package tags

import (
	"slices"
	"strings"
)

// Set is an unordered set of tag names.
type Set map[string]struct{}

// NewSet builds a set from names, skipping empty ones.
func NewSet(names ...string) Set {
	s := Set{}
	for _, n := range names {
		if n != "" {
			s.Add(n)
		}
	}
	return s
}

// Add inserts name.
func (s Set) Add(name string) {
	s[name] = struct{}{}
}

// AddSet inserts every member of other.
func (s Set) AddSet(other Set) {
	for n := range other {
		s[n] = struct{}{}
	}
}

// Has reports membership.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Difference returns the members of s not in other.
func (s Set) Difference(other Set) Set {
	out := Set{}
	for n := range s {
		if !other.Has(n) {
			out.Add(n)
		}
	}
	return out
}

// SubsetOf reports whether every member of s is in other.
func (s Set) SubsetOf(other Set) bool {
	for n := range s {
		if !other.Has(n) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// String renders the set as a sorted comma separated list.
func (s Set) String() string {
	return strings.Join(s.Sorted(), ",")
}
