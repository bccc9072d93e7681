package core

import (
	"fmt"
	"sort"
	"strings"
)

// ValueSet is a versioned enumeration domain: the full set captures every
// value ever persisted, the active subset captures values valid for new
// writes. Deprecated values are never deleted from the full set, so old
// records keep validating while new writes are held to the current subset.
type ValueSet struct {
	name   string
	full   map[string]struct{}
	active map[string]struct{}
}

// NewValueSet builds a ValueSet from the currently active values and the
// deprecated remainder of the historical superset.
func NewValueSet(name string, active, deprecated []string) *ValueSet {
	s := &ValueSet{
		name:   name,
		full:   make(map[string]struct{}, len(active)+len(deprecated)),
		active: make(map[string]struct{}, len(active)),
	}
	for _, v := range active {
		s.full[v] = struct{}{}
		s.active[v] = struct{}{}
	}
	for _, v := range deprecated {
		s.full[v] = struct{}{}
	}
	return s
}

// Name returns the domain name, used in validation messages.
func (s *ValueSet) Name() string { return s.name }

// Contains reports membership in the full historical set.
func (s *ValueSet) Contains(v string) bool {
	_, ok := s.full[v]
	return ok
}

// IsActive reports whether v is valid for new writes.
func (s *ValueSet) IsActive(v string) bool {
	_, ok := s.active[v]
	return ok
}

// ActiveValues returns the active subset, sorted for stable messages and
// schema enums.
func (s *ValueSet) ActiveValues() []string {
	out := make([]string, 0, len(s.active))
	for v := range s.active {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// CheckActive returns a field-scoped error when v is not an active value.
func (s *ValueSet) CheckActive(field, v string) error {
	if s.IsActive(v) {
		return nil
	}
	if s.Contains(v) {
		return fmt.Errorf("%s: value %q is no longer accepted (allowed: %s)", field, v, strings.Join(s.ActiveValues(), ", "))
	}
	return fmt.Errorf("%s: unknown value %q (allowed: %s)", field, v, strings.Join(s.ActiveValues(), ", "))
}
