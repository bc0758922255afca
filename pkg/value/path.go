package value

import "strings"

// SplitName splits a dotted factor name into its path.
func SplitName(name string) []string {
	return strings.Split(name, ".")
}

// GetPath follows names through nested maps. Missing entries and non-map intermediates
// yield None.
func (m Map) GetPath(names []string) Value {
	var current Value = m
	for _, name := range names {
		mm, ok := current.(Map)
		if !ok {
			return Nil
		}
		current = mm.Get(name)
	}
	return Or(current)
}

// SetPath returns a copy of m with v stored under names, creating intermediate maps as
// needed. Only the maps along the path are copied.
func (m Map) SetPath(names []string, v Value) Map {
	if len(names) == 0 {
		return m
	}
	if len(names) == 1 {
		return m.With(names[0], v)
	}
	child, _ := m.Get(names[0]).(Map)
	if child == nil {
		child = Map{}
	}
	return m.With(names[0], child.SetPath(names[1:], v))
}
