package engine

import (
	"sort"

	"golang.org/x/exp/maps"

	"github.com/topicflow/topicflow/pkg/value"
)

// Variables are the execution variables of one task. Every variable remembers the node that
// last set it.
type Variables struct {
	values  value.Map
	origins map[string]string
}

func newVariables() *Variables {
	return &Variables{values: value.Map{}, origins: map[string]string{}}
}

// Set binds name, which may be dotted, to v.
func (vs *Variables) Set(name string, v value.Value, origin string) {
	vs.values = vs.values.SetPath(value.SplitName(name), v)
	vs.origins[name] = origin
}

// Get returns the variable, or None.
func (vs *Variables) Get(name string) value.Value {
	return vs.values.GetPath(value.SplitName(name))
}

// Origin returns the node that last set name.
func (vs *Variables) Origin(name string) (string, bool) {
	origin, ok := vs.origins[name]
	return origin, ok
}

// Names returns the names set so far in ascending order.
func (vs *Variables) Names() []string {
	names := make([]string, 0, len(vs.origins))
	for name := range vs.origins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns the variables as a value map.
func (vs *Variables) Map() value.Map {
	return vs.values
}

// Clone returns a copy whose changes do not affect vs.
func (vs *Variables) Clone() *Variables {
	return &Variables{values: vs.values, origins: maps.Clone(vs.origins)}
}
