package depc

import "fmt"

// InvalidConfigError reports a supplied configuration value that violates its
// parameter's declared constraints. It is raised at config-resolution time,
// before any computation or cache I/O.
type InvalidConfigError struct {
	Param string
	Value any
	Msg   string
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config value %v for parameter %q: %s", e.Value, e.Param, e.Msg)
}

// UnknownNodeError is returned when a node name is not present in the registry.
type UnknownNodeError struct {
	Node string
}

func (e UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown depc node: %q", e.Node)
}

// DuplicateNodeError is returned when registering a node whose name, or one of
// whose config parameter names, is already taken.
type DuplicateNodeError struct {
	Node string
	Msg  string
}

func (e DuplicateNodeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("depc node already registered: %q", e.Node)
	}
	return fmt.Sprintf("cannot register depc node %q: %s", e.Node, e.Msg)
}

// CyclicDependencyError is returned when adding a node's parent edges would
// create a cycle in the dependency graph.
type CyclicDependencyError struct {
	Node string
}

func (e CyclicDependencyError) Error() string {
	return fmt.Sprintf("registering depc node %q would create a dependency cycle", e.Node)
}

// SchemaMismatchError reports a compute function whose output disagrees with
// the node's declared column schema.
type SchemaMismatchError struct {
	Node string
	Want int
	Got  int
	What string // "rows" or "columns"
}

func (e SchemaMismatchError) Error() string {
	return fmt.Sprintf("depc node %q returned %d %s, schema declares %d", e.Node, e.Got, e.What, e.Want)
}

// ComputeError wraps a failure raised by a node's compute function, attaching
// the node name and the failing batch range. Batches committed before the
// failure stay cached; re-invoking Get retries only the ids still missing.
type ComputeError struct {
	Node       string
	BatchStart int
	BatchEnd   int
	Err        error
}

func (e ComputeError) Error() string {
	return fmt.Sprintf("depc node %q failed computing batch [%d:%d]: %v", e.Node, e.BatchStart, e.BatchEnd, e.Err)
}

func (e ComputeError) Unwrap() error {
	return e.Err
}
