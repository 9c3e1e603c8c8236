package depc

import (
	"context"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

// ComputeFunc is a node's computation. It receives the graph context, one
// parent-id tuple per requested input (a single-parent node sees one id per
// tuple), and the resolved config, and must return exactly one output tuple
// per input, in input order.
type ComputeFunc func(ctx context.Context, g *Context, parents []store.Key, cfg Config) ([][]any, error)

// Node is a named, cached computation registered into the dependency graph.
type Node struct {
	// Name is the node's table name, unique within a registry.
	Name string

	// Parents lists the parent table names, in slot order. An entry naming
	// the registry's root table anchors that slot to root entities. An empty
	// list is shorthand for a single root-entity parent.
	Parents []string

	// Columns declares the output columns, in order.
	Columns []store.Column

	// Schema declares the node's configuration parameters.
	Schema ConfigSchema

	// ChunkSize bounds the number of inputs handed to Compute per call.
	// Zero disables chunking: the whole miss set arrives as one batch.
	ChunkSize int

	Compute ComputeFunc
}

// Registry maps node names to definitions for one dependency tree. It is
// populated during start-up, before any graph execution, and is not safe for
// concurrent mutation.
type Registry struct {
	root   string
	nodes  map[string]*Node
	params map[string]string // parameter name -> owning node
	order  []string
}

// NewRegistry creates a registry whose graph is anchored at the named root
// entity table (for example "images" or "annotations").
func NewRegistry(root string) *Registry {
	return &Registry{
		root:   root,
		nodes:  make(map[string]*Node),
		params: make(map[string]string),
	}
}

// Root returns the root entity table name.
func (r *Registry) Root() string {
	return r.root
}

// Register adds a node definition. It fails with DuplicateNodeError if the
// name or any config parameter name is already taken, UnknownNodeError if a
// parent is neither the root table nor a registered node, and
// CyclicDependencyError if the new edges would close a cycle.
func (r *Registry) Register(n *Node) error {
	if n.Name == r.root {
		return DuplicateNodeError{Node: n.Name, Msg: "name collides with the root table"}
	}
	if _, ok := r.nodes[n.Name]; ok {
		return DuplicateNodeError{Node: n.Name}
	}
	// Config parameter names are unique across the whole graph so that a
	// pipeline-wide config map can be handed to every node unambiguously.
	for _, p := range n.Schema {
		if owner, ok := r.params[p.Name]; ok {
			return DuplicateNodeError{Node: n.Name, Msg: "config parameter " + p.Name + " already declared by node " + owner}
		}
	}
	parents := n.Parents
	if len(parents) == 0 {
		parents = []string{r.root}
	}
	for _, p := range parents {
		if p == r.root {
			continue
		}
		if _, ok := r.nodes[p]; !ok {
			return UnknownNodeError{Node: p}
		}
	}
	if r.reaches(n.Name, parents) {
		return CyclicDependencyError{Node: n.Name}
	}

	cp := *n
	cp.Parents = parents
	r.nodes[n.Name] = &cp
	r.order = append(r.order, n.Name)
	for _, p := range n.Schema {
		r.params[p.Name] = n.Name
	}
	return nil
}

// reaches reports whether name is reachable from any of the given parents
// through existing parent edges (depth-first).
func (r *Registry) reaches(name string, parents []string) bool {
	for _, p := range parents {
		if p == name {
			return true
		}
		if p == r.root {
			continue
		}
		if n, ok := r.nodes[p]; ok && r.reaches(name, n.Parents) {
			return true
		}
	}
	return false
}

// Resolve returns the node definition for name.
func (r *Registry) Resolve(name string) (*Node, error) {
	n, ok := r.nodes[name]
	if !ok {
		return nil, UnknownNodeError{Node: name}
	}
	return n, nil
}

// ParentsOf returns the ordered parent table names for name.
func (r *Registry) ParentsOf(name string) ([]string, error) {
	n, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return n.Parents, nil
}

// Names returns the registered node names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// tableSchema builds the store schema for a node.
func (n *Node) tableSchema() store.TableSchema {
	return store.TableSchema{
		ParentCount: len(n.Parents),
		Columns:     n.Columns,
	}
}

// columnIndex returns the index of the named column, or -1.
func (n *Node) columnIndex(name string) int {
	for i, c := range n.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}
