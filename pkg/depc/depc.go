// Package depc implements a memoized, config-keyed dependency-cache engine
// over root entities such as images and annotations.
//
// Nodes form a directed acyclic graph anchored at a root entity table.
// Requesting a node's values for a batch of entity ids transparently
// materializes the whole ancestor chain: each ancestor is computed and cached
// exactly once per configuration, and later requests are served from the
// cache. Cache partitions are keyed by the canonical config key, so the same
// node under different configurations never shares rows.
package depc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

// Context is the opaque handle passed to every compute function. It grants
// access to the executor (for GetNative calls against parent tables) and to
// the host controller for root entity lookups.
type Context struct {
	Depc       *Depc
	Controller any
}

// Depc executes the dependency graph for one root entity table.
type Depc struct {
	reg  *Registry
	st   store.Store
	log  *slog.Logger
	gctx *Context

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an executor over the given registry and store. The controller
// handle is forwarded untouched to compute functions.
func New(reg *Registry, st store.Store, controller any, log *slog.Logger) *Depc {
	d := &Depc{
		reg:   reg,
		st:    st,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
	d.gctx = &Context{Depc: d, Controller: controller}
	return d
}

// Registry returns the node registry backing this executor.
func (d *Depc) Registry() *Registry {
	return d.reg
}

// GetRows computes-or-fetches full row tuples for a node over root entity
// ids. The result is parallel to ids, duplicates included.
func (d *Depc) GetRows(ctx context.Context, node string, ids []int64, cfg map[string]any) ([][]any, error) {
	rows, err := d.resolveNode(ctx, node, ids, cfg)
	if err != nil {
		return nil, err
	}
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values
	}
	return out, nil
}

// Get computes-or-fetches a single named column for a node over root entity
// ids. The result is parallel to ids, duplicates included.
func (d *Depc) Get(ctx context.Context, node string, ids []int64, col string, cfg map[string]any) ([]any, error) {
	n, err := d.reg.Resolve(node)
	if err != nil {
		return nil, err
	}
	ci := n.columnIndex(col)
	if ci < 0 {
		return nil, fmt.Errorf("depc node %q has no column %q", node, col)
	}
	rows, err := d.resolveNode(ctx, node, ids, cfg)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values[ci]
	}
	return out, nil
}

// GetProduct computes-or-fetches a column for a two-parent node over the
// cross product of query and database root entity ids. The result is ordered
// query-major: all pairs for qids[0] first, in daid order.
func (d *Depc) GetProduct(ctx context.Context, node string, qids, dids []int64, col string, cfg map[string]any) ([]any, []store.Key, error) {
	n, err := d.reg.Resolve(node)
	if err != nil {
		return nil, nil, err
	}
	if len(n.Parents) != 2 {
		return nil, nil, fmt.Errorf("depc node %q is not a pair node", node)
	}
	ci := n.columnIndex(col)
	if ci < 0 {
		return nil, nil, fmt.Errorf("depc node %q has no column %q", node, col)
	}
	pairs := make([]store.Key, 0, len(qids)*len(dids))
	for _, q := range qids {
		for _, a := range dids {
			pairs = append(pairs, store.Key{q, a})
		}
	}
	rows, err := d.resolve(ctx, n, pairs, cfg)
	if err != nil {
		return nil, nil, err
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values[ci]
	}
	return out, pairs, nil
}

// RowIDs resolves the native row ids for a node over root entity ids,
// computing missing ancestors and rows as needed.
func (d *Depc) RowIDs(ctx context.Context, node string, ids []int64, cfg map[string]any) ([]int64, error) {
	rows, err := d.resolveNode(ctx, node, ids, cfg)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.RowID
	}
	return out, nil
}

// GetNative fetches a column for already-cached rows addressed by the node's
// own native row ids. It never computes; a missing row is an error. Child
// compute functions use this to read their parent's values without
// re-resolving the ancestor chain.
func (d *Depc) GetNative(ctx context.Context, node string, rowids []int64, col string) ([]any, error) {
	n, err := d.reg.Resolve(node)
	if err != nil {
		return nil, err
	}
	ci := n.columnIndex(col)
	if ci < 0 {
		return nil, fmt.Errorf("depc node %q has no column %q", node, col)
	}
	if len(rowids) == 0 {
		return []any{}, nil
	}
	rows, err := d.st.GetNative(ctx, node, rowids)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rowids))
	for i, id := range rowids {
		r, ok := rows[id]
		if !ok {
			return nil, fmt.Errorf("depc node %q: native row %d not cached", node, id)
		}
		out[i] = r.Values[ci]
	}
	return out, nil
}

// DeleteProperty removes cached rows for the given root entity ids at one
// config, forcing a recompute on the next Get. Other configs are untouched,
// and the deletion never cascades to child nodes.
func (d *Depc) DeleteProperty(ctx context.Context, node string, ids []int64, cfg map[string]any) error {
	n, err := d.reg.Resolve(node)
	if err != nil {
		return err
	}
	rc, err := n.Schema.Resolve(cfg)
	if err != nil {
		return err
	}
	key := ConfigKey(n.Name, rc, n.Schema)
	if len(ids) == 0 {
		return nil
	}
	unlock := d.lock(n.Name, key)
	defer unlock()
	if err := d.st.Delete(ctx, n.Name, key, ids); err != nil {
		return err
	}
	d.log.Debug("deleted cached property", "node", n.Name, "config", key, "ids", len(ids))
	return nil
}

// DeletePropertyAll removes cached rows for the given root entity ids across
// every config key ever used for the node.
func (d *Depc) DeletePropertyAll(ctx context.Context, node string, ids []int64) error {
	n, err := d.reg.Resolve(node)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := d.st.DeleteAllConfigs(ctx, n.Name, ids); err != nil {
		return err
	}
	d.log.Debug("deleted cached property across configs", "node", n.Name, "ids", len(ids))
	return nil
}

// resolveNode expands plain root entity ids into per-slot tuples and resolves.
func (d *Depc) resolveNode(ctx context.Context, node string, ids []int64, cfg map[string]any) ([]store.Row, error) {
	n, err := d.reg.Resolve(node)
	if err != nil {
		return nil, err
	}
	tuples := make([]store.Key, len(ids))
	for i, id := range ids {
		t := make(store.Key, len(n.Parents))
		for j := range t {
			t[j] = id
		}
		tuples[i] = t
	}
	return d.resolve(ctx, n, tuples, cfg)
}

// resolve is the core algorithm: given per-slot root entity id tuples, it
// materializes the parent chain, partitions the request into cache hits and
// misses, computes the misses in chunks, commits each chunk, and merges
// everything back into request order.
func (d *Depc) resolve(ctx context.Context, n *Node, roots []store.Key, cfg map[string]any) ([]store.Row, error) {
	rc, err := n.Schema.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	cfgKey := ConfigKey(n.Name, rc, n.Schema)
	if len(roots) == 0 {
		return []store.Row{}, nil
	}

	// Resolve each parent slot to native row ids. A slot anchored at the
	// root table uses the root entity ids directly.
	parentCols := make([][]int64, len(n.Parents))
	for j, p := range n.Parents {
		slotIDs := make([]int64, len(roots))
		for i, t := range roots {
			slotIDs[i] = t[j]
		}
		if p == d.reg.root {
			parentCols[j] = slotIDs
			continue
		}
		pn, err := d.reg.Resolve(p)
		if err != nil {
			return nil, err
		}
		ptuples := make([]store.Key, len(slotIDs))
		for i, id := range slotIDs {
			t := make(store.Key, len(pn.Parents))
			for k := range t {
				t[k] = id
			}
			ptuples[i] = t
		}
		prows, err := d.resolve(ctx, pn, ptuples, cfg)
		if err != nil {
			return nil, err
		}
		col := make([]int64, len(prows))
		for i, r := range prows {
			col[i] = r.RowID
		}
		parentCols[j] = col
	}

	keys := make([]store.Key, len(roots))
	for i := range roots {
		t := make(store.Key, len(n.Parents))
		for j := range n.Parents {
			t[j] = parentCols[j][i]
		}
		keys[i] = t
	}

	unlock := d.lock(n.Name, cfgKey)
	defer unlock()

	if err := d.st.EnsureTable(ctx, n.Name, cfgKey, n.tableSchema()); err != nil {
		return nil, err
	}
	cached, err := d.st.GetRows(ctx, n.Name, cfgKey, keys)
	if err != nil {
		return nil, err
	}

	// Collect misses, deduplicated but order-preserving: a repeated id in
	// the request is computed once and returned twice.
	var missKeys []store.Key
	var missRoots []store.Key
	seen := make(map[string]bool)
	for i, k := range keys {
		ks := k.String()
		if _, hit := cached[ks]; hit || seen[ks] {
			continue
		}
		seen[ks] = true
		missKeys = append(missKeys, k)
		missRoots = append(missRoots, roots[i])
	}

	if len(missKeys) > 0 {
		d.log.Debug("computing depc rows",
			"node", n.Name, "config", cfgKey,
			"hits", len(keys)-len(missKeys), "misses", len(missKeys))
	}

	chunk := n.ChunkSize
	if chunk <= 0 {
		chunk = len(missKeys)
	}
	for start := 0; start < len(missKeys); start += chunk {
		end := start + chunk
		if end > len(missKeys) {
			end = len(missKeys)
		}
		batch := missKeys[start:end]

		out, err := n.Compute(ctx, d.gctx, batch, rc)
		if err != nil {
			return nil, ComputeError{Node: n.Name, BatchStart: start, BatchEnd: end, Err: err}
		}
		if len(out) != len(batch) {
			return nil, SchemaMismatchError{Node: n.Name, Want: len(batch), Got: len(out), What: "rows"}
		}
		entries := make([]store.Entry, len(batch))
		for i, vals := range out {
			if len(vals) != len(n.Columns) {
				return nil, SchemaMismatchError{Node: n.Name, Want: len(n.Columns), Got: len(vals), What: "columns"}
			}
			entries[i] = store.Entry{
				Parents: batch[i],
				Roots:   missRoots[start+i],
				Values:  vals,
			}
		}
		// Each chunk commits independently: a later failure leaves earlier
		// chunks cached, and a retry recomputes only what is still missing.
		rowids, err := d.st.PutRows(ctx, n.Name, cfgKey, entries)
		if err != nil {
			return nil, err
		}
		for i, e := range entries {
			cached[e.Parents.String()] = store.Row{RowID: rowids[i], Values: e.Values}
		}
	}

	result := make([]store.Row, len(keys))
	for i, k := range keys {
		result[i] = cached[k.String()]
	}
	return result, nil
}

// lock serializes compute-and-store for one (node, config key) partition.
func (d *Depc) lock(node, cfgKey string) func() {
	k := node + "|" + cfgKey
	d.mu.Lock()
	m, ok := d.locks[k]
	if !ok {
		m = &sync.Mutex{}
		d.locks[k] = m
	}
	d.mu.Unlock()
	m.Lock()
	return m.Unlock
}
