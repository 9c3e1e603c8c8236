// Package store defines the persistence contract for dependency-cache rows.
//
// A store keeps, per node, a set of rows partitioned by config key. Rows are
// addressed two ways: by the tuple of parent native row ids (the id space a
// node's executor resolves to) for get/put, and by root entity id for the
// delete operations, which must reach rows regardless of how the parent chain
// was resolved.
package store

import (
	"context"
	"strconv"
	"strings"
)

// ColumnType is the storage affinity of a declared column.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeInteger ColumnType = "integer"
	TypeReal    ColumnType = "real"
	TypeBlob    ColumnType = "blob"
)

// Column describes one output column of a node. External columns hold large
// binary payloads that the store writes to auxiliary storage keyed by native
// row id; the database column then holds only a reference.
type Column struct {
	Name     string
	Type     ColumnType
	External bool
}

// TableSchema describes the shape of a node's cache table.
type TableSchema struct {
	// ParentCount is the number of parent slots; each row records one parent
	// native row id and one root entity id per slot.
	ParentCount int
	Columns     []Column
}

// Key is a tuple of ids, one per parent slot.
type Key []int64

// String renders the key for use in maps. Single-parent keys render as the
// bare id.
func (k Key) String() string {
	if len(k) == 1 {
		return strconv.FormatInt(k[0], 10)
	}
	parts := make([]string, len(k))
	for i, id := range k {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, "/")
}

// Row is one cached result: the node-local native row id plus the column
// values in declared order. External column values are returned inline, the
// store resolves the auxiliary payload transparently.
type Row struct {
	RowID  int64
	Values []any
}

// Entry is one row to be upserted.
type Entry struct {
	// Parents holds the parent native row ids this row is keyed by.
	Parents Key
	// Roots holds the root entity id for each parent slot, recorded so the
	// delete operations can address rows by root entity id.
	Roots Key
	// Values are the column values in declared order.
	Values []any
}

// Store persists dependency-cache rows.
//
// Implementations must replace rows atomically: a concurrent reader observes
// either the pre-write or the fully written row, never partial columns.
type Store interface {
	// EnsureTable idempotently creates the storage for a (node, config key)
	// partition.
	EnsureTable(ctx context.Context, node, cfgKey string, schema TableSchema) error

	// GetRows returns the cached rows for the given parent-id keys, keyed by
	// Key.String(). Absent entries are exactly those never computed or since
	// invalidated.
	GetRows(ctx context.Context, node, cfgKey string, keys []Key) (map[string]Row, error)

	// PutRows upserts entries and returns their native row ids in input
	// order. New keys get a fresh row id; existing keys keep their row id and
	// have their values overwritten (recompute semantics). Overwriting an
	// external column deletes the stale payload before writing the new one.
	PutRows(ctx context.Context, node, cfgKey string, entries []Entry) ([]int64, error)

	// GetNative returns cached rows addressed by native row id. Row ids are
	// unique per node across all config keys.
	GetNative(ctx context.Context, node string, rowids []int64) (map[int64]Row, error)

	// Delete removes the rows whose root entity ids match, within one config
	// key. No-op for ids with no cached row.
	Delete(ctx context.Context, node, cfgKey string, rootIDs []int64) error

	// DeleteAllConfigs removes rows for the given root entity ids across
	// every config key ever used for the node.
	DeleteAllConfigs(ctx context.Context, node string, rootIDs []int64) error

	// Close releases any resources held by the store.
	Close() error
}
