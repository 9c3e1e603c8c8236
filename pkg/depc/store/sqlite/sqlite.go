// Package sqlite provides a SQLite-backed depc store using the
// github.com/mattn/go-sqlite3 driver.
//
// Each node gets one physical table holding every config partition, with the
// config key as a column. Native row ids are therefore unique per node across
// configs, which is what lets children address parent rows without knowing
// the parent's configuration.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/assets"
)

// metaTable records each node's declared schema so a fresh process can read
// and delete rows written by an earlier one.
const metaTable = `CREATE TABLE IF NOT EXISTS depc_tables (
	node TEXT PRIMARY KEY,
	parent_count INTEGER NOT NULL,
	columns TEXT NOT NULL
)`

// Store implements store.Store on a SQLite database file.
type Store struct {
	db     *sql.DB
	assets *assets.Dir

	mu      sync.Mutex
	schemas map[string]store.TableSchema
}

// New opens (or creates) the cache database. The dbPath can be a file path or
// ":memory:". assetsDir receives externally stored column payloads; it may be
// nil when no registered node declares external columns.
func New(dbPath string, assetsDir *assets.Dir) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite-specific pragmas
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(metaTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create meta table: %w", err)
	}

	s := &Store{db: db, assets: assetsDir, schemas: make(map[string]store.TableSchema)}
	if err := s.loadSchemas(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle, mainly for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) loadSchemas() error {
	rows, err := s.db.Query("SELECT node, parent_count, columns FROM depc_tables")
	if err != nil {
		return fmt.Errorf("loading table schemas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var node, colJSON string
		var parents int
		if err := rows.Scan(&node, &parents, &colJSON); err != nil {
			return fmt.Errorf("scanning table schema: %w", err)
		}
		var cols []store.Column
		if err := json.Unmarshal([]byte(colJSON), &cols); err != nil {
			return fmt.Errorf("decoding columns for %s: %w", node, err)
		}
		s.schemas[node] = store.TableSchema{ParentCount: parents, Columns: cols}
	}
	return rows.Err()
}

// EnsureTable idempotently creates the node's table and records its schema.
func (s *Store) EnsureTable(ctx context.Context, node, _ string, schema store.TableSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schemas[node]; ok {
		return nil
	}

	defs := []string{
		"native_rowid INTEGER PRIMARY KEY AUTOINCREMENT",
		"config_key TEXT NOT NULL",
	}
	for i := 0; i < schema.ParentCount; i++ {
		defs = append(defs, fmt.Sprintf("parent%d INTEGER NOT NULL", i+1))
		defs = append(defs, fmt.Sprintf("root%d INTEGER NOT NULL", i+1))
	}
	for _, c := range schema.Columns {
		defs = append(defs, fmt.Sprintf("col_%s %s", c.Name, sqliteType(c)))
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName(node), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("creating table for node %s: %w", node, err)
	}

	parentCols := make([]string, schema.ParentCount)
	for i := range parentCols {
		parentCols[i] = fmt.Sprintf("parent%d", i+1)
	}
	index := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_key ON %s (config_key, %s)",
		node, tableName(node), strings.Join(parentCols, ", "))
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("creating index for node %s: %w", node, err)
	}

	colJSON, err := json.Marshal(schema.Columns)
	if err != nil {
		return fmt.Errorf("encoding columns for %s: %w", node, err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO depc_tables (node, parent_count, columns) VALUES (?, ?, ?)",
		node, schema.ParentCount, string(colJSON)); err != nil {
		return fmt.Errorf("recording schema for %s: %w", node, err)
	}

	s.schemas[node] = schema
	return nil
}

// GetRows returns cached rows for the given parent keys within one config.
func (s *Store) GetRows(ctx context.Context, node, cfgKey string, keys []store.Key) (map[string]store.Row, error) {
	out := make(map[string]store.Row)
	schema, ok := s.schema(node)
	if !ok {
		return out, nil
	}

	// Query in bounded batches to stay under SQLite's parameter limit.
	const batchSize = 100
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.getRowsBatch(ctx, node, cfgKey, schema, keys[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) getRowsBatch(ctx context.Context, node, cfgKey string, schema store.TableSchema, keys []store.Key, out map[string]store.Row) error {
	var clauses []string
	args := []any{cfgKey}
	for _, k := range keys {
		terms := make([]string, len(k))
		for i, id := range k {
			terms[i] = fmt.Sprintf("parent%d = ?", i+1)
			args = append(args, id)
		}
		clauses = append(clauses, "("+strings.Join(terms, " AND ")+")")
	}

	query := fmt.Sprintf("SELECT native_rowid, %s, %s FROM %s WHERE config_key = ? AND (%s)",
		parentSelect(schema.ParentCount), columnSelect(schema.Columns), tableName(node), strings.Join(clauses, " OR "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying rows for node %s: %w", node, err)
	}
	defer rows.Close()

	for rows.Next() {
		rowid, key, values, err := s.scanRow(rows, schema)
		if err != nil {
			return fmt.Errorf("scanning row for node %s: %w", node, err)
		}
		out[key.String()] = store.Row{RowID: rowid, Values: values}
	}
	return rows.Err()
}

// PutRows upserts entries in one transaction per call.
func (s *Store) PutRows(ctx context.Context, node, cfgKey string, entries []store.Entry) ([]int64, error) {
	schema, ok := s.schema(node)
	if !ok {
		return nil, fmt.Errorf("node %s has no ensured table", node)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, len(entries))
	for i, e := range entries {
		id, err := s.putRow(ctx, tx, node, cfgKey, schema, e)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rows for node %s: %w", node, err)
	}
	return ids, nil
}

func (s *Store) putRow(ctx context.Context, tx *sql.Tx, node, cfgKey string, schema store.TableSchema, e store.Entry) (int64, error) {
	// Look for an existing row to overwrite (recompute semantics).
	where, whereArgs := keyWhere(cfgKey, e.Parents)
	extCols := externalColumns(schema.Columns)

	sel := fmt.Sprintf("SELECT native_rowid%s FROM %s WHERE %s", extSelect(extCols), tableName(node), where)
	var rowid int64
	dest := make([]any, 1+len(extCols))
	dest[0] = &rowid
	staleAssets := make([]sql.NullString, len(extCols))
	for i := range extCols {
		dest[1+i] = &staleAssets[i]
	}

	err := tx.QueryRowContext(ctx, sel, whereArgs...).Scan(dest...)
	switch {
	case err == sql.ErrNoRows:
		rowid = 0
	case err != nil:
		return 0, fmt.Errorf("checking existing row for node %s: %w", node, err)
	}

	if rowid != 0 {
		// Overwrite: drop stale external payloads first so nothing orphans.
		if s.assets != nil {
			for _, stale := range staleAssets {
				if stale.Valid && stale.String != "" {
					if err := s.assets.Remove(stale.String); err != nil {
						return 0, err
					}
				}
			}
		}
		sets, args := valueAssignments(schema.Columns, e.Values)
		update := fmt.Sprintf("UPDATE %s SET %s WHERE native_rowid = ?", tableName(node), strings.Join(sets, ", "))
		args = append(args, rowid)
		if _, err := tx.ExecContext(ctx, update, args...); err != nil {
			return 0, fmt.Errorf("updating row for node %s: %w", node, err)
		}
		return rowid, s.writeExternal(ctx, tx, node, rowid, schema.Columns, e.Values)
	}

	cols := []string{"config_key"}
	args := []any{cfgKey}
	for i, p := range e.Parents {
		cols = append(cols, fmt.Sprintf("parent%d", i+1))
		args = append(args, p)
	}
	for i, r := range e.Roots {
		cols = append(cols, fmt.Sprintf("root%d", i+1))
		args = append(args, r)
	}
	for ci, c := range schema.Columns {
		cols = append(cols, "col_"+c.Name)
		if c.External {
			// Placeholder until the rowid is known and the payload written.
			args = append(args, nil)
		} else {
			args = append(args, e.Values[ci])
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tableName(node), strings.Join(cols, ", "), placeholders)
	res, err := tx.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting row for node %s: %w", node, err)
	}
	rowid, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted rowid for node %s: %w", node, err)
	}
	return rowid, s.writeExternal(ctx, tx, node, rowid, schema.Columns, e.Values)
}

// writeExternal stores external payloads for a row and points the database
// columns at them.
func (s *Store) writeExternal(ctx context.Context, tx *sql.Tx, node string, rowid int64, cols []store.Column, values []any) error {
	for ci, c := range cols {
		if !c.External {
			continue
		}
		if s.assets == nil {
			return fmt.Errorf("node %s declares external column %s but no assets directory is configured", node, c.Name)
		}
		data, ok := values[ci].([]byte)
		if !ok {
			return fmt.Errorf("external column %s of node %s requires []byte values", c.Name, node)
		}
		name, err := s.assets.Write(node, rowid, c.Name, data)
		if err != nil {
			return err
		}
		update := fmt.Sprintf("UPDATE %s SET col_%s = ? WHERE native_rowid = ?", tableName(node), c.Name)
		if _, err := tx.ExecContext(ctx, update, name, rowid); err != nil {
			return fmt.Errorf("linking asset for node %s: %w", node, err)
		}
	}
	return nil
}

// valueAssignments builds SET clauses for the non-external columns.
func valueAssignments(cols []store.Column, values []any) ([]string, []any) {
	var sets []string
	var args []any
	for ci, c := range cols {
		if c.External {
			continue
		}
		sets = append(sets, "col_"+c.Name+" = ?")
		args = append(args, values[ci])
	}
	if len(sets) == 0 {
		// Nothing but external columns; keep the statement valid.
		sets = append(sets, "config_key = config_key")
	}
	return sets, args
}

// GetNative returns cached rows addressed by native row id.
func (s *Store) GetNative(ctx context.Context, node string, rowids []int64) (map[int64]store.Row, error) {
	out := make(map[int64]store.Row)
	schema, ok := s.schema(node)
	if !ok {
		return out, nil
	}

	const batchSize = 500
	for start := 0; start < len(rowids); start += batchSize {
		end := start + batchSize
		if end > len(rowids) {
			end = len(rowids)
		}
		batch := rowids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")
		query := fmt.Sprintf("SELECT native_rowid, %s, %s FROM %s WHERE native_rowid IN (%s)",
			parentSelect(schema.ParentCount), columnSelect(schema.Columns), tableName(node), placeholders)
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying native rows for node %s: %w", node, err)
		}
		for rows.Next() {
			rowid, _, values, err := s.scanRow(rows, schema)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning native row for node %s: %w", node, err)
			}
			out[rowid] = store.Row{RowID: rowid, Values: values}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// Delete removes rows matching the root entity ids within one config key.
func (s *Store) Delete(ctx context.Context, node, cfgKey string, rootIDs []int64) error {
	return s.deleteWhere(ctx, node, "config_key = ?", []any{cfgKey}, rootIDs)
}

// DeleteAllConfigs removes rows matching the root entity ids across every
// config key.
func (s *Store) DeleteAllConfigs(ctx context.Context, node string, rootIDs []int64) error {
	return s.deleteWhere(ctx, node, "1 = 1", nil, rootIDs)
}

func (s *Store) deleteWhere(ctx context.Context, node, scope string, scopeArgs []any, rootIDs []int64) error {
	schema, ok := s.schema(node)
	if !ok {
		return nil
	}
	if len(rootIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(rootIDs)), ", ")
	rootClauses := make([]string, schema.ParentCount)
	args := append([]any{}, scopeArgs...)
	for i := 0; i < schema.ParentCount; i++ {
		rootClauses[i] = fmt.Sprintf("root%d IN (%s)", i+1, placeholders)
		for _, id := range rootIDs {
			args = append(args, id)
		}
	}
	where := fmt.Sprintf("%s AND (%s)", scope, strings.Join(rootClauses, " OR "))

	// Remove external payloads before the rows that reference them.
	extCols := externalColumns(schema.Columns)
	if len(extCols) > 0 && s.assets != nil {
		query := fmt.Sprintf("SELECT native_rowid%s FROM %s WHERE %s", extSelect(extCols), tableName(node), where)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying assets to delete for node %s: %w", node, err)
		}
		var names []string
		for rows.Next() {
			var rowid int64
			dest := make([]any, 1+len(extCols))
			dest[0] = &rowid
			vals := make([]sql.NullString, len(extCols))
			for i := range extCols {
				dest[1+i] = &vals[i]
			}
			if err := rows.Scan(dest...); err != nil {
				rows.Close()
				return fmt.Errorf("scanning assets to delete for node %s: %w", node, err)
			}
			for _, v := range vals {
				if v.Valid && v.String != "" {
					names = append(names, v.String)
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		for _, name := range names {
			if err := s.assets.Remove(name); err != nil {
				return err
			}
		}
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE %s", tableName(node), where)
	if _, err := s.db.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("deleting rows for node %s: %w", node, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) schema(node string) (store.TableSchema, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schema, ok := s.schemas[node]
	return schema, ok
}

// scanRow reads one row: native rowid, parent key, then column values.
// External columns are resolved to their payload bytes.
func (s *Store) scanRow(rows *sql.Rows, schema store.TableSchema) (int64, store.Key, []any, error) {
	var rowid int64
	key := make(store.Key, schema.ParentCount)
	raw := make([]any, len(schema.Columns))

	dest := make([]any, 0, 1+schema.ParentCount+len(schema.Columns))
	dest = append(dest, &rowid)
	for i := range key {
		dest = append(dest, &key[i])
	}
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return 0, nil, nil, err
	}

	values := make([]any, len(schema.Columns))
	for i, c := range schema.Columns {
		v := raw[i]
		if c.External {
			name := ""
			switch t := v.(type) {
			case string:
				name = t
			case []byte:
				name = string(t)
			}
			if name == "" {
				values[i] = []byte(nil)
				continue
			}
			data, err := s.assets.Read(name)
			if err != nil {
				return 0, nil, nil, err
			}
			values[i] = data
			continue
		}
		values[i] = normalizeValue(v, c.Type)
	}
	return rowid, key, values, nil
}

// normalizeValue maps driver-returned values onto the declared column type.
func normalizeValue(v any, t store.ColumnType) any {
	if v == nil {
		return nil
	}
	switch t {
	case store.TypeText:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	case store.TypeInteger:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case store.TypeReal:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
	case store.TypeBlob:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
	}
	return v
}

func tableName(node string) string {
	return "depc_" + node
}

func sqliteType(c store.Column) string {
	if c.External {
		// External columns hold the payload file name.
		return "TEXT"
	}
	switch c.Type {
	case store.TypeInteger:
		return "INTEGER"
	case store.TypeReal:
		return "REAL"
	case store.TypeBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func parentSelect(count int) string {
	cols := make([]string, count)
	for i := range cols {
		cols[i] = fmt.Sprintf("parent%d", i+1)
	}
	return strings.Join(cols, ", ")
}

func columnSelect(cols []store.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = "col_" + c.Name
	}
	return strings.Join(names, ", ")
}

func externalColumns(cols []store.Column) []store.Column {
	var out []store.Column
	for _, c := range cols {
		if c.External {
			out = append(out, c)
		}
	}
	return out
}

func extSelect(extCols []store.Column) string {
	var b strings.Builder
	for _, c := range extCols {
		b.WriteString(", col_" + c.Name)
	}
	return b.String()
}

func keyWhere(cfgKey string, parents store.Key) (string, []any) {
	terms := []string{"config_key = ?"}
	args := []any{cfgKey}
	for i, p := range parents {
		terms = append(terms, fmt.Sprintf("parent%d = ?", i+1))
		args = append(args, p)
	}
	return strings.Join(terms, " AND "), args
}
