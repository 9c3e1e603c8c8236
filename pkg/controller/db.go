package controller

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// imageNamespace seeds deterministic image uuids: the same payload bytes
// always produce the same uuid, mirroring how the platform derives image
// identity from pixel content.
var imageNamespace = uuid.MustParse("8f3b52a4-6c1e-4b89-9d7e-1a2f5c9e0d43")

const dbSchema = `
CREATE TABLE IF NOT EXISTS metadata (
	metadata_key TEXT PRIMARY KEY,
	metadata_value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS names (
	name_rowid INTEGER PRIMARY KEY AUTOINCREMENT,
	name_text TEXT UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS images (
	image_rowid INTEGER PRIMARY KEY AUTOINCREMENT,
	image_uuid TEXT UNIQUE NOT NULL,
	image_uri TEXT,
	image_data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS annotations (
	annot_rowid INTEGER PRIMARY KEY AUTOINCREMENT,
	image_rowid INTEGER NOT NULL REFERENCES images (image_rowid),
	name_rowid INTEGER REFERENCES names (name_rowid),
	bbox_x INTEGER NOT NULL DEFAULT 0,
	bbox_y INTEGER NOT NULL DEFAULT 0,
	bbox_w INTEGER NOT NULL DEFAULT 0,
	bbox_h INTEGER NOT NULL DEFAULT 0
);
`

type database struct {
	db *sql.DB
}

func openDatabase(dbPath string) (*database, string, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(dbSchema); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to create schema: %w", err)
	}

	dbUUID, err := ensureDBUUID(db)
	if err != nil {
		db.Close()
		return nil, "", err
	}
	return &database{db: db}, dbUUID, nil
}

func ensureDBUUID(db *sql.DB) (string, error) {
	var value string
	err := db.QueryRow("SELECT metadata_value FROM metadata WHERE metadata_key = 'db_init_uuid'").Scan(&value)
	if err == nil {
		return value, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("reading db uuid: %w", err)
	}
	value = uuid.NewString()
	if _, err := db.Exec("INSERT INTO metadata (metadata_key, metadata_value) VALUES ('db_init_uuid', ?)", value); err != nil {
		return "", fmt.Errorf("storing db uuid: %w", err)
	}
	return value, nil
}

func (d *database) close() error {
	return d.db.Close()
}

// AddName inserts a name label, returning the existing rowid when the text is
// already present.
func (c *Controller) AddName(ctx context.Context, text string) (int64, error) {
	res, err := c.db.db.ExecContext(ctx, "INSERT OR IGNORE INTO names (name_text) VALUES (?)", text)
	if err != nil {
		return 0, fmt.Errorf("adding name: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}
	var id int64
	if err := c.db.db.QueryRowContext(ctx, "SELECT name_rowid FROM names WHERE name_text = ?", text).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading name rowid: %w", err)
	}
	return id, nil
}

// AddImage inserts an image with its payload bytes. The image uuid is derived
// deterministically from the payload, so re-adding the same bytes is an error
// on the unique constraint rather than a silent duplicate.
func (c *Controller) AddImage(ctx context.Context, uri string, data []byte) (int64, error) {
	imageUUID := uuid.NewSHA1(imageNamespace, data).String()
	res, err := c.db.db.ExecContext(ctx,
		"INSERT INTO images (image_uuid, image_uri, image_data) VALUES (?, ?, ?)", imageUUID, uri, data)
	if err != nil {
		return 0, fmt.Errorf("adding image: %w", err)
	}
	return res.LastInsertId()
}

// AddAnnotation inserts an annotation bounding box on an image, labeled with
// a ground-truth name. nameID may be zero for an unlabeled annotation.
func (c *Controller) AddAnnotation(ctx context.Context, imageID, nameID int64, x, y, w, h int) (int64, error) {
	var name any
	if nameID != 0 {
		name = nameID
	}
	res, err := c.db.db.ExecContext(ctx,
		"INSERT INTO annotations (image_rowid, name_rowid, bbox_x, bbox_y, bbox_w, bbox_h) VALUES (?, ?, ?, ?, ?, ?)",
		imageID, name, x, y, w, h)
	if err != nil {
		return 0, fmt.Errorf("adding annotation: %w", err)
	}
	return res.LastInsertId()
}

// ValidImageIDs returns every image rowid in the database.
func (c *Controller) ValidImageIDs(ctx context.Context) ([]int64, error) {
	return c.idList(ctx, "SELECT image_rowid FROM images ORDER BY image_rowid")
}

// ValidAnnotIDs returns every annotation rowid in the database.
func (c *Controller) ValidAnnotIDs(ctx context.Context) ([]int64, error) {
	return c.idList(ctx, "SELECT annot_rowid FROM annotations ORDER BY annot_rowid")
}

// ValidNameIDs returns every name rowid in the database.
func (c *Controller) ValidNameIDs(ctx context.Context) ([]int64, error) {
	return c.idList(ctx, "SELECT name_rowid FROM names ORDER BY name_rowid")
}

func (c *Controller) idList(ctx context.Context, query string) ([]int64, error) {
	rows, err := c.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ImageBytes returns the raw payload for each image id, parallel to ids.
func (c *Controller) ImageBytes(ctx context.Context, ids []int64) ([][]byte, error) {
	byID := make(map[int64][]byte, len(ids))
	if err := c.forEachID(ctx, "SELECT image_rowid, image_data FROM images WHERE image_rowid IN (%s)", ids, func(rows *sql.Rows) error {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return err
		}
		byID[id] = data
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([][]byte, len(ids))
	for i, id := range ids {
		data, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("no such image: %d", id)
		}
		out[i] = data
	}
	return out, nil
}

// AnnotNameIDs returns the ground-truth name rowid for each annotation id,
// parallel to ids. Unlabeled annotations yield zero.
func (c *Controller) AnnotNameIDs(ctx context.Context, ids []int64) ([]int64, error) {
	byID := make(map[int64]int64, len(ids))
	found := make(map[int64]bool, len(ids))
	if err := c.forEachID(ctx, "SELECT annot_rowid, COALESCE(name_rowid, 0) FROM annotations WHERE annot_rowid IN (%s)", ids, func(rows *sql.Rows) error {
		var id, nameID int64
		if err := rows.Scan(&id, &nameID); err != nil {
			return err
		}
		byID[id] = nameID
		found[id] = true
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]int64, len(ids))
	for i, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("no such annotation: %d", id)
		}
		out[i] = byID[id]
	}
	return out, nil
}

// NameTexts returns the label text for each name id, parallel to ids.
func (c *Controller) NameTexts(ctx context.Context, ids []int64) ([]string, error) {
	byID := make(map[int64]string, len(ids))
	if err := c.forEachID(ctx, "SELECT name_rowid, name_text FROM names WHERE name_rowid IN (%s)", ids, func(rows *sql.Rows) error {
		var id int64
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return err
		}
		byID[id] = text
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		text, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("no such name: %d", id)
		}
		out[i] = text
	}
	return out, nil
}

// Counts returns the number of images, annotations, and names.
func (c *Controller) Counts(ctx context.Context) (images, annots, names int, err error) {
	row := c.db.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM images), (SELECT COUNT(*) FROM annotations), (SELECT COUNT(*) FROM names)")
	if err := row.Scan(&images, &annots, &names); err != nil {
		return 0, 0, 0, fmt.Errorf("counting entities: %w", err)
	}
	return images, annots, names, nil
}

func (c *Controller) forEachID(ctx context.Context, queryTmpl string, ids []int64, scan func(*sql.Rows) error) error {
	if len(ids) == 0 {
		return nil
	}
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	const batchSize = 500
	for start := 0; start < len(unique); start += batchSize {
		end := start + batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		rows, err := c.db.db.QueryContext(ctx, fmt.Sprintf(queryTmpl, placeholders), args...)
		if err != nil {
			return fmt.Errorf("querying entities: %w", err)
		}
		for rows.Next() {
			if err := scan(rows); err != nil {
				rows.Close()
				return fmt.Errorf("scanning entity: %w", err)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}
