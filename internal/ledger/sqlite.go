// Package ledger keeps a SQLite record of every processed image and the
// outcome of each of its corners, flagged ones included, keyed by dataset
// and image name so reruns replace earlier rows.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"airphoto-prep/internal/fiducial"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open creates or opens the ledger at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL,
		name TEXT NOT NULL,
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT DEFAULT '',
		processed_at DATETIME NOT NULL,
		UNIQUE(dataset, name)
	);

	CREATE TABLE IF NOT EXISTS corners (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id INTEGER NOT NULL,
		corner TEXT NOT NULL,
		state TEXT NOT NULL,
		method TEXT NOT NULL,
		template TEXT DEFAULT '',
		x REAL DEFAULT 0,
		y REAL DEFAULT 0,
		confidence REAL DEFAULT 0,
		attempts INTEGER DEFAULT 0,
		FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_images_status ON images(dataset, status);
	CREATE INDEX IF NOT EXISTS idx_corners_image_id ON corners(image_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Image status values.
const (
	StatusResolved   = "resolved"
	StatusUnresolved = "unresolved"
	StatusAbandoned  = "abandoned"
)

// Record stores the outcome of one image, replacing any earlier record.
func (db *DB) Record(dataset string, set *fiducial.FiducialSet) error {
	if set == nil {
		return errors.New("nil fiducial set")
	}
	status := StatusUnresolved
	if set.Resolved() {
		status = StatusResolved
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := upsertImage(tx, dataset, set.Image, set.Size.X, set.Size.Y, status, "")
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO corners (image_id, corner, state, method, template, x, y, confidence, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range set.Corners {
		m := c.Match
		if _, err := stmt.Exec(id, c.Corner.String(), c.State.String(), m.Method.String(), m.Template,
			m.Point.X, m.Point.Y, m.Confidence, len(c.Attempts)); err != nil {
			return fmt.Errorf("failed to insert corner: %w", err)
		}
	}
	return tx.Commit()
}

// RecordAbandoned stores an image that produced no fiducial set.
func (db *DB) RecordAbandoned(dataset, name string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := upsertImage(tx, dataset, name, 0, 0, StatusAbandoned, msg); err != nil {
		return err
	}
	return tx.Commit()
}

// upsertImage inserts or refreshes an image row and clears its corners.
func upsertImage(tx *sql.Tx, dataset, name string, w, h int, status, msg string) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO images (dataset, name, width, height, status, error, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset, name) DO UPDATE SET
			width = excluded.width,
			height = excluded.height,
			status = excluded.status,
			error = excluded.error,
			processed_at = excluded.processed_at
	`, dataset, name, w, h, status, msg, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to upsert image: %w", err)
	}

	var id int64
	if err := tx.QueryRow(`SELECT id FROM images WHERE dataset = ? AND name = ?`, dataset, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read image id: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM corners WHERE image_id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to clear corners: %w", err)
	}
	return id, nil
}

// CornerRow is a stored corner outcome.
type CornerRow struct {
	Image      string
	Corner     string
	State      string
	Method     string
	Template   string
	X, Y       float64
	Confidence float64
	Attempts   int
}

// Images returns the names of a dataset's images with the given status.
func (db *DB) Images(dataset, status string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`SELECT name FROM images WHERE dataset = ? AND status = ? ORDER BY name`, dataset, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Corners returns the stored corners of one image in table order.
func (db *DB) Corners(dataset, name string) ([]CornerRow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT i.name, c.corner, c.state, c.method, c.template, c.x, c.y, c.confidence, c.attempts
		FROM corners c JOIN images i ON i.id = c.image_id
		WHERE i.dataset = ? AND i.name = ?
		ORDER BY c.id
	`, dataset, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query corners: %w", err)
	}
	defer rows.Close()

	var out []CornerRow
	for rows.Next() {
		var r CornerRow
		if err := rows.Scan(&r.Image, &r.Corner, &r.State, &r.Method, &r.Template, &r.X, &r.Y, &r.Confidence, &r.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan corner: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
