// Package replaydb keeps finished generations in SQLite so single replays can
// be looked up and exported without scanning parquet archives.
package replaydb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brensch/runger/store"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection. All access is serialised.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Generation is the index row for one recorded generation.
type Generation struct {
	ID         string
	Seed       int64
	Turns      int32
	Agents     int32
	Alive      int32
	Source     string
	RecordedAt time.Time
	IsExported bool
}

func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		seed INTEGER,
		turns INTEGER,
		agents INTEGER,
		alive INTEGER,
		source TEXT,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		is_exported BOOLEAN DEFAULT 0
	);

	-- one row per archived tick, stored as the JSON form of store.TickRow
	CREATE TABLE IF NOT EXISTS frames (
		generation_id TEXT,
		turn INTEGER,
		raw_json TEXT,
		PRIMARY KEY (generation_id, turn),
		FOREIGN KEY(generation_id) REFERENCES generations(id)
	);

	CREATE INDEX IF NOT EXISTS idx_generations_is_exported ON generations(is_exported);
	CREATE INDEX IF NOT EXISTS idx_frames_generation_id ON frames(generation_id);
	`

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (db *DB) GenerationExists(id string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var exists int
	err := db.conn.QueryRow("SELECT 1 FROM generations WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertGeneration stores a summary and its ticks in one transaction.
// Rows already present are left untouched.
func (db *DB) InsertGeneration(summary store.GenerationRow, ticks []store.TickRow) error {
	if summary.GenerationID == "" {
		return fmt.Errorf("generation id is empty")
	}
	source := ""
	if len(ticks) > 0 {
		source = ticks[0].Source
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO generations (id, seed, turns, agents, alive, source) VALUES (?, ?, ?, ?, ?, ?)",
		summary.GenerationID, summary.Seed, summary.Turns, summary.Agents, summary.Alive, source,
	); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO frames (generation_id, turn, raw_json) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare frame statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range ticks {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode tick %d: %w", t.Turn, err)
		}
		if _, err := stmt.Exec(summary.GenerationID, t.Turn, string(raw)); err != nil {
			return fmt.Errorf("insert frame %d: %w", t.Turn, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetUnexported returns up to limit generations not yet turned into
// training data, oldest first.
func (db *DB) GetUnexported(limit int) ([]Generation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT id, seed, turns, agents, alive, source, recorded_at, is_exported
		 FROM generations WHERE is_exported = 0 ORDER BY recorded_at, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []Generation
	for rows.Next() {
		var g Generation
		if err := rows.Scan(&g.ID, &g.Seed, &g.Turns, &g.Agents, &g.Alive, &g.Source, &g.RecordedAt, &g.IsExported); err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// GetTicks returns a generation's ticks ordered by turn.
func (db *DB) GetTicks(id string) ([]store.TickRow, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query("SELECT raw_json FROM frames WHERE generation_id = ? ORDER BY turn", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []store.TickRow
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var t store.TickRow
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode frame of %s: %w", id, err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

func (db *DB) MarkExported(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec("UPDATE generations SET is_exported = 1 WHERE id = ?", id)
	return err
}

func (db *DB) Stats() (total, exported, frames int64, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err = db.conn.QueryRow("SELECT COUNT(*) FROM generations").Scan(&total); err != nil {
		return
	}
	if err = db.conn.QueryRow("SELECT COUNT(*) FROM generations WHERE is_exported = 1").Scan(&exported); err != nil {
		return
	}
	err = db.conn.QueryRow("SELECT COUNT(*) FROM frames").Scan(&frames)
	return
}

func (db *DB) Close() error {
	return db.conn.Close()
}
