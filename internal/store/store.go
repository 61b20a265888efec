// Package store persists named REPL programs (source plus their
// compiled chunk) so a `:save`/`:load` session can survive the process
// exiting. LocalCache is grounded in the teacher's sql.Open("sqlite",
// path) usage (internal/vm/vm.go's sys_db_open builtin in
// estevaofon-noxy, which pulls in modernc.org/sqlite the same way);
// this package is the concrete home the core's "out of scope"
// driver/registry boundary (spec.md §1) never defines one for.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"loxvm/internal/chunk"
)

// Entry is one saved program's metadata, returned by List.
type Entry struct {
	Name     string
	FileName string
	SavedAt  time.Time
}

// LocalCache is a sqlite-backed program cache. A fresh database file
// gets its schema created on first open.
type LocalCache struct {
	db *sql.DB
}

// OpenLocalCache opens (creating if necessary) a sqlite database at
// path and ensures its chunks table exists.
func OpenLocalCache(path string) (*LocalCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS chunks (
		name TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		source TEXT NOT NULL,
		payload BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &LocalCache{db: db}, nil
}

func (c *LocalCache) Close() error { return c.db.Close() }

// Save encodes c's chunk and upserts it under name, recording the
// source text it was compiled from so :load can run it again.
func (lc *LocalCache) Save(name, fileName, source string, c *chunk.Chunk) error {
	payload, err := Encode(c)
	if err != nil {
		return err
	}
	_, err = lc.db.Exec(
		`INSERT INTO chunks (name, file_name, source, payload, saved_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			file_name=excluded.file_name, source=excluded.source,
			payload=excluded.payload, saved_at=excluded.saved_at`,
		name, fileName, source, payload, time.Now().Unix())
	return err
}

// Load returns the source and chunk stored under name, or ok=false if
// absent.
func (lc *LocalCache) Load(name string) (source string, c *chunk.Chunk, ok bool, err error) {
	var payload []byte
	err = lc.db.QueryRow(`SELECT source, payload FROM chunks WHERE name = ?`, name).Scan(&source, &payload)
	if err == sql.ErrNoRows {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}
	c, err = Decode(payload)
	if err != nil {
		return "", nil, false, err
	}
	return source, c, true, nil
}

// List returns every saved program's metadata, most recently saved
// first.
func (lc *LocalCache) List() ([]Entry, error) {
	rows, err := lc.db.Query(`SELECT name, file_name, saved_at FROM chunks ORDER BY saved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var savedAt int64
		if err := rows.Scan(&e.Name, &e.FileName, &savedAt); err != nil {
			return nil, err
		}
		e.SavedAt = time.Unix(savedAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Encode and Decode define the wire/storage representation a chunk is
// persisted in, shared by LocalCache and the remote backend's JSON
// protocol (internal/store/remote.go) so a chunk saved by one reads
// back correctly from the other.
func Encode(c *chunk.Chunk) ([]byte, error) {
	return json.Marshal(c)
}

func Decode(payload []byte) (*chunk.Chunk, error) {
	var c chunk.Chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("store: decode chunk: %w", err)
	}
	return &c, nil
}
