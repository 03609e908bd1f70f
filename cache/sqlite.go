package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore keeps cache instances in a single SQLite database: one table
// registering instance names in creation order, one table holding entries
// keyed by (instance, key). Entry payloads are zstd-compressed.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a store with the given filename as the db.
// If the filename is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) (*SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("opening cache db %q: %w", filename, err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			created INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			instance TEXT NOT NULL,
			key TEXT NOT NULL,
			stored INTEGER NOT NULL,
			digest BLOB,
			bytes BLOB NOT NULL,
			PRIMARY KEY (instance, key)
		)`,
		"CREATE INDEX IF NOT EXISTS entries_key_idx ON entries (key)",
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing cache db: %w", err)
		}
	}
	return &SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteStore) Open(name string) (Instance, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO instances (name, created) VALUES (?, ?)",
		name, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("opening cache instance %q: %w", name, err)
	}
	return &sqliteInstance{store: s, name: name}, nil
}

func (s *SQLiteStore) Match(key string) (Entry, bool, error) {
	row := s.db.QueryRow(`SELECT e.stored, e.digest, e.bytes
		FROM entries e JOIN instances i ON i.name = e.instance
		WHERE e.key = ? ORDER BY i.id LIMIT 1`, key)
	return scanEntry(row, key)
}

func (s *SQLiteStore) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM instances ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Delete(name string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM entries WHERE instance = ?", name); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec("DELETE FROM instances WHERE name = ?", name); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteInstance struct {
	store *SQLiteStore
	name  string
}

func (i *sqliteInstance) Name() string {
	return i.name
}

func (i *sqliteInstance) Get(key string) (Entry, bool, error) {
	row := i.store.db.QueryRow(
		"SELECT stored, digest, bytes FROM entries WHERE instance = ? AND key = ?",
		i.name, key,
	)
	return scanEntry(row, key)
}

func (i *sqliteInstance) Put(key string, e Entry) error {
	i.store.writeMutex.Lock()
	defer i.store.writeMutex.Unlock()
	_, err := i.store.db.Exec(
		"INSERT OR REPLACE INTO entries (instance, key, stored, digest, bytes) VALUES (?, ?, ?, ?, ?)",
		i.name, key, e.StoredAt.Unix(), e.Digest, compress(e.Bytes),
	)
	return err
}

func (i *sqliteInstance) Keys(cb func(key string)) error {
	rows, err := i.store.db.Query(
		"SELECT key FROM entries WHERE instance = ? ORDER BY key", i.name,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		cb(key)
	}
	return rows.Err()
}

func (i *sqliteInstance) Len() (int, error) {
	var n int
	err := i.store.db.QueryRow(
		"SELECT COUNT(*) FROM entries WHERE instance = ?", i.name,
	).Scan(&n)
	return n, err
}

func scanEntry(row *sql.Row, key string) (Entry, bool, error) {
	var stored int64
	var e Entry
	if err := row.Scan(&stored, &e.Digest, &e.Bytes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	bytes, err := decompress(e.Bytes)
	if err != nil {
		return Entry{}, false, fmt.Errorf("decompressing entry %q: %w", key, err)
	}
	e.Key = key
	e.StoredAt = time.Unix(stored, 0)
	e.Bytes = bytes
	return e, true, nil
}
