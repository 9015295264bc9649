// Package store persists the names of gamma tensors, so that equal gammas share a name across equations and runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableGamma = "gamma"

	// Memory is the path of a registry that lives only as long as it is open.
	Memory = ":memory:"
)

// Entry is a registered gamma.
type Entry struct {
	ID   int
	Name string
	Key  string
}

// Registry maps canonical gamma keys to gamma names.
type Registry struct {
	Path string

	db *sql.DB
}

// Open opens the registry at dbPath, creating it if it does not exist.
func Open(dbPath string) (*Registry, error) {
	r := &Registry{Path: dbPath}
	var err error
	r.db, err = newDB(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return r, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Name returns the name registered for key.
func (r *Registry) Name(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT name FROM %s WHERE key=?`, tableGamma)
	var name string
	err := r.db.QueryRowContext(ctx, sqlStr, key).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "")
	default:
		return name, true, nil
	}
}

// Resolve returns the name of key, registering the next free name "GammaN" if key is new.
// created reports whether key was new.
func (r *Registry) Resolve(key string) (string, bool, error) {
	name, ok, err := r.Name(key)
	if err != nil {
		return "", false, errors.Wrap(err, "")
	}
	if ok {
		return name, false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, errors.Wrap(err, "")
	}
	defer tx.Rollback()

	var id int
	sqlStr := fmt.Sprintf(`SELECT count(1) FROM %s`, tableGamma)
	if err := tx.QueryRowContext(ctx, sqlStr).Scan(&id); err != nil {
		return "", false, errors.Wrap(err, "")
	}
	name = fmt.Sprintf("Gamma%d", id)
	sqlStr = fmt.Sprintf(`INSERT INTO %s (id, name, key) VALUES (?, ?, ?)`, tableGamma)
	if _, err := tx.ExecContext(ctx, sqlStr, id, name, key); err != nil {
		return "", false, errors.Wrap(err, fmt.Sprintf("%s %d %s", sqlStr, id, key))
	}
	if err := tx.Commit(); err != nil {
		return "", false, errors.Wrap(err, "")
	}
	return name, true, nil
}

// All returns every registered gamma in the order of registration.
func (r *Registry) All() ([]Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT id, name, key FROM %s ORDER BY id`, tableGamma)
	rows, err := r.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Key); err != nil {
			return nil, errors.Wrap(err, "")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return entries, nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// An in-memory database is private to its connection.
	db.SetMaxOpenConns(1)

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY, name TEXT UNIQUE, key TEXT UNIQUE) STRICT`, tableGamma)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
