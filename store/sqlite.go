package store

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/stevemurr/treestore/codec"
	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
)

// SqliteStore stores buckets and blobs in a single SQLite database.
//
// Tables:
//
//	buckets(name, data)  PRIMARY KEY (name)   -- data encoded by the codec
//	blobs(path, data)    PRIMARY KEY (path)   -- path is keypath.Path.String()
type SqliteStore struct {
	mu    sync.RWMutex
	db    *sql.DB
	codec codec.Codec
}

// NewSqliteStore opens (creating if needed) the database at dbPath. A nil
// codec selects JSON. The caller must import a driver registered as
// "sqlite3", normally github.com/mattn/go-sqlite3.
func NewSqliteStore(dbPath string, c codec.Codec) (*SqliteStore, error) {
	if c == nil {
		c = codec.JSON{}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create dir for %s", dbPath)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dbPath)
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS buckets (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS blobs (
			path TEXT PRIMARY KEY,
			data BLOB NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "init %s", dbPath)
		}
	}
	return &SqliteStore{db: db, codec: c}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Load(ctx context.Context, bucket string) (value.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx, s.db, bucket)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SqliteStore) load(ctx context.Context, q queryRower, bucket string) (value.Value, bool, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, "SELECT data FROM buckets WHERE name = ?", bucket).Scan(&raw)
	if err == sql.ErrNoRows {
		return value.Value{}, false, nil
	}
	if err != nil {
		return value.Value{}, false, errors.Wrapf(err, "load bucket %q", bucket)
	}
	v, err := s.codec.Decode(raw)
	if err != nil {
		return value.Value{}, false, errors.Wrapf(err, "decode bucket %q", bucket)
	}
	return v, true, nil
}

func (s *SqliteStore) Update(ctx context.Context, bucket string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	old, ok, err := s.load(ctx, tx, bucket)
	if err != nil {
		return err
	}
	next, keep, err := fn(old, ok)
	if err != nil {
		return err
	}
	if keep {
		b, err := s.codec.Encode(next)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO buckets (name, data) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET data = excluded.data`,
			bucket, b,
		)
		if err != nil {
			return errors.Wrapf(err, "store bucket %q", bucket)
		}
	} else if _, err := tx.ExecContext(ctx, "DELETE FROM buckets WHERE name = ?", bucket); err != nil {
		return errors.Wrapf(err, "drop bucket %q", bucket)
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func (s *SqliteStore) Buckets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM buckets ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "list buckets")
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SqliteBlobStore is the BinaryStorage view of a SqliteStore's blobs table.
type SqliteBlobStore struct {
	*SqliteStore
}

// Blobs returns the BinaryStorage sharing s's database.
func (s *SqliteStore) Blobs() SqliteBlobStore {
	return SqliteBlobStore{s}
}

var _ storage.BinaryStorage = SqliteBlobStore{}

func (s SqliteBlobStore) Get(ctx context.Context, p keypath.Path) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM blobs WHERE path = ?", p.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, storage.NotFound(p)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get blob %s", p)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s SqliteBlobStore) Write(ctx context.Context, p keypath.Path, r io.Reader) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "read blob %s", p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blobs (path, data) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data`,
		p.String(), data,
	)
	return errors.Wrapf(err, "write blob %s", p)
}

func (s SqliteBlobStore) Delete(ctx context.Context, p keypath.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE path = ?", p.String())
	return errors.Wrapf(err, "delete blob %s", p)
}
