package store

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio"
	"github.com/pkg/errors"

	"github.com/stevemurr/treestore/value"
)

// JsonFileStore stores each bucket as a separate JSON file on disk. Files
// are replaced atomically, so a crash never leaves a half-written bucket.
//
// Layout:
//
//	data_dir/
//	  notes.json      # "notes" bucket
//	  tasks.json      # "tasks" bucket
//	  a%2Fb.json      # "a/b" bucket, name path-escaped
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dir)
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) bucketPath(bucket string) string {
	return filepath.Join(s.dir, url.PathEscape(bucket)+".json")
}

func (s *JsonFileStore) loadFile(path string) (value.Value, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return value.Value{}, false, nil
		}
		return value.Value{}, false, errors.Wrapf(err, "read %s", path)
	}
	v, err := value.ParseJSON(data)
	if err != nil {
		return value.Value{}, false, errors.Wrapf(err, "decode %s", path)
	}
	return v, true, nil
}

func (s *JsonFileStore) Load(_ context.Context, bucket string) (value.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadFile(s.bucketPath(bucket))
}

func (s *JsonFileStore) Update(_ context.Context, bucket string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.bucketPath(bucket)
	old, ok, err := s.loadFile(path)
	if err != nil {
		return err
	}
	next, keep, err := fn(old, ok)
	if err != nil {
		return err
	}
	if !keep {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", path)
		}
		return nil
	}
	b, err := value.MarshalIndent(next)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func (s *JsonFileStore) Buckets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "list %s", s.dir)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		bucket, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		names = append(names, bucket)
	}
	sort.Strings(names)
	return names, nil
}
