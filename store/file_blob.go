package store

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio"
	"github.com/pkg/errors"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
)

const blobExt = ".blob"

// FileBlobStore keeps one file per blob. Intermediate segments become
// directories, so a/b and a/b/c can both hold blobs:
//
//	root/
//	  a/
//	    b.blob
//	    b/
//	      c.blob
//
// Segments are path-escaped and a leading dot is escaped too, so no segment
// can name a hidden file or walk out of root.
type FileBlobStore struct {
	root string

	// mu keeps Delete from pruning a directory a Write is about to rename
	// into. Writes share it; Delete takes it exclusively.
	mu sync.RWMutex
}

func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create blob dir %s", root)
	}
	return &FileBlobStore{root: root}, nil
}

var _ storage.BinaryStorage = (*FileBlobStore)(nil)

func escapeSegment(seg string) string {
	seg = url.PathEscape(seg)
	if strings.HasPrefix(seg, ".") {
		seg = "%2E" + seg[1:]
	}
	return seg
}

func (s *FileBlobStore) filePath(p keypath.Path) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(p)+1)
	parts = append(parts, s.root)
	for _, seg := range p {
		parts = append(parts, escapeSegment(seg))
	}
	parts[len(parts)-1] += blobExt
	return filepath.Join(parts...), nil
}

func (s *FileBlobStore) Get(_ context.Context, p keypath.Path) (io.ReadCloser, error) {
	path, err := s.filePath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, storage.NotFound(p)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open blob %s", p)
	}
	return f, nil
}

// Write stages the blob in root, which is never pruned, and only holds mu
// while creating the directory and renaming into place.
func (s *FileBlobStore) Write(_ context.Context, p keypath.Path, r io.Reader) error {
	path, err := s.filePath(p)
	if err != nil {
		return err
	}
	t, err := renameio.TempFile(s.root, path)
	if err != nil {
		return errors.Wrapf(err, "write blob %s", p)
	}
	defer t.Cleanup()
	if _, err := io.Copy(t, r); err != nil {
		return errors.Wrapf(err, "write blob %s", p)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create dir for blob %s", p)
	}
	return errors.Wrapf(t.CloseAtomicallyReplace(), "write blob %s", p)
}

// Delete removes the blob file, then every directory it leaves empty.
func (s *FileBlobStore) Delete(_ context.Context, p keypath.Path) error {
	path, err := s.filePath(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete blob %s", p)
	}
	root := filepath.Clean(s.root)
	for dir := filepath.Dir(path); dir != root; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}
