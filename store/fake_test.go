package store_test

import (
	"context"
	"iter"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
)

// fakeDocuments is a DocumentStorage with neither a native child-key lister
// nor watch support. Every read is not-found and every write is dropped.
type fakeDocuments struct{}

func (fakeDocuments) Get(_ context.Context, p keypath.Path) (value.Value, error) {
	return value.Value{}, storage.NotFound(p)
}

func (fakeDocuments) GetCollection(context.Context, keypath.Path) (iter.Seq[value.Value], error) {
	return storage.CollectionOf(value.Value{}, false), nil
}

func (fakeDocuments) Write(context.Context, keypath.Path, value.Value) error { return nil }

func (fakeDocuments) Merge(context.Context, keypath.Path, value.Value) error { return nil }

func (fakeDocuments) Delete(context.Context, keypath.Path) error { return nil }

func (fakeDocuments) Append(context.Context, keypath.Path, value.Value) (string, error) {
	return "", nil
}
