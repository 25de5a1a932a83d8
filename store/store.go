// Package store implements the storage contracts over concrete backends.
//
// Document backends persist one value tree per bucket (the first key-path
// segment) and implement BucketStore; Tree layers the full DocumentStorage
// contract on top of any of them. Blob backends implement
// storage.BinaryStorage directly.
package store

import (
	"context"

	"github.com/stevemurr/treestore/value"
)

// UpdateFunc receives the current tree of a bucket (ok is false when the
// bucket is empty) and returns its replacement. Returning keep == false
// drops the bucket. An error aborts the update without writing.
type UpdateFunc func(old value.Value, ok bool) (next value.Value, keep bool, err error)

// BucketStore is the primitive a document backend implements: whole-bucket
// reads and atomic whole-bucket read-modify-write. The callback of Update
// may run more than once when the backend retries an optimistic
// transaction, so it must not have side effects.
type BucketStore interface {
	// Load returns the tree stored for bucket; ok is false if there is none.
	Load(ctx context.Context, bucket string) (v value.Value, ok bool, err error)

	// Update atomically replaces the tree for bucket with fn's result.
	Update(ctx context.Context, bucket string, fn UpdateFunc) error

	// Buckets returns the names of all non-empty buckets, sorted.
	Buckets(ctx context.Context) ([]string, error)
}
