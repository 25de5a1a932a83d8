package schema

import (
	"context"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
)

// Bucket is the reserved bucket holding one schema per bucket name.
const Bucket = "_schemas"

// Registry stores bucket schemas in a DocumentStorage at [Bucket, name].
type Registry struct {
	docs storage.DocumentStorage
}

func NewRegistry(docs storage.DocumentStorage) *Registry {
	return &Registry{docs: docs}
}

// Get returns the schema for bucket; ok is false when none is set.
func (r *Registry) Get(ctx context.Context, bucket string) (s value.Value, ok bool, err error) {
	return storage.LiftDocument(ctx, r.docs, keypath.New(Bucket, bucket))
}

// Put installs s as the schema for bucket after checking its shape.
func (r *Registry) Put(ctx context.Context, bucket string, s value.Value) error {
	if bucket == "" || bucket == Bucket {
		return &keypath.InvalidPathError{Path: keypath.New(Bucket, bucket), Reason: "reserved bucket"}
	}
	if err := Check(s); err != nil {
		return err
	}
	return r.docs.Write(ctx, keypath.New(Bucket, bucket), s)
}

// Delete removes bucket's schema and reports whether one existed.
func (r *Registry) Delete(ctx context.Context, bucket string) (bool, error) {
	_, existed, err := r.Get(ctx, bucket)
	if err != nil || !existed {
		return false, err
	}
	return true, r.docs.Delete(ctx, keypath.New(Bucket, bucket))
}

// List returns every schema as an Object keyed by bucket name.
func (r *Registry) List(ctx context.Context) (value.Value, error) {
	all, ok, err := storage.LiftDocument(ctx, r.docs, keypath.New(Bucket))
	if err != nil {
		return value.Value{}, err
	}
	if !ok || all.Kind() != value.KindObject {
		return value.Object(), nil
	}
	return all, nil
}
