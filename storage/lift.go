package storage

import (
	"context"
	"io"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/value"
)

// Lift turns a not-found result into an absent one:
//
//	v, ok, err := storage.Lift(docs.Get(ctx, p))
//
// Only ErrNotFound is absorbed; every other error comes back unchanged.
func Lift[T any](v T, err error) (T, bool, error) {
	if err != nil {
		var zero T
		if IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return v, true, nil
}

// LiftDocument is the optional form of DocumentStorage.Get.
func LiftDocument(ctx context.Context, s DocumentStorage, p keypath.Path) (value.Value, bool, error) {
	return Lift(s.Get(ctx, p))
}

// LiftBinary is the optional form of BinaryStorage.Get.
func LiftBinary(ctx context.Context, s BinaryStorage, p keypath.Path) (io.ReadCloser, bool, error) {
	return Lift(s.Get(ctx, p))
}
