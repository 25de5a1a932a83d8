// Package storage defines the contracts every treestore backend satisfies and
// the generic behavior layered on top of them.
//
// Two sibling abstractions share the key-path addressing model:
// BinaryStorage for opaque byte streams and DocumentStorage for structured
// value trees. Backends implement the primitives; this package supplies Lift,
// the shallow-overlay merge policy, child enumeration, and instrumentation.
package storage

import (
	"context"
	"io"
	"iter"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/value"
	"github.com/stevemurr/treestore/watch"
)

// BinaryStorage stores opaque byte sequences.
type BinaryStorage interface {
	// Get opens the blob at p. It returns an error matching ErrNotFound when
	// nothing is stored there, never an empty reader.
	Get(ctx context.Context, p keypath.Path) (io.ReadCloser, error)

	// Write creates or replaces the blob at p with everything read from r.
	Write(ctx context.Context, p keypath.Path, r io.Reader) error

	// Delete removes the blob at p. Deleting a missing blob is not an error.
	Delete(ctx context.Context, p keypath.Path) error
}

// DocumentStorage stores structured value trees.
type DocumentStorage interface {
	// Get returns the subtree rooted at p, or an error matching ErrNotFound.
	Get(ctx context.Context, p keypath.Path) (value.Value, error)

	// GetCollection returns the values of p's immediate children: array
	// order for an Array, key order for an Object, nothing otherwise.
	GetCollection(ctx context.Context, p keypath.Path) (iter.Seq[value.Value], error)

	// Write replaces the subtree at p with v.
	Write(ctx context.Context, p keypath.Path, v value.Value) error

	// Merge overlays the top-level fields of an Object v onto the value at p.
	// Any other v is written as-is. See Overlay.
	Merge(ctx context.Context, p keypath.Path, v value.Value) error

	// Delete removes p and everything beneath it. Deleting a missing path is
	// not an error.
	Delete(ctx context.Context, p keypath.Path) error

	// Append stores v as a new child of the container at p under a freshly
	// generated key, which it returns. A missing p is created first.
	Append(ctx context.Context, p keypath.Path, v value.Value) (string, error)
}

// ChildKeyLister is implemented by backends with a native shallow read.
// ChildKeys falls back to deriving the keys from Get when it is missing.
type ChildKeyLister interface {
	GetChildKeys(ctx context.Context, p keypath.Path) (iter.Seq[string], error)
}

// Watcher is the optional change-notification extension. Events for p are
// delivered on the returned channel until Unsubscribe closes it.
type Watcher interface {
	Subscribe(ctx context.Context, p keypath.Path) (watch.ID, <-chan watch.Event, error)
	Unsubscribe(id watch.ID) error
}

// NullPolicy decides whether an explicitly stored Null at the addressed path
// reads back as a value or as not-found. Backends differ here, so each
// adapter states its policy rather than guessing.
type NullPolicy int

const (
	// NullAsAbsent makes Get on an explicit Null fail with ErrNotFound.
	NullAsAbsent NullPolicy = iota
	// NullAsValue makes Get return the stored Null.
	NullAsValue
)

func (p NullPolicy) String() string {
	if p == NullAsValue {
		return "value"
	}
	return "absent"
}

// ParseNullPolicy accepts "absent" or "value"; "" means NullAsAbsent.
func ParseNullPolicy(s string) (NullPolicy, error) {
	switch s {
	case "", "absent":
		return NullAsAbsent, nil
	case "value":
		return NullAsValue, nil
	}
	return NullAsAbsent, &UnknownOptionError{Option: "null policy", Value: s}
}
