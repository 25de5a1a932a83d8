package storage

import (
	"context"
	"iter"
	"slices"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/value"
)

// Overlay computes the result of merging patch onto current. When patch is an
// Object and current is a container, each top-level field of patch replaces
// the child of the same key and every other child is kept. In all other
// cases (scalar or Array patch, absent, Null or scalar current) patch
// replaces current wholesale.
func Overlay(current value.Value, exists bool, patch value.Value) value.Value {
	if patch.Kind() != value.KindObject || !exists || !current.IsContainer() {
		return patch
	}
	out := current
	for _, f := range patch.Fields() {
		out = out.Put([]string{f.Key}, f.Value)
	}
	return out
}

// ChildKeysOf lists the keys of v's immediate children whose value is not
// Null: Object keys in insertion order, Array indices ascending. Scalars and
// absent values have none.
func ChildKeysOf(v value.Value, exists bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !exists {
			return
		}
		for k, child := range v.Children() {
			if child.IsNull() {
				continue
			}
			if !yield(k) {
				return
			}
		}
	}
}

// CollectionOf lists the values of v's immediate non-Null children. Arrays
// keep their order; Objects are visited in lexicographic key order so the
// result does not depend on how a backend orders fields.
func CollectionOf(v value.Value, exists bool) iter.Seq[value.Value] {
	return func(yield func(value.Value) bool) {
		if !exists {
			return
		}
		switch v.Kind() {
		case value.KindArray:
			for _, item := range v.Items() {
				if item.IsNull() {
					continue
				}
				if !yield(item) {
					return
				}
			}
		case value.KindObject:
			for _, k := range v.SortedKeys() {
				child, _ := v.Field(k)
				if child.IsNull() {
					continue
				}
				if !yield(child) {
					return
				}
			}
		}
	}
}

// ChildKeys lists the child keys at p. It uses the backend's native shallow
// read when s has one, and otherwise derives the keys from a lifted Get.
// Absence is an empty sequence, never ErrNotFound.
func ChildKeys(ctx context.Context, s DocumentStorage, p keypath.Path) (iter.Seq[string], error) {
	if l, ok := s.(ChildKeyLister); ok {
		return l.GetChildKeys(ctx, p)
	}
	v, ok, err := LiftDocument(ctx, s, p)
	if err != nil {
		return nil, err
	}
	return ChildKeysOf(v, ok), nil
}

// Collect drains a sequence into a slice. An empty sequence yields an empty,
// non-nil slice so it encodes as [] rather than null.
func Collect[T any](seq iter.Seq[T]) []T {
	out := slices.Collect(seq)
	if out == nil {
		out = []T{}
	}
	return out
}
