package schema

import (
	"context"
	"io"
	"iter"
	"strconv"

	"github.com/pkg/errors"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
	"github.com/stevemurr/treestore/watch"
)

// pendingKey stands in for the key Append has not generated yet.
const pendingKey = "<new>"

// Guarded is a DocumentStorage that rejects mutations leaving a document
// invalid under its bucket's schema. A document is the value at
// [bucket, key]; the bucket's Registry entry applies to each of them.
//
// The check reads the current document before the write, so a concurrent
// writer to the same document can still slip an invalid combination in.
type Guarded struct {
	next storage.DocumentStorage
	reg  *Registry
}

// Guard wraps next. Schemas are read from reg on every mutation.
func Guard(next storage.DocumentStorage, reg *Registry) *Guarded {
	return &Guarded{next: next, reg: reg}
}

var (
	_ storage.DocumentStorage = (*Guarded)(nil)
	_ storage.ChildKeyLister  = (*Guarded)(nil)
	_ storage.Watcher         = (*Guarded)(nil)
)

func (g *Guarded) Get(ctx context.Context, p keypath.Path) (value.Value, error) {
	return g.next.Get(ctx, p)
}

func (g *Guarded) GetCollection(ctx context.Context, p keypath.Path) (iter.Seq[value.Value], error) {
	return g.next.GetCollection(ctx, p)
}

func (g *Guarded) GetChildKeys(ctx context.Context, p keypath.Path) (iter.Seq[string], error) {
	return storage.ChildKeys(ctx, g.next, p)
}

func (g *Guarded) Write(ctx context.Context, p keypath.Path, v value.Value) error {
	err := g.check(ctx, p, func(value.Value, bool) (value.Value, bool) {
		return v, true
	})
	if err != nil {
		return err
	}
	return g.next.Write(ctx, p, v)
}

func (g *Guarded) Merge(ctx context.Context, p keypath.Path, v value.Value) error {
	err := g.check(ctx, p, func(cur value.Value, exists bool) (value.Value, bool) {
		return storage.Overlay(cur, exists, v), true
	})
	if err != nil {
		return err
	}
	return g.next.Merge(ctx, p, v)
}

func (g *Guarded) Delete(ctx context.Context, p keypath.Path) error {
	err := g.check(ctx, p, func(value.Value, bool) (value.Value, bool) {
		return value.Value{}, false
	})
	if err != nil {
		return err
	}
	return g.next.Delete(ctx, p)
}

func (g *Guarded) Append(ctx context.Context, p keypath.Path, v value.Value) (string, error) {
	err := g.check(ctx, p, func(cur value.Value, exists bool) (value.Value, bool) {
		switch {
		case exists && cur.Kind() == value.KindArray:
			return cur.Put([]string{strconv.Itoa(cur.Len())}, v), true
		case !exists || cur.IsNull() || cur.Kind() == value.KindObject:
			return cur.With(pendingKey, v), true
		}
		// Scalars are rejected by the backend.
		return cur, true
	})
	if err != nil {
		return "", err
	}
	return g.next.Append(ctx, p, v)
}

// check simulates a mutation of the value at p and validates every document
// it changes. apply receives the current value at p and returns its
// replacement, or keep == false for removal.
func (g *Guarded) check(ctx context.Context, p keypath.Path, apply func(cur value.Value, exists bool) (next value.Value, keep bool)) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Bucket() == Bucket {
		return nil
	}
	s, ok, err := g.reg.Get(ctx, p.Bucket())
	if err != nil || !ok {
		return err
	}

	if len(p) == 1 {
		root, exists, err := storage.LiftDocument(ctx, g.next, p)
		if err != nil {
			return err
		}
		next, keep := apply(root, exists)
		if !keep {
			return nil
		}
		for k, doc := range next.Children() {
			if doc.IsNull() {
				continue
			}
			if old, ok := root.Child(k); ok && old.Equal(doc) {
				continue
			}
			if err := Validate(s, doc); err != nil {
				return errors.Wrapf(err, "document %q", k)
			}
		}
		return nil
	}

	docPath, rel := p[:2], p[2:]
	doc, docOK, err := storage.LiftDocument(ctx, g.next, docPath)
	if err != nil {
		return err
	}
	cur, exists := value.Value{}, false
	if docOK {
		cur, exists = doc.Lookup(rel)
	}
	next, keep := apply(cur, exists)
	switch {
	case !keep && len(rel) == 0:
		return nil
	case !keep:
		doc, _ = doc.Remove(rel)
	default:
		doc = doc.Put(rel, next)
	}
	if doc.IsNull() {
		return nil
	}
	return Validate(s, doc)
}

func (g *Guarded) Subscribe(ctx context.Context, p keypath.Path) (watch.ID, <-chan watch.Event, error) {
	w, ok := g.next.(storage.Watcher)
	if !ok {
		return "", nil, storage.ErrUnsupported
	}
	return w.Subscribe(ctx, p)
}

func (g *Guarded) Unsubscribe(id watch.ID) error {
	w, ok := g.next.(storage.Watcher)
	if !ok {
		return storage.ErrUnsupported
	}
	return w.Unsubscribe(id)
}

// Close closes the wrapped storage if it holds resources.
func (g *Guarded) Close() error {
	if c, ok := g.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
