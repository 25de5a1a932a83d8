package store

import (
	"context"
	"io"
	"iter"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
	"github.com/stevemurr/treestore/watch"
)

// Tree implements storage.DocumentStorage, storage.ChildKeyLister and
// storage.Watcher over a BucketStore. Safe for concurrent use as long as the
// BucketStore is.
type Tree struct {
	buckets BucketStore
	policy  storage.NullPolicy
	hub     *watch.Hub
	newKey  func() string

	// locks holds one mutex per bucket, taken across commit and publish so
	// subscribers see transitions in commit order.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithNullPolicy sets how an explicit Null reads back. The default is
// storage.NullAsAbsent.
func WithNullPolicy(p storage.NullPolicy) TreeOption {
	return func(t *Tree) { t.policy = p }
}

// WithKeyGenerator replaces the UUIDv7 generator used by Append for Object
// containers.
func WithKeyGenerator(fn func() string) TreeOption {
	return func(t *Tree) { t.newKey = fn }
}

// WithLogger sets the logger of the Tree's watch hub.
func WithLogger(log *logrus.Entry) TreeOption {
	return func(t *Tree) { t.hub = watch.NewHub(log) }
}

// NewTree wraps buckets.
func NewTree(buckets BucketStore, opts ...TreeOption) *Tree {
	t := &Tree{
		buckets: buckets,
		newKey:  func() string { return uuid.Must(uuid.NewV7()).String() },
		locks:   map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.hub == nil {
		t.hub = watch.NewHub(nil)
	}
	return t
}

var (
	_ storage.DocumentStorage = (*Tree)(nil)
	_ storage.ChildKeyLister  = (*Tree)(nil)
	_ storage.Watcher         = (*Tree)(nil)
)

// Backend returns the underlying BucketStore.
func (t *Tree) Backend() BucketStore { return t.buckets }

// NullPolicy returns the configured policy.
func (t *Tree) NullPolicy() storage.NullPolicy { return t.policy }

// lookup reads p without applying the null policy.
func (t *Tree) lookup(ctx context.Context, p keypath.Path) (value.Value, bool, error) {
	if err := p.Validate(); err != nil {
		return value.Value{}, false, err
	}
	root, ok, err := t.buckets.Load(ctx, p.Bucket())
	if err != nil || !ok {
		return value.Value{}, false, err
	}
	v, ok := root.Lookup(p.Rest())
	return v, ok, nil
}

// Get returns the subtree at p. An explicit Null is not-found under
// storage.NullAsAbsent.
func (t *Tree) Get(ctx context.Context, p keypath.Path) (value.Value, error) {
	v, ok, err := t.lookup(ctx, p)
	if err != nil {
		return value.Value{}, err
	}
	if !ok || v.IsNull() && t.policy == storage.NullAsAbsent {
		return value.Value{}, storage.NotFound(p)
	}
	return v, nil
}

// GetCollection returns p's non-Null child values: array order, or sorted
// key order for Objects.
func (t *Tree) GetCollection(ctx context.Context, p keypath.Path) (iter.Seq[value.Value], error) {
	v, ok, err := t.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	return storage.CollectionOf(v, ok), nil
}

// GetChildKeys returns p's non-Null child keys in stored order.
func (t *Tree) GetChildKeys(ctx context.Context, p keypath.Path) (iter.Seq[string], error) {
	v, ok, err := t.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	return storage.ChildKeysOf(v, ok), nil
}

func checkFinite(p keypath.Path, v value.Value) error {
	if !v.Finite() {
		return errors.Wrapf(storage.ErrInvalidValue, "non-finite number written to %s", p)
	}
	return nil
}

// Write replaces the subtree at p.
func (t *Tree) Write(ctx context.Context, p keypath.Path, v value.Value) error {
	if err := checkFinite(p, v); err != nil {
		return err
	}
	return t.update(ctx, p, func(root value.Value, _ bool) (value.Value, bool, error) {
		return root.Put(p.Rest(), v), true, nil
	})
}

// Merge overlays v onto the value at p; see storage.Overlay.
func (t *Tree) Merge(ctx context.Context, p keypath.Path, v value.Value) error {
	if err := checkFinite(p, v); err != nil {
		return err
	}
	return t.update(ctx, p, func(root value.Value, ok bool) (value.Value, bool, error) {
		current, exists := value.Value{}, false
		if ok {
			current, exists = root.Lookup(p.Rest())
		}
		return root.Put(p.Rest(), storage.Overlay(current, exists, v)), true, nil
	})
}

// Delete removes p and its subtree. Deleting the bucket path drops the
// whole bucket.
func (t *Tree) Delete(ctx context.Context, p keypath.Path) error {
	return t.update(ctx, p, func(root value.Value, ok bool) (value.Value, bool, error) {
		if !ok || len(p) == 1 {
			return value.Value{}, false, nil
		}
		next, _ := root.Remove(p.Rest())
		return next, true, nil
	})
}

// Append adds v under a new key of the container at p. Arrays grow by one
// index; Objects, Nulls and missing paths get a UUIDv7 key, which sorts after
// every key previously generated by this process.
func (t *Tree) Append(ctx context.Context, p keypath.Path, v value.Value) (string, error) {
	if err := checkFinite(p, v); err != nil {
		return "", err
	}
	var key string
	err := t.update(ctx, p, func(root value.Value, ok bool) (value.Value, bool, error) {
		container, exists := value.Value{}, false
		if ok {
			container, exists = root.Lookup(p.Rest())
		}
		switch {
		case exists && container.Kind() == value.KindArray:
			key = strconv.Itoa(container.Len())
		case !exists || container.IsNull() || container.Kind() == value.KindObject:
			key = t.newKey()
			for _, taken := container.Field(key); taken; _, taken = container.Field(key) {
				key = t.newKey()
			}
		default:
			return value.Value{}, false, storage.ErrNotContainer
		}
		return root.Put(p.Child(key).Rest(), v), true, nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Subscribe registers for change events at p. Only changes made through
// this Tree are observed.
func (t *Tree) Subscribe(ctx context.Context, p keypath.Path) (watch.ID, <-chan watch.Event, error) {
	if err := p.Validate(); err != nil {
		return "", nil, err
	}
	id, events := t.hub.Subscribe(ctx, p)
	return id, events, nil
}

func (t *Tree) Unsubscribe(id watch.ID) error {
	return t.hub.Unsubscribe(id)
}

// Close ends every subscription and closes the BucketStore if it holds
// resources.
func (t *Tree) Close() error {
	t.hub.Close()
	if c, ok := t.buckets.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *Tree) lockBucket(bucket string) func() {
	t.mu.Lock()
	l, ok := t.locks[bucket]
	if !ok {
		l = &sync.Mutex{}
		t.locks[bucket] = l
	}
	t.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// update runs fn through BucketStore.Update and publishes the committed
// transition. Updates to one bucket through this Tree are serialized, so
// events are published in commit order.
func (t *Tree) update(ctx context.Context, p keypath.Path, fn UpdateFunc) error {
	if err := p.Validate(); err != nil {
		return err
	}
	unlock := t.lockBucket(p.Bucket())
	defer unlock()
	var (
		before, after     value.Value
		beforeOK, afterOK bool
	)
	err := t.buckets.Update(ctx, p.Bucket(), func(old value.Value, ok bool) (value.Value, bool, error) {
		next, keep, err := fn(old, ok)
		before, beforeOK, after, afterOK = old, ok, next, keep && err == nil
		return next, keep, err
	})
	if err != nil {
		return err
	}
	if beforeOK || afterOK {
		t.hub.Publish(p.Bucket(), before, beforeOK, after, afterOK)
	}
	return nil
}
