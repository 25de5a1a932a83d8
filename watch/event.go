// Package watch delivers change notifications for key paths. It is the
// optional, backend-side extension of the storage contracts: a backend owns a
// Hub, publishes every committed bucket transition to it, and the Hub turns
// transitions into events for each subscribed path.
package watch

import (
	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/value"
)

// ID identifies a subscription.
type ID string

// Event is one of ValueChanged, ValueRemoved, ChildAdded, ChildRemoved or
// ChildChanged.
type Event interface {
	// Type is a stable name, e.g. "child_added".
	Type() string
	// Subject is the subscribed path the event belongs to.
	Subject() keypath.Path

	event()
}

// ValueChanged reports the new value at the subscribed path.
type ValueChanged struct {
	Path  keypath.Path
	Value value.Value
}

// ValueRemoved reports that the subscribed path no longer holds a value.
type ValueRemoved struct {
	Path keypath.Path
}

// ChildAdded reports a child that did not exist before.
type ChildAdded struct {
	Path  keypath.Path
	Key   string
	Value value.Value
}

// ChildRemoved reports a child that no longer exists.
type ChildRemoved struct {
	Path keypath.Path
	Key  string
}

// ChildChanged reports a child whose value was replaced.
type ChildChanged struct {
	Path  keypath.Path
	Key   string
	Value value.Value
}

func (ValueChanged) Type() string { return "value_changed" }
func (ValueRemoved) Type() string { return "value_removed" }
func (ChildAdded) Type() string   { return "child_added" }
func (ChildRemoved) Type() string { return "child_removed" }
func (ChildChanged) Type() string { return "child_changed" }

func (e ValueChanged) Subject() keypath.Path { return e.Path }
func (e ValueRemoved) Subject() keypath.Path { return e.Path }
func (e ChildAdded) Subject() keypath.Path   { return e.Path }
func (e ChildRemoved) Subject() keypath.Path { return e.Path }
func (e ChildChanged) Subject() keypath.Path { return e.Path }

func (ValueChanged) event() {}
func (ValueRemoved) event() {}
func (ChildAdded) event()   {}
func (ChildRemoved) event() {}
func (ChildChanged) event() {}

// Diff computes the events a subscriber at p sees when p's bucket goes from
// before to after. A Null counts as absent, both for p and for its children.
func Diff(p keypath.Path, before value.Value, beforeOK bool, after value.Value, afterOK bool) []Event {
	old, oldOK := resolve(p, before, beforeOK)
	cur, curOK := resolve(p, after, afterOK)

	var events []Event
	switch {
	case !oldOK && !curOK:
		return nil
	case oldOK && !curOK:
		events = append(events, ValueRemoved{Path: p})
	case !oldOK || !old.Equal(cur):
		events = append(events, ValueChanged{Path: p, Value: cur})
	default:
		return nil
	}

	for k, child := range old.Children() {
		if child.IsNull() {
			continue
		}
		if next, ok := cur.Child(k); !ok || next.IsNull() {
			events = append(events, ChildRemoved{Path: p, Key: k})
		}
	}
	for k, child := range cur.Children() {
		if child.IsNull() {
			continue
		}
		prev, ok := old.Child(k)
		switch {
		case !ok || prev.IsNull():
			events = append(events, ChildAdded{Path: p, Key: k, Value: child})
		case !prev.Equal(child):
			events = append(events, ChildChanged{Path: p, Key: k, Value: child})
		}
	}
	return events
}

func resolve(p keypath.Path, root value.Value, ok bool) (value.Value, bool) {
	if !ok {
		return value.Value{}, false
	}
	v, ok := root.Lookup(p.Rest())
	if !ok || v.IsNull() {
		return value.Value{}, false
	}
	return v, true
}
