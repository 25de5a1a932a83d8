package watch

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/value"
)

// ErrUnknownSubscription is returned when unsubscribing an ID the hub does
// not hold, including one already unsubscribed.
var ErrUnknownSubscription = errors.New("unknown subscription")

// Hub is a registry of subscriptions. Subscribe, Unsubscribe and Publish may
// be called concurrently.
type Hub struct {
	mu   sync.RWMutex
	subs map[ID]*subscription
	log  *logrus.Entry
}

type subscription struct {
	id   ID
	path keypath.Path
	in   chan []Event
	out  chan Event
	done chan struct{}
	stop func() bool
}

// NewHub creates an empty Hub.
func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{subs: make(map[ID]*subscription), log: log}
}

// Subscribe registers interest in p. Events arrive on the returned channel in
// publish order; the channel is closed by Unsubscribe, by Close, or when ctx
// is done. A slow reader never blocks publishers: undelivered events queue up
// per subscription.
func (h *Hub) Subscribe(ctx context.Context, p keypath.Path) (ID, <-chan Event) {
	s := &subscription{
		id:   ID(uuid.Must(uuid.NewV7()).String()),
		path: append(keypath.Path(nil), p...),
		in:   make(chan []Event),
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s.id] = s
	s.stop = context.AfterFunc(ctx, func() { _ = h.Unsubscribe(s.id) })
	h.mu.Unlock()

	go s.pump()

	h.log.WithFields(logrus.Fields{"subscription": s.id, "path": p.String()}).Debug("watch: subscribed")
	return s.id, s.out
}

// Unsubscribe stops delivery for id and closes its channel.
func (h *Hub) Unsubscribe(id ID) error {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if !ok {
		return ErrUnknownSubscription
	}
	s.close()
	h.log.WithField("subscription", id).Debug("watch: unsubscribed")
	return nil
}

// Close unsubscribes everything.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[ID]*subscription)
	h.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish reports that bucket went from before to after. Either side may be
// absent (ok == false).
func (h *Hub) Publish(bucket string, before value.Value, beforeOK bool, after value.Value, afterOK bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.path.Bucket() != bucket {
			continue
		}
		events := Diff(s.path, before, beforeOK, after, afterOK)
		if len(events) == 0 {
			continue
		}
		select {
		case s.in <- events:
		case <-s.done:
		}
	}
}

func (s *subscription) close() {
	if s.stop != nil {
		s.stop()
	}
	close(s.done)
}

func (s *subscription) pump() {
	defer close(s.out)
	var queue []Event
	for {
		var out chan Event
		var next Event
		if len(queue) > 0 {
			out, next = s.out, queue[0]
		}
		select {
		case events := <-s.in:
			queue = append(queue, events...)
		case out <- next:
			queue[0] = nil
			queue = queue[1:]
		case <-s.done:
			return
		}
	}
}
