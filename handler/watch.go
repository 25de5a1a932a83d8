package handler

import (
	"fmt"
	"net/http"

	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
	"github.com/stevemurr/treestore/watch"
)

// eventBody is the data line of one server-sent event.
type eventBody struct {
	Path  string       `json:"path"`
	Key   string       `json:"key,omitempty"`
	Value *value.Value `json:"value,omitempty"`
}

func encodeEvent(ev watch.Event) eventBody {
	body := eventBody{Path: ev.Subject().String()}
	switch e := ev.(type) {
	case watch.ValueChanged:
		body.Value = &e.Value
	case watch.ChildAdded:
		body.Key, body.Value = e.Key, &e.Value
	case watch.ChildChanged:
		body.Key, body.Value = e.Key, &e.Value
	case watch.ChildRemoved:
		body.Key = e.Key
	}
	return body
}

// watch streams change events for the path as server-sent events until the
// client goes away. The event name is the event type.
func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	p, err := pathVar(r)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	watcher, ok := h.docs.(storage.Watcher)
	if !ok {
		h.writeStorageError(w, r, storage.ErrUnsupported)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, events, err := watcher.Subscribe(r.Context(), p)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	defer watcher.Unsubscribe(id)
	log := h.log.WithField("subscription", id).WithField("path", p.String())
	log.Debug("watch started")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", id)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(encodeEvent(ev))
		if err != nil {
			log.WithError(err).Warn("encode event")
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), data); err != nil {
			break
		}
		flusher.Flush()
	}
	log.Debug("watch ended")
}
