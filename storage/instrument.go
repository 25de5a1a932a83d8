package storage

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/value"
	"github.com/stevemurr/treestore/watch"
)

// ErrUnsupported is returned by a decorator when the wrapped backend lacks
// an optional extension.
var ErrUnsupported = errors.New("operation not supported by backend")

var (
	operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "treestore",
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Duration of storage operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind", "backend", "op"})

	operationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treestore",
		Subsystem: "storage",
		Name:      "operation_errors_total",
		Help:      "Storage operations that failed with anything other than not-found.",
	}, []string{"kind", "backend", "op"})
)

func init() {
	prometheus.MustRegister(operationDuration, operationErrors)
}

type instrument struct {
	kind    string
	backend string
	log     *logrus.Entry
}

// observe validates p, then returns a deferrable that records the duration
// and outcome of op.
func (in instrument) observe(op string, p keypath.Path) (func(*error), error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	return func(errp *error) {
		elapsed := time.Since(start)
		operationDuration.WithLabelValues(in.kind, in.backend, op).Observe(elapsed.Seconds())
		entry := in.log.WithFields(logrus.Fields{
			"op":       op,
			"path":     p.String(),
			"duration": elapsed,
		})
		err := *errp
		switch {
		case err == nil, IsNotFound(err):
			entry.Debug("storage operation")
		default:
			operationErrors.WithLabelValues(in.kind, in.backend, op).Inc()
			entry.WithError(err).Warn("storage operation failed")
		}
	}, nil
}

func (in instrument) close(next any) error {
	if c, ok := next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// InstrumentedDocuments wraps a DocumentStorage with path validation,
// debug logging and prometheus metrics. It always offers GetChildKeys and
// forwards Subscribe/Unsubscribe when the backend supports them.
type InstrumentedDocuments struct {
	instrument
	next DocumentStorage
}

// InstrumentDocuments decorates next. backend labels logs and metrics.
func InstrumentDocuments(next DocumentStorage, backend string, log *logrus.Entry) *InstrumentedDocuments {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InstrumentedDocuments{
		instrument: instrument{kind: "document", backend: backend, log: log.WithField("backend", backend)},
		next:       next,
	}
}

var (
	_ DocumentStorage = (*InstrumentedDocuments)(nil)
	_ ChildKeyLister  = (*InstrumentedDocuments)(nil)
	_ Watcher         = (*InstrumentedDocuments)(nil)
)

func (d *InstrumentedDocuments) Get(ctx context.Context, p keypath.Path) (v value.Value, err error) {
	done, err := d.observe("get", p)
	if err != nil {
		return value.Value{}, err
	}
	defer done(&err)
	return d.next.Get(ctx, p)
}

func (d *InstrumentedDocuments) GetCollection(ctx context.Context, p keypath.Path) (seq iter.Seq[value.Value], err error) {
	done, err := d.observe("get_collection", p)
	if err != nil {
		return nil, err
	}
	defer done(&err)
	return d.next.GetCollection(ctx, p)
}

func (d *InstrumentedDocuments) GetChildKeys(ctx context.Context, p keypath.Path) (seq iter.Seq[string], err error) {
	done, err := d.observe("get_child_keys", p)
	if err != nil {
		return nil, err
	}
	defer done(&err)
	return ChildKeys(ctx, d.next, p)
}

func (d *InstrumentedDocuments) Write(ctx context.Context, p keypath.Path, v value.Value) (err error) {
	done, err := d.observe("write", p)
	if err != nil {
		return err
	}
	defer done(&err)
	return d.next.Write(ctx, p, v)
}

func (d *InstrumentedDocuments) Merge(ctx context.Context, p keypath.Path, v value.Value) (err error) {
	done, err := d.observe("merge", p)
	if err != nil {
		return err
	}
	defer done(&err)
	return d.next.Merge(ctx, p, v)
}

func (d *InstrumentedDocuments) Delete(ctx context.Context, p keypath.Path) (err error) {
	done, err := d.observe("delete", p)
	if err != nil {
		return err
	}
	defer done(&err)
	return d.next.Delete(ctx, p)
}

func (d *InstrumentedDocuments) Append(ctx context.Context, p keypath.Path, v value.Value) (key string, err error) {
	done, err := d.observe("append", p)
	if err != nil {
		return "", err
	}
	defer done(&err)
	return d.next.Append(ctx, p, v)
}

func (d *InstrumentedDocuments) Subscribe(ctx context.Context, p keypath.Path) (watch.ID, <-chan watch.Event, error) {
	w, ok := d.next.(Watcher)
	if !ok {
		return "", nil, ErrUnsupported
	}
	if err := p.Validate(); err != nil {
		return "", nil, err
	}
	d.log.WithField("path", p.String()).Debug("subscribe")
	return w.Subscribe(ctx, p)
}

func (d *InstrumentedDocuments) Unsubscribe(id watch.ID) error {
	w, ok := d.next.(Watcher)
	if !ok {
		return ErrUnsupported
	}
	d.log.WithField("subscription", id).Debug("unsubscribe")
	return w.Unsubscribe(id)
}

// Close closes the wrapped backend if it holds resources.
func (d *InstrumentedDocuments) Close() error { return d.close(d.next) }

// InstrumentedBlobs is the BinaryStorage counterpart of
// InstrumentedDocuments.
type InstrumentedBlobs struct {
	instrument
	next BinaryStorage
}

// InstrumentBlobs decorates next. backend labels logs and metrics.
func InstrumentBlobs(next BinaryStorage, backend string, log *logrus.Entry) *InstrumentedBlobs {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InstrumentedBlobs{
		instrument: instrument{kind: "binary", backend: backend, log: log.WithField("backend", backend)},
		next:       next,
	}
}

var _ BinaryStorage = (*InstrumentedBlobs)(nil)

func (b *InstrumentedBlobs) Get(ctx context.Context, p keypath.Path) (rc io.ReadCloser, err error) {
	done, err := b.observe("get", p)
	if err != nil {
		return nil, err
	}
	defer done(&err)
	return b.next.Get(ctx, p)
}

func (b *InstrumentedBlobs) Write(ctx context.Context, p keypath.Path, r io.Reader) (err error) {
	done, err := b.observe("write", p)
	if err != nil {
		return err
	}
	defer done(&err)
	return b.next.Write(ctx, p, r)
}

func (b *InstrumentedBlobs) Delete(ctx context.Context, p keypath.Path) (err error) {
	done, err := b.observe("delete", p)
	if err != nil {
		return err
	}
	defer done(&err)
	return b.next.Delete(ctx, p)
}

// Close closes the wrapped backend if it holds resources.
func (b *InstrumentedBlobs) Close() error { return b.close(b.next) }
