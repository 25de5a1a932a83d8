package store

import (
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stevemurr/treestore/codec"
	"github.com/stevemurr/treestore/storage"
)

// RedisPrefix namespaces every key the redis backends write.
const RedisPrefix = "treestore:"

// Options selects and configures the backends built by NewDocumentStorage
// and NewBinaryStorage.
type Options struct {
	Backend     string // document backend: json (default), sqlite, memory, redis
	BlobBackend string // blob backend: fs (default), sqlite, memory, redis
	DataDir     string
	RedisAddr   string
	Codec       string // sqlite and redis only: json (default), msgpack
	NullPolicy  storage.NullPolicy
	Logger      *logrus.Entry
}

func (o Options) logger() *logrus.Entry {
	if o.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return o.Logger
}

func (o Options) redisClient() redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      []string{o.RedisAddr},
		MaxRetries: 3,
	})
}

// NewDocumentStorage creates the document storage named by opts.Backend.
//
// Supported backends:
//
//	"json"   - one JSON file per bucket in DataDir (default)
//	"sqlite" - SQLite database at DataDir/treestore.db
//	"memory" - in-memory (ephemeral, for testing)
//	"redis"  - one key per bucket on the server at RedisAddr
func NewDocumentStorage(opts Options) (*storage.InstrumentedDocuments, error) {
	var (
		buckets BucketStore
		err     error
	)
	backend := opts.Backend
	if backend == "" {
		backend = "json"
	}
	c, err := codec.ByName(opts.Codec)
	if err != nil {
		return nil, err
	}
	switch backend {
	case "json":
		buckets, err = NewJsonFileStore(opts.DataDir)
	case "sqlite":
		buckets, err = NewSqliteStore(filepath.Join(opts.DataDir, "treestore.db"), c)
	case "memory":
		buckets = NewMemoryStore()
	case "redis":
		buckets = NewRedisStore(opts.redisClient(), RedisPrefix, c)
	default:
		return nil, &storage.UnknownOptionError{Option: "store backend", Value: opts.Backend}
	}
	if err != nil {
		return nil, err
	}
	log := opts.logger()
	tree := NewTree(buckets, WithNullPolicy(opts.NullPolicy), WithLogger(log))
	return storage.InstrumentDocuments(tree, backend, log), nil
}

// NewBinaryStorage creates the blob storage named by opts.BlobBackend.
//
// Supported backends:
//
//	"fs"     - one file per blob under DataDir/blobs (default)
//	"sqlite" - SQLite database at DataDir/blobs.db
//	"memory" - in-memory (ephemeral, for testing)
//	"redis"  - one key per blob on the server at RedisAddr
func NewBinaryStorage(opts Options) (*storage.InstrumentedBlobs, error) {
	var (
		blobs storage.BinaryStorage
		err   error
	)
	backend := opts.BlobBackend
	if backend == "" {
		backend = "fs"
	}
	switch backend {
	case "fs":
		blobs, err = NewFileBlobStore(filepath.Join(opts.DataDir, "blobs"))
	case "sqlite":
		var s *SqliteStore
		if s, err = NewSqliteStore(filepath.Join(opts.DataDir, "blobs.db"), nil); err == nil {
			blobs = s.Blobs()
		}
	case "memory":
		blobs = NewMemoryBlobStore()
	case "redis":
		blobs = NewRedisStore(opts.redisClient(), RedisPrefix, nil).Blobs()
	default:
		return nil, &storage.UnknownOptionError{Option: "blob backend", Value: opts.BlobBackend}
	}
	if err != nil {
		return nil, err
	}
	return storage.InstrumentBlobs(blobs, backend, opts.logger()), nil
}
