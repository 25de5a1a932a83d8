package store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/stevemurr/treestore/codec"
	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
)

// maxTxRetries bounds optimistic retries when a watched bucket key changes
// between read and commit.
const maxTxRetries = 16

// RedisStore keeps each bucket encoded under a single redis key:
//
//	<prefix>bucket:<name>   encoded tree
//	<prefix>blob:<path>     raw blob bytes
//
// Updates use WATCH/MULTI so concurrent writers from several processes never
// lose each other's changes.
type RedisStore struct {
	pool   redis.UniversalClient
	prefix string
	codec  codec.Codec
}

// NewRedisStore wraps pool. A nil codec selects JSON.
func NewRedisStore(pool redis.UniversalClient, prefix string, c codec.Codec) *RedisStore {
	if c == nil {
		c = codec.JSON{}
	}
	return &RedisStore{pool: pool, prefix: prefix, codec: c}
}

func (s *RedisStore) bucketKey(bucket string) string {
	return s.prefix + "bucket:" + bucket
}

func (s *RedisStore) blobKey(p keypath.Path) string {
	return s.prefix + "blob:" + p.String()
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, g getter, bucket string) (value.Value, bool, error) {
	raw, err := g.Get(ctx, s.bucketKey(bucket)).Bytes()
	if err == redis.Nil {
		return value.Value{}, false, nil
	}
	if err != nil {
		return value.Value{}, false, errors.Wrapf(err, "load bucket %q", bucket)
	}
	v, err := s.codec.Decode(raw)
	if err != nil {
		return value.Value{}, false, errors.Wrapf(err, "decode bucket %q", bucket)
	}
	return v, true, nil
}

func (s *RedisStore) Load(ctx context.Context, bucket string) (value.Value, bool, error) {
	return s.load(ctx, s.pool, bucket)
}

func (s *RedisStore) Update(ctx context.Context, bucket string, fn UpdateFunc) error {
	key := s.bucketKey(bucket)
	txf := func(tx *redis.Tx) error {
		old, ok, err := s.load(ctx, tx, bucket)
		if err != nil {
			return err
		}
		next, keep, err := fn(old, ok)
		if err != nil {
			return err
		}
		var data []byte
		if keep {
			if data, err = s.codec.Encode(next); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if keep {
				pipe.Set(ctx, key, data, 0)
			} else {
				pipe.Del(ctx, key)
			}
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.pool.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return errors.Errorf("update bucket %q: too much contention", bucket)
}

func (s *RedisStore) Buckets(ctx context.Context) ([]string, error) {
	pattern := s.prefix + "bucket:*"
	var names []string
	it := s.pool.Scan(ctx, 0, pattern, 100).Iterator()
	for it.Next(ctx) {
		names = append(names, strings.TrimPrefix(it.Val(), s.prefix+"bucket:"))
	}
	if err := it.Err(); err != nil {
		return nil, errors.Wrap(err, "list buckets")
	}
	sort.Strings(names)
	return names, nil
}

// RedisBlobStore is the BinaryStorage view of a RedisStore.
type RedisBlobStore struct {
	*RedisStore
}

// Blobs returns the BinaryStorage sharing s's client and prefix.
func (s *RedisStore) Blobs() RedisBlobStore {
	return RedisBlobStore{s}
}

var _ storage.BinaryStorage = RedisBlobStore{}

func (s RedisBlobStore) Get(ctx context.Context, p keypath.Path) (io.ReadCloser, error) {
	data, err := s.pool.Get(ctx, s.blobKey(p)).Bytes()
	if err == redis.Nil {
		return nil, storage.NotFound(p)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get blob %s", p)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s RedisBlobStore) Write(ctx context.Context, p keypath.Path, r io.Reader) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "read blob %s", p)
	}
	return errors.Wrapf(s.pool.Set(ctx, s.blobKey(p), data, 0).Err(), "write blob %s", p)
}

func (s RedisBlobStore) Delete(ctx context.Context, p keypath.Path) error {
	return errors.Wrapf(s.pool.Del(ctx, s.blobKey(p)).Err(), "delete blob %s", p)
}
