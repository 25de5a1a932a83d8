package store_test

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hlubek/readercomp"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/treestore/codec"
	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/store"
	"github.com/stevemurr/treestore/value"
	"github.com/stevemurr/treestore/watch"
)

func path(segments ...string) keypath.Path { return keypath.New(segments...) }

func num(n float64) value.Value { return value.Number(n) }

func str(s string) value.Value { return value.String(s) }

func requireValue(t *testing.T, want, got value.Value) {
	t.Helper()
	require.Truef(t, want.Equal(got), "want %s, got %s", want, got)
}

func collect(t *testing.T, docs storage.DocumentStorage, p keypath.Path) []value.Value {
	t.Helper()
	seq, err := docs.GetCollection(context.Background(), p)
	require.NoError(t, err)
	return storage.Collect(seq)
}

func childKeys(t *testing.T, docs storage.DocumentStorage, p keypath.Path) []string {
	t.Helper()
	seq, err := storage.ChildKeys(context.Background(), docs, p)
	require.NoError(t, err)
	return storage.Collect(seq)
}

// runDocumentStorageTests runs a common test suite against any document
// storage. Each subtest uses its own bucket.
func runDocumentStorageTests(t *testing.T, docs storage.DocumentStorage) {
	t.Helper()
	ctx := context.Background()

	t.Run("Write and Get", func(t *testing.T) {
		p := path("rt", "doc")
		doc := value.Object(
			value.F("title", str("hello")),
			value.F("count", num(42)),
			value.F("tags", value.Array(str("a"), str("b"))),
			value.F("nested", value.Object(value.F("ok", value.Bool(true)))),
		)
		require.NoError(t, docs.Write(ctx, p, doc))
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, doc, got)
		assert.Equal(t, []string{"title", "count", "tags", "nested"}, got.Keys())

		leaf, err := docs.Get(ctx, p.Child("nested", "ok"))
		require.NoError(t, err)
		requireValue(t, value.Bool(true), leaf)

		item, err := docs.Get(ctx, p.Child("tags", "1"))
		require.NoError(t, err)
		requireValue(t, str("b"), item)
	})

	t.Run("Write bucket root", func(t *testing.T) {
		p := path("root")
		require.NoError(t, docs.Write(ctx, p, value.Object(value.F("a", num(1)))))
		got, err := docs.Get(ctx, path("root", "a"))
		require.NoError(t, err)
		requireValue(t, num(1), got)
	})

	t.Run("Write overwrites", func(t *testing.T) {
		p := path("over", "doc")
		require.NoError(t, docs.Write(ctx, p, value.Object(value.F("a", num(1)))))
		require.NoError(t, docs.Write(ctx, p, str("replaced")))
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, str("replaced"), got)
	})

	t.Run("Write creates intermediates", func(t *testing.T) {
		require.NoError(t, docs.Write(ctx, path("deep", "a", "b", "c"), num(1)))
		got, err := docs.Get(ctx, path("deep", "a"))
		require.NoError(t, err)
		requireValue(t, value.Object(value.F("b", value.Object(value.F("c", num(1))))), got)
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := docs.Get(ctx, path("missing", "nope"))
		require.ErrorIs(t, err, storage.ErrNotFound)
		var nf *storage.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, path("missing", "nope"), nf.Path)

		_, err = docs.Get(ctx, path("missing"))
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Get below scalar", func(t *testing.T) {
		require.NoError(t, docs.Write(ctx, path("below", "x"), num(5)))
		_, err := docs.Get(ctx, path("below", "x", "y"))
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete then Get", func(t *testing.T) {
		p := path("del", "doc")
		require.NoError(t, docs.Write(ctx, p, value.Object(value.F("a", num(1)))))
		require.NoError(t, docs.Write(ctx, path("del", "other"), num(2)))
		require.NoError(t, docs.Delete(ctx, p))

		_, err := docs.Get(ctx, p)
		require.ErrorIs(t, err, storage.ErrNotFound)
		_, ok, err := storage.LiftDocument(ctx, docs, p)
		require.NoError(t, err)
		assert.False(t, ok)

		other, err := docs.Get(ctx, path("del", "other"))
		require.NoError(t, err)
		requireValue(t, num(2), other)
	})

	t.Run("Delete bucket", func(t *testing.T) {
		require.NoError(t, docs.Write(ctx, path("gone", "a"), num(1)))
		require.NoError(t, docs.Delete(ctx, path("gone")))
		_, err := docs.Get(ctx, path("gone", "a"))
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		p := path("idem", "doc")
		require.NoError(t, docs.Write(ctx, p, num(1)))
		require.NoError(t, docs.Delete(ctx, p))
		require.NoError(t, docs.Delete(ctx, p))
		require.NoError(t, docs.Delete(ctx, path("never", "written")))
	})

	t.Run("Lift", func(t *testing.T) {
		p := path("lift", "doc")
		_, ok, err := storage.LiftDocument(ctx, docs, p)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, docs.Write(ctx, p, str("x")))
		v, ok, err := storage.LiftDocument(ctx, docs, p)
		require.NoError(t, err)
		assert.True(t, ok)
		requireValue(t, str("x"), v)
	})

	t.Run("Merge preserves siblings", func(t *testing.T) {
		p := path("merge", "doc")
		require.NoError(t, docs.Write(ctx, p, value.Object(value.F("a", num(1)), value.F("b", num(2)))))
		require.NoError(t, docs.Merge(ctx, p, value.Object(value.F("b", num(3)), value.F("c", num(4)))))
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, value.Object(value.F("a", num(1)), value.F("b", num(3)), value.F("c", num(4))), got)
	})

	t.Run("Merge is shallow", func(t *testing.T) {
		p := path("shallow", "doc")
		require.NoError(t, docs.Write(ctx, p, value.Object(
			value.F("inner", value.Object(value.F("x", num(1)), value.F("y", num(2)))),
		)))
		require.NoError(t, docs.Merge(ctx, p, value.Object(
			value.F("inner", value.Object(value.F("x", num(9)))),
		)))
		got, err := docs.Get(ctx, p.Child("inner"))
		require.NoError(t, err)
		requireValue(t, value.Object(value.F("x", num(9))), got)
	})

	t.Run("Merge onto scalar writes", func(t *testing.T) {
		p := path("mscalar", "doc")
		require.NoError(t, docs.Write(ctx, p, num(5)))
		require.NoError(t, docs.Merge(ctx, p, value.Object(value.F("a", num(1)))))
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, value.Object(value.F("a", num(1))), got)
	})

	t.Run("Merge onto missing writes", func(t *testing.T) {
		p := path("mmissing", "doc")
		require.NoError(t, docs.Merge(ctx, p, value.Object(value.F("a", num(1)))))
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, value.Object(value.F("a", num(1))), got)
	})

	t.Run("Merge non-object replaces", func(t *testing.T) {
		p := path("mreplace", "doc")
		require.NoError(t, docs.Write(ctx, p, value.Object(value.F("a", num(1)))))
		require.NoError(t, docs.Merge(ctx, p, value.Array(num(1), num(2))))
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, value.Array(num(1), num(2)), got)
	})

	t.Run("Append on missing path", func(t *testing.T) {
		p := path("append", "list")
		k1, err := docs.Append(ctx, p, str("x"))
		require.NoError(t, err)
		k2, err := docs.Append(ctx, p, str("y"))
		require.NoError(t, err)
		assert.NotEqual(t, k1, k2)

		got := collect(t, docs, p)
		require.Len(t, got, 2)
		requireValue(t, str("x"), got[0])
		requireValue(t, str("y"), got[1])
		assert.ElementsMatch(t, []string{k1, k2}, childKeys(t, docs, p))

		v, err := docs.Get(ctx, p.Child(k2))
		require.NoError(t, err)
		requireValue(t, str("y"), v)
	})

	t.Run("Append to array", func(t *testing.T) {
		p := path("append", "array")
		require.NoError(t, docs.Write(ctx, p, value.Array(str("a"))))
		key, err := docs.Append(ctx, p, str("b"))
		require.NoError(t, err)
		assert.Equal(t, "1", key)
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, value.Array(str("a"), str("b")), got)
	})

	t.Run("Append to scalar", func(t *testing.T) {
		p := path("append", "scalar")
		require.NoError(t, docs.Write(ctx, p, num(1)))
		_, err := docs.Append(ctx, p, str("x"))
		require.ErrorIs(t, err, storage.ErrNotContainer)
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, num(1), got)
	})

	t.Run("GetCollection object order", func(t *testing.T) {
		p := path("coll", "obj")
		require.NoError(t, docs.Write(ctx, p, value.Object(value.F("z", num(1)), value.F("a", num(2)))))
		got := collect(t, docs, p)
		require.Len(t, got, 2)
		requireValue(t, num(2), got[0])
		requireValue(t, num(1), got[1])
	})

	t.Run("GetCollection array order", func(t *testing.T) {
		p := path("coll", "arr")
		require.NoError(t, docs.Write(ctx, p, value.Array(num(3), value.Null(), num(1))))
		got := collect(t, docs, p)
		require.Len(t, got, 2)
		requireValue(t, num(3), got[0])
		requireValue(t, num(1), got[1])
	})

	t.Run("GetCollection missing or scalar", func(t *testing.T) {
		assert.Empty(t, collect(t, docs, path("coll", "none")))
		require.NoError(t, docs.Write(ctx, path("coll", "scalar"), str("s")))
		assert.Empty(t, collect(t, docs, path("coll", "scalar")))
	})

	t.Run("GetChildKeys excludes nulls", func(t *testing.T) {
		p := path("keys", "obj")
		require.NoError(t, docs.Write(ctx, p, value.Object(value.F("a", num(1)), value.F("b", value.Null()))))
		assert.Equal(t, []string{"a"}, childKeys(t, docs, p))
	})

	t.Run("GetChildKeys array and scalar", func(t *testing.T) {
		require.NoError(t, docs.Write(ctx, path("keys", "arr"), value.Array(str("x"), str("y"), str("z"))))
		assert.Equal(t, []string{"0", "1", "2"}, childKeys(t, docs, path("keys", "arr")))

		require.NoError(t, docs.Write(ctx, path("keys", "scalar"), num(1)))
		assert.Empty(t, childKeys(t, docs, path("keys", "scalar")))
		assert.Empty(t, childKeys(t, docs, path("keys", "missing")))
	})

	t.Run("Delete array element", func(t *testing.T) {
		p := path("arrdel", "list")
		require.NoError(t, docs.Write(ctx, p, value.Array(str("a"), str("b"), str("c"))))
		require.NoError(t, docs.Delete(ctx, p.Child("1")))
		assert.Equal(t, []string{"0", "2"}, childKeys(t, docs, p))
		require.NoError(t, docs.Delete(ctx, p.Child("2")))
		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Len())
	})

	t.Run("Invalid path", func(t *testing.T) {
		_, err := docs.Get(ctx, nil)
		require.ErrorIs(t, err, keypath.ErrInvalidPath)
		require.ErrorIs(t, docs.Write(ctx, path("a", ""), num(1)), keypath.ErrInvalidPath)
		_, err = docs.Append(ctx, keypath.Path{}, num(1))
		require.ErrorIs(t, err, keypath.ErrInvalidPath)
	})

	t.Run("Non-finite numbers", func(t *testing.T) {
		p := path("finite", "doc")
		require.NoError(t, docs.Write(ctx, p, value.Object(value.F("n", num(1)))))

		bad := value.Object(value.F("deep", value.Array(num(math.NaN()))))
		require.ErrorIs(t, docs.Write(ctx, p, bad), storage.ErrInvalidValue)
		require.ErrorIs(t, docs.Write(ctx, p.Child("n"), num(math.Inf(1))), storage.ErrInvalidValue)
		require.ErrorIs(t, docs.Merge(ctx, p, value.Object(value.F("n", num(math.Inf(-1))))), storage.ErrInvalidValue)
		_, err := docs.Append(ctx, p, num(math.NaN()))
		require.ErrorIs(t, err, storage.ErrInvalidValue)

		got, err := docs.Get(ctx, p)
		require.NoError(t, err)
		requireValue(t, value.Object(value.F("n", num(1))), got)
	})
}

// runBinaryStorageTests runs a common test suite against any blob storage.
func runBinaryStorageTests(t *testing.T, blobs storage.BinaryStorage) {
	t.Helper()
	ctx := context.Background()

	read := func(t *testing.T, p keypath.Path) io.ReadCloser {
		t.Helper()
		rc, err := blobs.Get(ctx, p)
		require.NoError(t, err)
		t.Cleanup(func() { rc.Close() })
		return rc
	}

	t.Run("Write and Get", func(t *testing.T) {
		data := bytes.Repeat([]byte("treestore\x00\xff"), 10000)
		p := path("bin", "big")
		require.NoError(t, blobs.Write(ctx, p, bytes.NewReader(data)))
		equal, err := readercomp.Equal(read(t, p), bytes.NewReader(data), 4096)
		require.NoError(t, err)
		assert.True(t, equal)
	})

	t.Run("Empty blob", func(t *testing.T) {
		p := path("bin", "empty")
		require.NoError(t, blobs.Write(ctx, p, bytes.NewReader(nil)))
		got, err := io.ReadAll(read(t, p))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Write overwrites", func(t *testing.T) {
		p := path("bin", "over")
		require.NoError(t, blobs.Write(ctx, p, strings.NewReader("first version")))
		require.NoError(t, blobs.Write(ctx, p, strings.NewReader("second")))
		got, err := io.ReadAll(read(t, p))
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("Nested paths are independent", func(t *testing.T) {
		require.NoError(t, blobs.Write(ctx, path("nest", "a"), strings.NewReader("parent")))
		require.NoError(t, blobs.Write(ctx, path("nest", "a", "b"), strings.NewReader("child")))
		got, err := io.ReadAll(read(t, path("nest", "a")))
		require.NoError(t, err)
		assert.Equal(t, "parent", string(got))
		got, err = io.ReadAll(read(t, path("nest", "a", "b")))
		require.NoError(t, err)
		assert.Equal(t, "child", string(got))
	})

	t.Run("Odd segments", func(t *testing.T) {
		p := path("odd", "..", ".hidden", "a/b", "sp ace")
		require.NoError(t, blobs.Write(ctx, p, strings.NewReader("odd")))
		got, err := io.ReadAll(read(t, p))
		require.NoError(t, err)
		assert.Equal(t, "odd", string(got))
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := blobs.Get(ctx, path("bin", "missing"))
		require.ErrorIs(t, err, storage.ErrNotFound)

		rc, ok, err := storage.LiftBinary(ctx, blobs, path("bin", "missing"))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, rc)
	})

	t.Run("Delete then Get", func(t *testing.T) {
		p := path("bin", "del")
		require.NoError(t, blobs.Write(ctx, p, strings.NewReader("x")))
		require.NoError(t, blobs.Delete(ctx, p))
		_, err := blobs.Get(ctx, p)
		require.ErrorIs(t, err, storage.ErrNotFound)
		require.NoError(t, blobs.Delete(ctx, p))
	})

	t.Run("Invalid path", func(t *testing.T) {
		require.ErrorIs(t, blobs.Write(ctx, nil, strings.NewReader("x")), keypath.ErrInvalidPath)
	})
}

func newRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func newSqlite(t *testing.T, c codec.Codec) *store.SqliteStore {
	t.Helper()
	s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "test.db"), c)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStore(t *testing.T) {
	runDocumentStorageTests(t, store.NewTree(store.NewMemoryStore()))
}

func TestJsonFileStore(t *testing.T) {
	s, err := store.NewJsonFileStore(t.TempDir())
	require.NoError(t, err)
	runDocumentStorageTests(t, store.NewTree(s))
}

func TestSqliteStore(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		runDocumentStorageTests(t, store.NewTree(newSqlite(t, codec.JSON{})))
	})
	t.Run("msgpack", func(t *testing.T) {
		runDocumentStorageTests(t, store.NewTree(newSqlite(t, codec.MsgPack{})))
	})
}

func TestRedisStore(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		runDocumentStorageTests(t, store.NewTree(store.NewRedisStore(newRedis(t), "test:", nil)))
	})
	t.Run("msgpack", func(t *testing.T) {
		runDocumentStorageTests(t, store.NewTree(store.NewRedisStore(newRedis(t), "test:", codec.MsgPack{})))
	})
}

func TestInstrumentedStore(t *testing.T) {
	runDocumentStorageTests(t, storage.InstrumentDocuments(store.NewTree(store.NewMemoryStore()), "memory", nil))
}

func TestMemoryBlobStore(t *testing.T) {
	runBinaryStorageTests(t, store.NewMemoryBlobStore())
}

func TestFileBlobStore(t *testing.T) {
	s, err := store.NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	runBinaryStorageTests(t, s)
}

func TestSqliteBlobStore(t *testing.T) {
	runBinaryStorageTests(t, newSqlite(t, nil).Blobs())
}

func TestRedisBlobStore(t *testing.T) {
	runBinaryStorageTests(t, store.NewRedisStore(newRedis(t), "test:", nil).Blobs())
}

func TestInstrumentedBlobStore(t *testing.T) {
	runBinaryStorageTests(t, storage.InstrumentBlobs(store.NewMemoryBlobStore(), "memory", nil))
}

func TestNullPolicy(t *testing.T) {
	ctx := context.Background()
	p := path("nulls", "x")

	absent := store.NewTree(store.NewMemoryStore())
	require.NoError(t, absent.Write(ctx, p, value.Null()))
	_, err := absent.Get(ctx, p)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, ok, err := storage.LiftDocument(ctx, absent, p)
	require.NoError(t, err)
	assert.False(t, ok)

	present := store.NewTree(store.NewMemoryStore(), store.WithNullPolicy(storage.NullAsValue))
	require.NoError(t, present.Write(ctx, p, value.Null()))
	v, err := present.Get(ctx, p)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, storage.NullAsValue, present.NullPolicy())
}

func TestAppendKeyGenerator(t *testing.T) {
	ctx := context.Background()
	keys := []string{"k1", "k1", "k2"}
	tree := store.NewTree(store.NewMemoryStore(), store.WithKeyGenerator(func() string {
		k := keys[0]
		keys = keys[1:]
		return k
	}))
	p := path("gen", "list")
	k, err := tree.Append(ctx, p, num(1))
	require.NoError(t, err)
	assert.Equal(t, "k1", k)
	k, err = tree.Append(ctx, p, num(2))
	require.NoError(t, err)
	assert.Equal(t, "k2", k, "colliding key is regenerated")
}

func TestAppendKeysAreOrdered(t *testing.T) {
	ctx := context.Background()
	tree := store.NewTree(store.NewMemoryStore())
	p := path("ordered", "log")
	for i := 0; i < 50; i++ {
		_, err := tree.Append(ctx, p, num(float64(i)))
		require.NoError(t, err)
	}
	got := collect(t, tree, p)
	require.Len(t, got, 50)
	for i, v := range got {
		requireValue(t, num(float64(i)), v)
	}
}

func TestConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	tree := store.NewTree(store.NewRedisStore(newRedis(t), "test:", nil))
	p := path("concurrent", "list")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tree.Append(ctx, p, num(float64(i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, collect(t, tree, p), 10)
}

func receive(t *testing.T, ch <-chan watch.Event) watch.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestTreeWatch(t *testing.T) {
	ctx := context.Background()
	tree := store.NewTree(store.NewMemoryStore())
	defer tree.Close()

	p := path("watched", "doc")
	id, events, err := tree.Subscribe(ctx, p)
	require.NoError(t, err)

	require.NoError(t, tree.Write(ctx, path("watched", "other"), num(1)))
	require.NoError(t, tree.Write(ctx, p, value.Object(value.F("a", num(1)))))
	changed, ok := receive(t, events).(watch.ValueChanged)
	require.True(t, ok)
	requireValue(t, value.Object(value.F("a", num(1))), changed.Value)
	assert.Equal(t, watch.ChildAdded{Path: p, Key: "a", Value: num(1)}, receive(t, events))

	require.NoError(t, tree.Merge(ctx, p, value.Object(value.F("a", num(2)))))
	assert.Equal(t, "value_changed", receive(t, events).Type())
	assert.Equal(t, watch.ChildChanged{Path: p, Key: "a", Value: num(2)}, receive(t, events))

	require.NoError(t, tree.Delete(ctx, p))
	assert.Equal(t, watch.ValueRemoved{Path: p}, receive(t, events))
	assert.Equal(t, watch.ChildRemoved{Path: p, Key: "a"}, receive(t, events))

	require.NoError(t, tree.Unsubscribe(id))
	_, open := <-events
	assert.False(t, open)
	require.ErrorIs(t, tree.Unsubscribe(id), watch.ErrUnknownSubscription)
}

func TestInstrumentedWatchUnsupported(t *testing.T) {
	docs := storage.InstrumentDocuments(fakeDocuments{}, "fake", nil)
	_, _, err := docs.Subscribe(context.Background(), path("a"))
	require.ErrorIs(t, err, storage.ErrUnsupported)
}

func TestFactory(t *testing.T) {
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	for _, backend := range []string{"json", "sqlite", "memory", "redis", ""} {
		t.Run("docs "+backend, func(t *testing.T) {
			docs, err := store.NewDocumentStorage(store.Options{
				Backend:   backend,
				DataDir:   filepath.Join(dir, "docs-"+backend),
				RedisAddr: mr.Addr(),
				Codec:     "msgpack",
			})
			require.NoError(t, err)
			defer docs.Close()
			require.NoError(t, docs.Write(context.Background(), path("f", "x"), num(1)))
			v, err := docs.Get(context.Background(), path("f", "x"))
			require.NoError(t, err)
			requireValue(t, num(1), v)
		})
	}

	for _, backend := range []string{"fs", "sqlite", "memory", "redis", ""} {
		t.Run("blobs "+backend, func(t *testing.T) {
			blobs, err := store.NewBinaryStorage(store.Options{
				BlobBackend: backend,
				DataDir:     filepath.Join(dir, "blobs-"+backend),
				RedisAddr:   mr.Addr(),
			})
			require.NoError(t, err)
			defer blobs.Close()
			require.NoError(t, blobs.Write(context.Background(), path("f", "x"), strings.NewReader("x")))
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := store.NewDocumentStorage(store.Options{Backend: "mongo", DataDir: dir})
		var unknown *storage.UnknownOptionError
		require.ErrorAs(t, err, &unknown)
		_, err = store.NewBinaryStorage(store.Options{BlobBackend: "s3", DataDir: dir})
		require.ErrorAs(t, err, &unknown)
		_, err = store.NewDocumentStorage(store.Options{Codec: "xml", DataDir: dir})
		require.Error(t, err)
	})
}

func TestJsonFileStoreIsolation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.NewJsonFileStore(dir)
	require.NoError(t, err)
	tree := store.NewTree(s)

	require.NoError(t, tree.Write(ctx, path("a", "k1"), value.Object(value.F("x", num(1)))))
	require.NoError(t, tree.Write(ctx, path("b", "k1"), value.Object(value.F("x", num(2)))))
	require.NoError(t, tree.Write(ctx, path("c/d", "k1"), num(3)))

	for _, name := range []string{"a.json", "b.json", "c%2Fd.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoErrorf(t, err, "expected %s to exist", name)
	}
	buckets, err := s.Buckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c/d"}, buckets)

	require.NoError(t, tree.Delete(ctx, path("a")))
	_, err = os.Stat(filepath.Join(dir, "a.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileBlobStorePrunesDirectories(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := store.NewFileBlobStore(root)
	require.NoError(t, err)

	p := path("x", "y", "z")
	require.NoError(t, s.Write(ctx, p, strings.NewReader("data")))
	require.NoError(t, s.Delete(ctx, p))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBucketsListing(t *testing.T) {
	ctx := context.Background()
	backends := map[string]store.BucketStore{
		"memory": store.NewMemoryStore(),
		"sqlite": newSqlite(t, nil),
		"redis":  store.NewRedisStore(newRedis(t), "test:", nil),
	}
	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			tree := store.NewTree(b)
			require.NoError(t, tree.Write(ctx, path("beta", "x"), num(1)))
			require.NoError(t, tree.Write(ctx, path("alpha", "x"), num(1)))
			names, err := b.Buckets(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "beta"}, names)
		})
	}
}

func TestFileBlobStoreConcurrentWriteDelete(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewFileBlobStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			p := path("b", "s"+strconv.Itoa(w%2), strconv.Itoa(w), "leaf")
			for i := 0; i < 300; i++ {
				if !assert.NoError(t, s.Write(ctx, p, strings.NewReader("data"))) {
					return
				}
				if !assert.NoError(t, s.Delete(ctx, p)) {
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestTreeWatchFollowsCommitOrder(t *testing.T) {
	ctx := context.Background()
	tree := store.NewTree(store.NewMemoryStore())
	defer tree.Close()

	p := path("race", "doc")
	_, events, err := tree.Subscribe(ctx, p)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, tree.Write(ctx, p, num(float64(w*100+i))))
			}
		}(w)
	}
	wg.Wait()

	final, err := tree.Get(ctx, p)
	require.NoError(t, err)

	var last value.Value
	for {
		select {
		case ev := <-events:
			if changed, ok := ev.(watch.ValueChanged); ok {
				last = changed.Value
			}
			continue
		case <-time.After(200 * time.Millisecond):
		}
		break
	}
	requireValue(t, final, last)
}
