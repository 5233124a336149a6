package counter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T, codec Codec) *FileStore {
	t.Helper()
	store, err := OpenFileStore("test", filepath.Join(t.TempDir(), "wtf.txt"), codec, 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFileStore(t *testing.T) {
	for _, codec := range []Codec{TextCodec{}, JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			store := newTestFileStore(t, codec)
			assert.Equal(t, "test", store.Name())
			testStore(t, store, "")
		})
	}
}

func TestFileStoreCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wtf.txt")
	store, err := OpenFileStore("", path, nil, 0600)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, path, store.Name())
	assert.Equal(t, path, store.Path())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = store.Increment(context.Background(), "alice")
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alice\t1\n", string(content))
}

func TestFileStoreMissingDir(t *testing.T) {
	_, err := OpenFileStore("test", filepath.Join(t.TempDir(), "none", "wtf.txt"), nil, 0)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = OpenFileStore("test", "", nil, 0)
	assert.Error(t, err)
}

func TestFileStoreLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wtf.txt")
	store, err := OpenFileStore("test", path, nil, 0)
	require.NoError(t, err)

	_, err = OpenFileStore("test", path, nil, 0)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, store.Close())
	store, err = OpenFileStore("test", path, nil, 0)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestFileStoreRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, codec := range []Codec{TextCodec{}, JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "wtf.db")
			store, err := OpenFileStore("test", path, codec, 0)
			require.NoError(t, err)

			want := Fields{}
			for i := 0; i < 20; i++ {
				key := fmt.Sprintf("nick-%02d ünïcode", i)
				count := uint64(rnd.Intn(5) + 1)
				for j := uint64(0); j < count; j++ {
					_, err := store.Increment(ctx, key)
					require.NoError(t, err)
				}
				want[key] = count
			}
			require.NoError(t, store.Close())

			store, err = OpenFileStore("test", path, codec, 0)
			require.NoError(t, err)
			defer store.Close()
			for k, v := range want {
				n, err := store.Lookup(ctx, k)
				assert.NoError(t, err)
				assert.Equal(t, v, n, k)
			}
			got, err := store.Snapshot(ctx)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

// faultyCodec writes the first half of the encoded entries and then fails, as if the
// process crashed in the middle of the write
type faultyCodec struct {
	Codec
}

func (p faultyCodec) Encode(w io.Writer, fields Fields) error {
	var buf bytes.Buffer
	if err := p.Codec.Encode(&buf, fields); err != nil {
		return err
	}
	data := buf.Bytes()
	if _, err := w.Write(data[:len(data)/2]); err != nil {
		return err
	}
	return errors.New("disk failure")
}

func TestFileStoreCrashAtomicity(t *testing.T) {
	for _, codec := range []Codec{TextCodec{}, JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			path := filepath.Join(dir, "wtf.db")
			store, err := OpenFileStore("test", path, codec, 0)
			require.NoError(t, err)
			for _, k := range []string{"alice", "alice", "bob"} {
				_, err := store.Increment(ctx, k)
				require.NoError(t, err)
			}
			require.NoError(t, store.Close())
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			store, err = OpenFileStore("test", path, faultyCodec{codec}, 0)
			require.NoError(t, err)
			_, err = store.Increment(ctx, "alice")
			assert.ErrorIs(t, err, ErrIO)
			_, err = store.Increment(ctx, "carol")
			assert.ErrorIs(t, err, ErrIO)

			n, err := store.Lookup(ctx, "alice")
			assert.NoError(t, err)
			assert.Equal(t, uint64(2), n)
			n, err = store.Lookup(ctx, "carol")
			assert.NoError(t, err)
			assert.Equal(t, uint64(0), n)
			require.NoError(t, store.Close())

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.ElementsMatch(t, []string{"wtf.db", "wtf.db.lock"}, names)

			store, err = OpenFileStore("test", path, codec, 0)
			require.NoError(t, err)
			defer store.Close()
			fields, err := store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, Fields{"alice": 2, "bob": 1}, fields)
		})
	}
}

func TestFileStoreIgnoreStaleTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wtf.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice\t2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".wtf.txt12345"), []byte("alice\t3\nbo"), 0644))

	store, err := OpenFileStore("test", path, nil, 0)
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Lookup(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestFileStoreCorrupt(t *testing.T) {
	cases := []string{
		"alice\t2\nbob",
		"alice\t2\nbob\t1",
		"alice 2\n",
		"alice\t-1\n",
		"alice\tx\n",
		"\t1\n",
		"alice\t1\nalice\t2\n",
		"alice\t18446744073709551616\n",
	}
	for _, content := range cases {
		path := filepath.Join(t.TempDir(), "wtf.txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		_, err := OpenFileStore("test", path, nil, 0)
		assert.ErrorIs(t, err, ErrCorrupt, "%q", content)

		// the lock is released when open fails
		require.NoError(t, os.WriteFile(path, nil, 0644))
		store, err := OpenFileStore("test", path, nil, 0)
		require.NoError(t, err)
		require.NoError(t, store.Close())
	}

	path := filepath.Join(t.TempDir(), "wtf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"": 1}`), 0644))
	_, err := OpenFileStore("test", path, JSONCodec{}, 0)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStoreInvalidKey(t *testing.T) {
	store := newTestFileStore(t, nil)
	ctx := context.Background()
	for _, key := range []string{"", "a\tb", "a\nb", "a\r"} {
		_, err := store.Increment(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "%q", key)
	}
	n, err := store.Lookup(ctx, "a\tb")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	jsonStore := newTestFileStore(t, JSONCodec{})
	n, err = jsonStore.Increment(ctx, "a\tb")
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestFileStoreNonUTF8Keys(t *testing.T) {
	ctx := context.Background()
	for _, codec := range []Codec{TextCodec{}, JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "wtf.db")
			store, err := OpenFileStore("test", path, codec, 0)
			require.NoError(t, err)
			want := Fields{}
			for _, key := range []string{"nick\xff", "nick\xfe"} {
				n, err := store.Increment(ctx, key)
				if errors.Is(err, ErrInvalidKey) {
					continue
				}
				require.NoError(t, err)
				assert.Equal(t, uint64(1), n)
				want[key] = 1
			}
			require.NoError(t, store.Close())

			store, err = OpenFileStore("test", path, codec, 0)
			require.NoError(t, err)
			defer store.Close()
			got, err := store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	store := newTestFileStore(t, JSONCodec{})
	_, err := store.Increment(ctx, "nick\xff")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFileStoreOverflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wtf.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice\t18446744073709551615\n"), 0644))
	store, err := OpenFileStore("test", path, nil, 0)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Increment(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrOverflow)
	n, err := store.Lookup(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), n)
}

func TestFileStoreCancelWaitingWriter(t *testing.T) {
	store := newTestFileStore(t, nil)

	// hold the writer slot as an increment in progress would
	store.writer <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := store.Increment(ctx, "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	<-store.writer

	n, err := store.Lookup(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	n, err = store.Increment(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestFileStoreLookupDuringCommit(t *testing.T) {
	store := newTestFileStore(t, nil)
	ctx := context.Background()
	_, err := store.Increment(ctx, "alice")
	require.NoError(t, err)

	// a lookup never waits for the writer slot
	store.writer <- struct{}{}
	done := make(chan uint64)
	go func() {
		n, _ := store.Lookup(ctx, "alice")
		done <- n
	}()
	select {
	case n := <-done:
		assert.Equal(t, uint64(1), n)
	case <-time.After(time.Second):
		t.Fatal("lookup blocked by writer")
	}
	<-store.writer
}
