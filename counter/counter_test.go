package counter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsClone(t *testing.T) {
	var nilFields Fields
	clone := nilFields.Clone()
	assert.NotNil(t, clone)
	assert.Empty(t, clone)

	fields := Fields{"a": 1}
	clone = fields.Clone()
	clone["a"] = 2
	assert.Equal(t, uint64(1), fields["a"])
}

// testStore checks the behaviour every Store must have, keys are prefixed with prefix
// so that the test can run against a shared server
func testStore(t *testing.T, store Store, prefix string) {
	ctx := context.Background()
	alice, bob, carol := prefix+"alice", prefix+"bob", prefix+"carol"

	for i := 1; i <= 3; i++ {
		n, err := store.Increment(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), n)
	}
	n, err := store.Increment(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	for i := 0; i < 3; i++ {
		n, err = store.Lookup(ctx, alice)
		assert.NoError(t, err)
		assert.Equal(t, uint64(3), n)
	}
	n, err = store.Lookup(ctx, bob)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	n, err = store.Lookup(ctx, carol)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	_, err = store.Increment(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	fields, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), fields[alice])
	assert.Equal(t, uint64(1), fields[bob])
	_, ok := fields[carol]
	assert.False(t, ok)

	testConcurrentIncrement(t, store, prefix+"concurrent", 100)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Increment(cancelled, bob)
	assert.ErrorIs(t, err, context.Canceled)
	n, err = store.Lookup(ctx, bob)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
	_, err = store.Lookup(ctx, alice)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.Increment(ctx, alice)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func testConcurrentIncrement(t *testing.T, store Store, key string, callers int) {
	ctx := context.Background()
	var wg sync.WaitGroup
	results := make(chan uint64, callers)
	errs := make(chan error, callers*2)

	for i := 0; i < callers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			n, err := store.Increment(ctx, key)
			if err != nil {
				errs <- err
				return
			}
			results <- n
		}()
		go func() {
			defer wg.Done()
			n, err := store.Lookup(ctx, key)
			if err != nil {
				errs <- err
				return
			}
			if n > uint64(callers) {
				t.Errorf("lookup %d bigger than %d", n, callers)
			}
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	seen := map[uint64]bool{}
	for n := range results {
		assert.False(t, seen[n], "count %d returned twice", n)
		seen[n] = true
	}
	assert.Equal(t, callers, len(seen))

	n, err := store.Lookup(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, uint64(callers), n)
}
