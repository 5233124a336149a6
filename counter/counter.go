// Package counter supply the key counter store, a durable mapping from key to a
// non-negative count with atomic increment and point lookup
package counter

import (
	"context"
	"errors"
	"fmt"
)

// Fields define the counter's key and count
type Fields map[string]uint64

// Clone return a copy of fields, never nil
func (p Fields) Clone() Fields {
	clone := make(Fields, len(p)+1)
	for k, v := range p {
		clone[k] = v
	}
	return clone
}

// Store is the key counter store.
//
// Implementations are safe for concurrent use. Lookup of an absent key returns 0
// and no error. Increment is linearizable: concurrent increments are never lost, and
// a failed increment leaves both the persisted and the visible count unchanged.
type Store interface {
	// Name of the store
	Name() string
	// Lookup the count of key
	Lookup(ctx context.Context, key string) (count uint64, err error)
	// Increment the count of key by 1 and return the new count
	Increment(ctx context.Context, key string) (count uint64, err error)
	// Snapshot return a copy of all the entries
	Snapshot(ctx context.Context) (fields Fields, err error)
	// Close release the resources, later calls return ErrClosed
	Close() error
}

var (
	// ErrIO the backing resource can't be read or written
	ErrIO = errors.New("counter: io failure")
	// ErrCorrupt the persisted data can't be parsed as valid entries
	ErrCorrupt = errors.New("counter: corrupt state")
	// ErrClosed the store has been closed
	ErrClosed = errors.New("counter: store closed")
	// ErrInvalidKey the key can't be stored
	ErrInvalidKey = errors.New("counter: invalid key")
	// ErrLocked the backing file is owned by another store
	ErrLocked = errors.New("counter: store locked by another owner")
	// ErrOverflow the count reached its maximum
	ErrOverflow = errors.New("counter: count overflow")
)

func ioError(op, target string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, target, err)
}

func corruptError(target string, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrCorrupt, target, fmt.Sprintf(format, args...))
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}
