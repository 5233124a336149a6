package counter

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"

	c "github.com/d0ngw/kcounter/common"
	"github.com/google/renameio/v2"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the entries in memory and persists the whole entry set to a file on
// every increment. The file is replaced atomically (write temp file, fsync, rename), so
// it always holds either the old or the new entry set.
//
// Increments are serialized through a single writer slot which is held for the whole
// read-modify-write-commit cycle. Lookups read the committed in-memory entries under a
// read lock and never wait for a commit in progress.
type FileStore struct {
	name  string
	path  string
	perm  os.FileMode
	codec Codec
	lock  *fileLock

	writer chan struct{}

	mu     sync.RWMutex
	fields Fields
	closed bool
}

// OpenFileStore open the store persisted in path, the file is created if absent. The
// directory of path must exist. perm 0 means 0644.
func OpenFileStore(name, path string, codec Codec, perm os.FileMode) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("counter file path must not be empty")
	}
	if codec == nil {
		codec = TextCodec{}
	}
	if perm == 0 {
		perm = 0644
	}
	if name == "" {
		name = path
	}

	lock, err := lockFile(path + ".lock")
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return nil, err
		}
		return nil, ioError("lock", path, err)
	}

	p := &FileStore{
		name:   name,
		path:   path,
		perm:   perm,
		codec:  codec,
		lock:   lock,
		writer: make(chan struct{}, 1),
	}
	fields, err := p.load()
	if err != nil {
		lock.unlock()
		return nil, err
	}
	p.fields = fields
	c.Infof("open counter store %s,path:%s,format:%s,entries:%d", p.name, p.path, codec.Name(), len(fields))
	return p, nil
}

func (p *FileStore) load() (Fields, error) {
	f, err := os.Open(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		fields := Fields{}
		if err := p.commit(fields); err != nil {
			return nil, err
		}
		return fields, nil
	}
	if err != nil {
		return nil, ioError("open", p.path, err)
	}
	defer f.Close()

	fields, err := p.codec.Decode(bufio.NewReader(f))
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			c.Errorf("load counter store %s fail,err:%v", p.path, err)
			return nil, err
		}
		return nil, ioError("read", p.path, err)
	}
	for k := range fields {
		if err := p.codec.CheckKey(k); err != nil {
			return nil, corruptError(p.path, "%v", err)
		}
	}
	return fields, nil
}

// commit replace the file with fields atomically
func (p *FileStore) commit(fields Fields) error {
	pending, err := renameio.NewPendingFile(p.path, renameio.WithPermissions(p.perm), renameio.WithTempDir(filepath.Dir(p.path)))
	if err != nil {
		return ioError("create temp", p.path, err)
	}
	defer pending.Cleanup()

	if err := p.codec.Encode(pending, fields); err != nil {
		return ioError("write", p.path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return ioError("replace", p.path, err)
	}
	if err := syncDir(filepath.Dir(p.path)); err != nil {
		c.Warnf("sync dir of %s fail,err:%v", p.path, err)
	}
	return nil
}

// Name implements Store.Name
func (p *FileStore) Name() string {
	return p.name
}

// Path of the backing file
func (p *FileStore) Path() string {
	return p.path
}

// Lookup implements Store.Lookup
func (p *FileStore) Lookup(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, ErrClosed
	}
	return p.fields[key], nil
}

// Increment implements Store.Increment. Cancellation of ctx is only observed while
// waiting for the writer slot; once the commit starts it runs to completion.
func (p *FileStore) Increment(ctx context.Context, key string) (uint64, error) {
	if err := p.codec.CheckKey(key); err != nil {
		return 0, err
	}
	select {
	case p.writer <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-p.writer }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// only the holder of the writer slot replaces p.fields, so it can be read without mu
	if p.isClosed() {
		return 0, ErrClosed
	}
	current := p.fields[key]
	if current == math.MaxUint64 {
		return 0, ErrOverflow
	}
	next := p.fields.Clone()
	next[key] = current + 1

	if err := p.commit(next); err != nil {
		c.Errorf("increment %s of %s fail,err:%v", key, p.path, err)
		return 0, err
	}

	p.mu.Lock()
	p.fields = next
	p.mu.Unlock()
	return current + 1, nil
}

// Snapshot implements Store.Snapshot
func (p *FileStore) Snapshot(ctx context.Context) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	return p.fields.Clone(), nil
}

func (p *FileStore) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Close implements Store.Close, it waits for the increment in progress
func (p *FileStore) Close() error {
	p.writer <- struct{}{}
	defer func() { <-p.writer }()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.fields = nil
	p.mu.Unlock()

	c.Infof("close counter store %s", p.name)
	if err := p.lock.unlock(); err != nil {
		return ioError("unlock", p.path, err)
	}
	return nil
}
