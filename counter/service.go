package counter

import (
	"context"
	"errors"
	"sync"

	c "github.com/d0ngw/kcounter/common"
)

// StoreService open the configured Store on Init and close it on Stop. It implements
// Store itself so that handlers can hold it before Init.
type StoreService struct {
	c.BaseService
	conf *StoreConfig

	mu    sync.RWMutex
	store Store
}

var _ Store = (*StoreService)(nil)

// NewStoreService create StoreService of the parsed config
func NewStoreService(conf *StoreConfig) *StoreService {
	name := ""
	if conf != nil {
		name = conf.Name
	}
	return &StoreService{
		BaseService: c.BaseService{SName: name},
		conf:        conf,
	}
}

// Init implements Service.Init
func (p *StoreService) Init() error {
	if p.conf == nil {
		return errors.New("no store config")
	}
	store, err := Open(p.conf)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.store = store
	p.mu.Unlock()
	return nil
}

// Stop implements Service.Stop
func (p *StoreService) Stop() bool {
	p.mu.RLock()
	store := p.store
	p.mu.RUnlock()
	if store == nil {
		return true
	}
	if err := store.Close(); err != nil {
		c.Errorf("close store %s fail,err:%v", p.Name(), err)
		return false
	}
	return true
}

func (p *StoreService) current() (Store, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil, ErrClosed
	}
	return p.store, nil
}

// Lookup implements Store.Lookup
func (p *StoreService) Lookup(ctx context.Context, key string) (uint64, error) {
	store, err := p.current()
	if err != nil {
		return 0, err
	}
	return store.Lookup(ctx, key)
}

// Increment implements Store.Increment
func (p *StoreService) Increment(ctx context.Context, key string) (uint64, error) {
	store, err := p.current()
	if err != nil {
		return 0, err
	}
	return store.Increment(ctx, key)
}

// Snapshot implements Store.Snapshot
func (p *StoreService) Snapshot(ctx context.Context) (Fields, error) {
	store, err := p.current()
	if err != nil {
		return nil, err
	}
	return store.Snapshot(ctx)
}

// Close implements Store.Close
func (p *StoreService) Close() error {
	store, err := p.current()
	if err != nil {
		return nil
	}
	return store.Close()
}
