package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/d0ngw/kcounter/cache"
	c "github.com/d0ngw/kcounter/common"
	"github.com/gomodule/redigo/redis"
)

var _ Store = (*RedisStore)(nil)

// RedisStore use redis implements Store, one redis string per key updated by INCR.
// Durability is whatever the redis servers are configured for.
type RedisStore struct {
	name        string
	redisClient *cache.RedisClient
	cacheParam  *cache.ParamConf
	closed      atomic.Bool
}

// NewRedisStore create RedisStore, keys are stored as cacheParam's key prefix + key
func NewRedisStore(name string, redisClient *cache.RedisClient, cacheParam *cache.ParamConf) (*RedisStore, error) {
	if c.HasNil(redisClient, cacheParam) {
		return nil, errors.New("redisClient and cacheParam must not be nil")
	}
	if _, err := redisClient.GetGroupServers(cacheParam.Group()); err != nil {
		return nil, err
	}
	if strings.ContainsAny(cacheParam.KeyPrefix(), "*?[]\\") {
		return nil, fmt.Errorf("invalid key prefix %q", cacheParam.KeyPrefix())
	}
	return &RedisStore{
		name:        name,
		redisClient: redisClient,
		cacheParam:  cacheParam,
	}, nil
}

// Name implements Store.Name
func (p *RedisStore) Name() string {
	return p.name
}

// Lookup implements Store.Lookup
func (p *RedisStore) Lookup(ctx context.Context, key string) (uint64, error) {
	if err := p.check(ctx); err != nil {
		return 0, err
	}
	param := p.cacheParam.NewParamKey(key)
	val, _, err := p.redisClient.GetInt64(param)
	if err != nil {
		return 0, p.wrapErr("lookup", param.Key(), err)
	}
	if val < 0 {
		return 0, corruptError(param.Key(), "negative count %d", val)
	}
	return uint64(val), nil
}

// Increment implements Store.Increment
func (p *RedisStore) Increment(ctx context.Context, key string) (uint64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	if err := p.check(ctx); err != nil {
		return 0, err
	}
	param := p.cacheParam.NewParamKey(key)
	val, err := p.redisClient.Incr(param)
	if err != nil {
		return 0, p.wrapErr("increment", param.Key(), err)
	}
	if val <= 0 {
		return 0, corruptError(param.Key(), "count %d after increment", val)
	}
	return uint64(val), nil
}

// Snapshot implements Store.Snapshot, the keys are scanned one server at a time so the
// result is not a point in time view when increments run concurrently
func (p *RedisStore) Snapshot(ctx context.Context) (Fields, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	pattern := p.cacheParam.Pattern()
	fields := Fields{}
	err := p.redisClient.ScanInt64s(p.cacheParam.Group(), pattern, func(fullKey string, val int64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if val < 0 {
			return corruptError(fullKey, "negative count %d", val)
		}
		if key, ok := p.cacheParam.TrimKey(fullKey); ok {
			fields[key] = uint64(val)
		}
		return nil
	})
	if err != nil {
		return nil, p.wrapErr("snapshot", pattern, err)
	}
	return fields, nil
}

func (p *RedisStore) check(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (p *RedisStore) wrapErr(op, key string, err error) error {
	if errors.Is(err, ErrCorrupt) {
		return err
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return corruptError(key, "%v", err)
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) && strings.Contains(string(redisErr), "not an integer") {
		return corruptError(key, "%v", err)
	}
	return ioError(op, key, err)
}

// Close implements Store.Close
func (p *RedisStore) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.Infof("close redis counter store %s", p.name)
	return p.redisClient.Close()
}
