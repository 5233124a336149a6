package cache

import (
	"fmt"

	c "github.com/d0ngw/kcounter/common"
	"github.com/gomodule/redigo/redis"
)

// Redis命令
const (
	INCR  = "INCR"
	GET   = "GET"
	MGET  = "MGET"
	SCAN  = "SCAN"
	DEL   = "DEL"
	PING  = "PING"
	MATCH = "MATCH"
	COUNT = "COUNT"
)

// RedisClient 按照Param的group和key选择Redis实例执行命令
type RedisClient struct {
	conf *RedisConf
}

// NewRedisClientWithConf create RedisClient with parsed conf
func NewRedisClientWithConf(conf *RedisConf) *RedisClient {
	return &RedisClient{conf: conf}
}

// GetGroupServers return the servers of group
func (p *RedisClient) GetGroupServers(group string) ([]*RedisServer, error) {
	return p.conf.GetGroupServers(group)
}

func (p *RedisClient) getServer(param Param) (*RedisServer, error) {
	servers, err := p.conf.GetGroupServers(param.Group())
	if err != nil {
		return nil, err
	}
	return servers[c.Fnv32Hashcode(param.Key())%len(servers)], nil
}

// Do execute cmd with the param's key as the first argument
func (p *RedisClient) Do(param Param, cmd string, args ...interface{}) (reply interface{}, err error) {
	server, err := p.getServer(param)
	if err != nil {
		return nil, err
	}
	conn, err := server.GetConn()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			c.Errorf("close conn err:%v", closeErr)
		}
	}()
	return conn.Do(cmd, append([]interface{}{param.Key()}, args...)...)
}

// Incr increase the value of param's key by 1
func (p *RedisClient) Incr(param Param) (int64, error) {
	return redis.Int64(p.Do(param, INCR))
}

// GetInt64 get the int64 value of param's key, exist is false when the key is absent
func (p *RedisClient) GetInt64(param Param) (val int64, exist bool, err error) {
	val, err = redis.Int64(p.Do(param, GET))
	if err == redis.ErrNil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

// Del delete the param's key
func (p *RedisClient) Del(param Param) (deleted bool, err error) {
	n, err := redis.Int(p.Do(param, DEL))
	return n > 0, err
}

// ScanInt64s scan every server of group for the keys match pattern, and call fn with the values
func (p *RedisClient) ScanInt64s(group, pattern string, fn func(key string, val int64) error) error {
	servers, err := p.conf.GetGroupServers(group)
	if err != nil {
		return err
	}
	for _, server := range servers {
		if err := scanServer(server, pattern, fn); err != nil {
			return fmt.Errorf("scan redis %s fail,err:%w", server.Addr(), err)
		}
	}
	return nil
}

func scanServer(server *RedisServer, pattern string, fn func(key string, val int64) error) error {
	conn, err := server.GetConn()
	if err != nil {
		return err
	}
	defer conn.Close()

	cursor := "0"
	for {
		reply, err := redis.Values(conn.Do(SCAN, cursor, MATCH, pattern, COUNT, 100))
		if err != nil {
			return err
		}
		var keys []string
		if _, err = redis.Scan(reply, &cursor, &keys); err != nil {
			return err
		}
		if len(keys) > 0 {
			args := make([]interface{}, 0, len(keys))
			for _, k := range keys {
				args = append(args, k)
			}
			vals, err := redis.Values(conn.Do(MGET, args...))
			if err != nil {
				return err
			}
			for i, v := range vals {
				if v == nil {
					continue
				}
				n, err := redis.Int64(v, nil)
				if err != nil {
					return fmt.Errorf("key %s,err:%w", keys[i], err)
				}
				if err := fn(keys[i], n); err != nil {
					return err
				}
			}
		}
		if cursor == "0" {
			return nil
		}
	}
}

// Ping ping all the servers of group
func (p *RedisClient) Ping(group string) error {
	servers, err := p.conf.GetGroupServers(group)
	if err != nil {
		return err
	}
	for _, server := range servers {
		conn, err := server.GetConn()
		if err != nil {
			return err
		}
		_, err = conn.Do(PING)
		conn.Close()
		if err != nil {
			return fmt.Errorf("ping redis %s fail,err:%w", server.Addr(), err)
		}
	}
	return nil
}

// Close close the pools
func (p *RedisClient) Close() error {
	return p.conf.Close()
}
