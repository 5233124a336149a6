package cache

import (
	"fmt"
	"sort"
	"time"

	c "github.com/d0ngw/kcounter/common"
	"github.com/gomodule/redigo/redis"
)

// Redis连接池的默认参数,时间的单位为毫秒
const (
	DefaultConnectTimeout = 5 * 1000
	DefaultReadTimeout    = 5 * 1000
	DefaultWriteTimeout   = 5 * 1000
	DefaultMaxActive      = 100
	DefaultMaxIdle        = 2
	DefaultIdleTimeout    = 60 * 1000
)

// idleCheckInterval 空闲超过此时间的连接在借出前先PING
const idleCheckInterval = time.Minute

// RedisPoolConf Redis连接池配置,未设置的项使用默认值
type RedisPoolConf struct {
	ConnectTimeout int `yaml:"connect_timeout"` //连接超时时间,单位毫秒
	ReadTimeout    int `yaml:"read_timeout"`    //读取超时,单位毫秒
	WriteTimeout   int `yaml:"write_timeout"`   //写取超时,单位毫秒
	MaxIdle        int `yaml:"max_idle"`        //最大空闲连接
	MaxActive      int `yaml:"max_active"`      //最大活跃连接
	IdleTimeout    int `yaml:"idle_timeout"`    //空闲连接的超时时间,单位毫秒
}

// withDefaults 返回用默认值补齐后的配置
func (p *RedisPoolConf) withDefaults() *RedisPoolConf {
	conf := RedisPoolConf{}
	if p != nil {
		conf = *p
	}
	setDefault := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setDefault(&conf.ConnectTimeout, DefaultConnectTimeout)
	setDefault(&conf.ReadTimeout, DefaultReadTimeout)
	setDefault(&conf.WriteTimeout, DefaultWriteTimeout)
	setDefault(&conf.MaxIdle, DefaultMaxIdle)
	setDefault(&conf.MaxActive, DefaultMaxActive)
	setDefault(&conf.IdleTimeout, DefaultIdleTimeout)
	return &conf
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// RedisServer Redis实例的配置
type RedisServer struct {
	ID   string      `yaml:"id"`   //Redis实例的id
	Host string      `yaml:"host"` //Redis主机地址
	Port int         `yaml:"port"` //Redis的端口
	Auth string      `yaml:"auth"` //Redis认证密码
	DB   int         `yaml:"db"`   //Redis的数据库编号
	pool *redis.Pool //Redis实例的连接池
}

// Addr host:port
func (p *RedisServer) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// initPool 使用指定的参数初始化pool
func (p *RedisServer) initPool(poolConf *RedisPoolConf) error {
	if p.pool != nil {
		return fmt.Errorf("server %s already inited", p.ID)
	}
	options := []redis.DialOption{
		redis.DialConnectTimeout(millis(poolConf.ConnectTimeout)),
		redis.DialReadTimeout(millis(poolConf.ReadTimeout)),
		redis.DialWriteTimeout(millis(poolConf.WriteTimeout)),
	}
	if p.Auth != "" {
		options = append(options, redis.DialPassword(p.Auth))
	}
	if p.DB > 0 {
		options = append(options, redis.DialDatabase(p.DB))
	}

	addr := p.Addr()
	p.pool = &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr, options...)
		},
		TestOnBorrow: func(conn redis.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < idleCheckInterval {
				return nil
			}
			_, err := conn.Do(PING)
			return err
		},
		MaxActive:   poolConf.MaxActive,
		MaxIdle:     poolConf.MaxIdle,
		IdleTimeout: millis(poolConf.IdleTimeout),
		Wait:        true,
	}
	return nil
}

// GetConn acquire redis conn
func (p *RedisServer) GetConn() (redis.Conn, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("redis %s is closed or not inited", p.ID)
	}
	conn := p.pool.Get()
	if err := conn.Err(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// RedisConf Redis实例和分组的配置
type RedisConf struct {
	Servers   []*RedisServer            `yaml:"servers"`      //实例列表
	Groups    map[string][]string       `yaml:"groups"`       //Redis组定义,key为组ID;value为Server的id列表
	Pool      *RedisPoolConf            `yaml:"pool"`         //默认的链接池配置
	GroupPool map[string]*RedisPoolConf `yaml:"groups_pools"` //Redis组的连接池配置
	groups    map[string][]*RedisServer
}

func (p *RedisConf) checkServers() (map[string]*RedisServer, error) {
	servers := map[string]*RedisServer{}
	addrs := map[string]struct{}{}
	for _, server := range p.Servers {
		if server == nil || c.IsEmpty(server.ID, server.Host) {
			return nil, fmt.Errorf("invalid redis server conf,id and host must not be empty")
		}
		if server.Port <= 0 {
			return nil, fmt.Errorf("invalid redis server conf,port %d", server.Port)
		}
		if _, ok := servers[server.ID]; ok {
			return nil, fmt.Errorf("duplicate server id:%s", server.ID)
		}
		addr := fmt.Sprintf("%s/%d", server.Addr(), server.DB)
		if _, ok := addrs[addr]; ok {
			return nil, fmt.Errorf("duplicate server:%s", addr)
		}
		addrs[addr] = struct{}{}
		servers[server.ID] = server
	}
	return servers, nil
}

// Parse implements Configurer interface, every group gets its own pools
func (p *RedisConf) Parse() error {
	if p == nil {
		c.Warnf("no redis conf")
		return nil
	}
	servers, err := p.checkServers()
	if err != nil {
		return err
	}

	groups := map[string][]*RedisServer{}
	for groupID, serverIDs := range p.Groups {
		if groupID == "" {
			return fmt.Errorf("invalid redis group id")
		}
		if len(serverIDs) == 0 {
			return fmt.Errorf("redis group id %s has no servers", groupID)
		}
		poolConf := p.GroupPool[groupID]
		if poolConf == nil {
			poolConf = p.Pool
		}
		poolConf = poolConf.withDefaults()

		//对redis实例进行排序,保证key到实例的映射稳定
		sorted := append([]string(nil), serverIDs...)
		sort.Strings(sorted)
		redisServers := make([]*RedisServer, 0, len(sorted))
		for i, serverID := range sorted {
			if i > 0 && sorted[i-1] == serverID {
				return fmt.Errorf("duplicate server id %s in group %s", serverID, groupID)
			}
			server := servers[serverID]
			if server == nil {
				return fmt.Errorf("can't find server id %s", serverID)
			}
			groupServer := *server
			groupServer.pool = nil
			if err := groupServer.initPool(poolConf); err != nil {
				return err
			}
			redisServers = append(redisServers, &groupServer)
		}
		groups[groupID] = redisServers
	}
	p.groups = groups
	return nil
}

// GetGroupServers return the sorted servers of group
func (p *RedisConf) GetGroupServers(group string) ([]*RedisServer, error) {
	servers := p.groups[group]
	if len(servers) == 0 {
		return nil, fmt.Errorf("no redis servers for group %s", group)
	}
	return servers, nil
}

// Close close all the pools
func (p *RedisConf) Close() error {
	var firstErr error
	for groupID, servers := range p.groups {
		for _, server := range servers {
			if server.pool == nil {
				continue
			}
			if err := server.pool.Close(); err != nil {
				c.Errorf("close redis %s of group %s fail,err:%v", server.Addr(), groupID, err)
				if firstErr == nil {
					firstErr = err
				}
			}
			server.pool = nil
		}
	}
	return firstErr
}
