// Package cache 提供Redis实例分组,连接池和key前缀等缓存相关的服务
package cache

import "strings"

// Param is the cache param
type Param interface {
	//Group cache group id
	Group() string
	//Key cache key
	Key() string
}

// ParamConf is the cache param conf with cache group and key prefix
type ParamConf struct {
	group     string
	keyPrefix string
}

// NewParamConf create ParamConf
func NewParamConf(group, keyPrefix string) *ParamConf {
	return &ParamConf{
		group:     group,
		keyPrefix: keyPrefix,
	}
}

// Group return cache group
func (p *ParamConf) Group() string {
	return p.group
}

// KeyPrefix return key prefix
func (p *ParamConf) KeyPrefix() string {
	return p.keyPrefix
}

// Pattern return the SCAN pattern matching all the keys of the conf
func (p *ParamConf) Pattern() string {
	return p.keyPrefix + "*"
}

// TrimKey strip the key prefix from a full redis key
func (p *ParamConf) TrimKey(fullKey string) (key string, ok bool) {
	if !strings.HasPrefix(fullKey, p.keyPrefix) {
		return "", false
	}
	return fullKey[len(p.keyPrefix):], true
}

// NewWithKeyPrefix append keyPrefix to exist ParamConf,return new ParamConf
func (p *ParamConf) NewWithKeyPrefix(keyPrefix string) *ParamConf {
	var param = *p
	param.keyPrefix = p.keyPrefix + keyPrefix
	return &param
}

// NewParamKey create new ParamKey with key
func (p *ParamConf) NewParamKey(key string) *ParamKey {
	return &ParamKey{
		ParamConf: p,
		key:       p.keyPrefix + key,
	}
}

// ParamKey is the cache param with key
type ParamKey struct {
	*ParamConf
	key string
}

// Key implements Param.Key()
func (p *ParamKey) Key() string {
	return p.key
}
