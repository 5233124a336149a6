// Package http 提供基本的http服务
package http

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Config Http配置
type Config struct {
	Addr         string `yaml:"addr"`          //Http监听地址
	ReadTimeout  int    `yaml:"read_timeout"`  //读超时,单位秒
	WriteTimeout int    `yaml:"write_timeout"` //写超时,单位秒
	MaxConns     int    `yaml:"max_conns"`     //最大的并发连接数
	middlewares  []Middleware
	handles      map[string]http.HandlerFunc
	handleMux    sync.RWMutex
}

// NewConfig 创建配置
func NewConfig(addr string) *Config {
	conf := &Config{Addr: addr}
	conf.init()
	return conf
}

func (p *Config) init() {
	if p.handles == nil {
		p.handles = map[string]http.HandlerFunc{}
	}
}

// Parse implements Configurer
func (p *Config) Parse() error {
	if p.Addr == "" {
		p.Addr = "127.0.0.1:8080"
	}
	if p.ReadTimeout < 0 || p.WriteTimeout < 0 || p.MaxConns < 0 {
		return fmt.Errorf("invalid http config,timeouts and max_conns must not be negative")
	}
	p.init()
	return nil
}

// RegController 注册controller中的所有处理函数
func (p *Config) RegController(controller Controller) error {
	if controller == nil {
		return fmt.Errorf("can't reg nil controller")
	}
	var path = controller.GetPath()
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	handlers, err := ReflectHandlers(controller)
	if err != nil {
		return err
	}
	if len(handlers) == 0 {
		return fmt.Errorf("can't find handler in %T", controller)
	}
	for handlerPath, h := range handlers {
		patternPath := path + strings.TrimPrefix(handlerPath, "/")
		if err := p.RegHandleFunc(patternPath, h); err != nil {
			return err
		}
	}
	return nil
}

// RegHandleFunc 注册patternPath的处理函数handlerFunc
func (p *Config) RegHandleFunc(patternPath string, handlerFunc http.HandlerFunc) error {
	if handlerFunc == nil {
		return fmt.Errorf("can't bind nil handler to %s", patternPath)
	}
	p.handleMux.Lock()
	defer p.handleMux.Unlock()
	p.init()
	if _, ok := p.handles[patternPath]; ok {
		return fmt.Errorf("duplicate path:%s", patternPath)
	}
	p.handles[patternPath] = handlerFunc
	return nil
}

// RegMiddleware 注册middleware,先注册的在外层
func (p *Config) RegMiddleware(middleware Middleware) error {
	if middleware == nil {
		return fmt.Errorf("invalid middleware")
	}
	p.handleMux.Lock()
	defer p.handleMux.Unlock()
	p.middlewares = append(p.middlewares, middleware)
	return nil
}

func (p *Config) newServeMux() *http.ServeMux {
	p.handleMux.RLock()
	defer p.handleMux.RUnlock()
	serveMux := http.NewServeMux()
	for pattern, handler := range p.handles {
		h := handler
		for i := len(p.middlewares) - 1; i >= 0; i-- {
			h = p.middlewares[i].Handle(h)
		}
		serveMux.Handle(pattern, h)
	}
	return serveMux
}
