package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	c "github.com/d0ngw/kcounter/common"
	"golang.org/x/net/netutil"
)

type tcpKeepAliveListener struct {
	*net.TCPListener
}

// Accept 接受连接并开启keepalive
func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err = tc.SetKeepAlive(true); err != nil {
		tc.Close()
		return nil, err
	}
	if err = tc.SetKeepAlivePeriod(3 * time.Minute); err != nil {
		tc.Close()
		return nil, err
	}
	return tc, nil
}

// Service Http服务
type Service struct {
	c.BaseService
	Conf     *Config
	listener net.Listener
	server   *http.Server
	served   chan struct{}
	lock     sync.Mutex
}

// shutdownTimeout 停止时等待正在处理的请求的最长时间
const shutdownTimeout = 30 * time.Second

// NewService 创建Http服务,conf需要已经注册好处理函数
func NewService(name string, conf *Config) *Service {
	return &Service{BaseService: c.BaseService{SName: name}, Conf: conf}
}

// Init 初始化Http服务
func (p *Service) Init() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.Conf == nil {
		return errors.New("no http config")
	}
	if err := p.Conf.Parse(); err != nil {
		return err
	}

	p.server = &http.Server{
		Addr:         p.Conf.Addr,
		ReadTimeout:  time.Duration(p.Conf.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(p.Conf.WriteTimeout) * time.Second,
		Handler:      p.Conf.newServeMux()}
	return nil
}

// Start 启动Http服务,开始端口监听和服务处理
func (p *Service) Start() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.server == nil {
		c.Errorf("http service %s is not inited", p.Name())
		return false
	}
	ln, err := net.Listen("tcp", p.Conf.Addr)
	if err != nil {
		c.Errorf("Listen at %s fail,error:%v", p.Conf.Addr, err)
		return false
	}
	c.Infof("Listen at %s", ln.Addr())

	tcpListener := tcpKeepAliveListener{ln.(*net.TCPListener)}
	if p.Conf.MaxConns > 0 {
		p.listener = netutil.LimitListener(tcpListener, p.Conf.MaxConns)
	} else {
		p.listener = tcpListener
	}

	server, listener, served := p.server, p.listener, make(chan struct{})
	p.served = served
	go func() {
		defer close(served)
		err := server.Serve(listener)
		if err != nil {
			var errLevel = c.Error
			if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
				errLevel = c.Debug
			}
			c.Logf(errLevel, "server.Serve return with %v", err)
		}
	}()
	return true
}

// Addr 返回实际监听的地址,未启动时返回nil
func (p *Service) Addr() net.Addr {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop 停止Http服务,关闭端口监听并等待正在处理的请求完成,超时后强制关闭连接
func (p *Service) Stop() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	ok := true
	if p.server != nil {
		c.Infof("Waiting shutdown")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := p.server.Shutdown(ctx); err != nil {
			c.Errorf("Shutdown %s error:%v", p.Name(), err)
			p.server.Close()
			ok = false
		}
		cancel()
		if p.served != nil {
			<-p.served
		}
		c.Infof("Finish shutdown")
	}

	p.listener = nil
	p.server = nil
	p.served = nil
	return ok
}
