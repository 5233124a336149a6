package http

import (
	"net/http"
	"time"

	c "github.com/d0ngw/kcounter/common"
)

// Middleware 包装处理函数,在next前后执行额外的操作
type Middleware interface {
	Handle(next http.HandlerFunc) http.HandlerFunc
}

// MiddlewareFunc 函数形式的Middleware
type MiddlewareFunc func(next http.HandlerFunc) http.HandlerFunc

// Handle implements Middleware
func (f MiddlewareFunc) Handle(next http.HandlerFunc) http.HandlerFunc {
	return f(next)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// AccessLog 记录请求的方法,路径,状态和耗时
var AccessLog = MiddlewareFunc(func(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		level := c.Debug
		if sw.status >= http.StatusInternalServerError {
			level = c.Warn
		}
		c.Logf(level, "%s %s %d %s", r.Method, r.URL.RequestURI(), sw.status, time.Since(start))
	}
})

// Recover 将handler中的panic转为500响应
var Recover = MiddlewareFunc(func(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				c.Criticalf("handle %s panic:%v", r.URL.Path, err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
})
