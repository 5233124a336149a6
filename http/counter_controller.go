package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/d0ngw/kcounter/counter"
	"github.com/d0ngw/kcounter/plugins"
)

// CountResp 计数的响应数据
type CountResp struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

// CounterController 计数的管理接口: lookup,incr和dump
type CounterController struct {
	BaseController
	Store   counter.Store
	Timeout time.Duration //单个请求操作Store的超时时间,0表示不限制
}

// NewCounterController 创建路径为/counter/的CounterController
func NewCounterController(store counter.Store) *CounterController {
	return &CounterController{
		BaseController: BaseController{Name: "counter", Path: "/counter/"},
		Store:          store,
		Timeout:        5 * time.Second,
	}
}

func (p *CounterController) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	if p.Timeout > 0 {
		return context.WithTimeout(r.Context(), p.Timeout)
	}
	return context.WithCancel(r.Context())
}

// Lookup GET /counter/lookup?key=
func (p *CounterController) Lookup(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		RenderError(w, http.StatusBadRequest, "missing param key")
		return
	}
	ctx, cancel := p.withTimeout(r)
	defer cancel()
	n, err := p.Store.Lookup(ctx, key)
	if err != nil {
		renderStoreError(w, err)
		return
	}
	RenderJSON(w, &Resp{Success: true, Data: &CountResp{Key: key, Count: n}})
}

// Incr POST /counter/incr?key=
func (p *CounterController) Incr(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		RenderError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := r.Form.Get("key")
	if key == "" {
		RenderError(w, http.StatusBadRequest, "missing param key")
		return
	}
	ctx, cancel := p.withTimeout(r)
	defer cancel()
	n, err := p.Store.Increment(ctx, key)
	if err != nil {
		renderStoreError(w, err)
		return
	}
	RenderJSON(w, &Resp{Success: true, Data: &CountResp{Key: key, Count: n}})
}

// Dump GET /counter/dump
func (p *CounterController) Dump(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := p.withTimeout(r)
	defer cancel()
	fields, err := p.Store.Snapshot(ctx)
	if err != nil {
		renderStoreError(w, err)
		return
	}
	RenderJSON(w, &Resp{Success: true, Data: fields})
}

// MessageResp 消息的处理结果
type MessageResp struct {
	Handled bool   `json:"handled"`
	Reply   string `json:"reply,omitempty"`
}

// BotController 把消息交给插件处理,用于没有聊天宿主时的调试
type BotController struct {
	BaseController
	Registry *plugins.Registry
}

// NewBotController 创建路径为/bot/的BotController
func NewBotController(registry *plugins.Registry) *BotController {
	return &BotController{
		BaseController: BaseController{Name: "bot", Path: "/bot/"},
		Registry:       registry,
	}
}

// Message POST /bot/message,参数nick,channel和text
func (p *BotController) Message(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		RenderError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg := &plugins.Message{
		Nick:    GetParameter(r.Form, "nick"),
		Channel: GetParameter(r.Form, "channel"),
		Text:    r.Form.Get("text"),
	}
	if msg.Nick == "" {
		RenderError(w, http.StatusBadRequest, "missing param nick")
		return
	}
	reply, handled, err := p.Registry.Dispatch(r.Context(), msg)
	if err != nil {
		renderStoreError(w, err)
		return
	}
	RenderJSON(w, &Resp{Success: true, Data: &MessageResp{Handled: handled, Reply: reply}})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	RenderError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func renderStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, counter.ErrInvalidKey):
		status = http.StatusBadRequest
	case errors.Is(err, counter.ErrOverflow):
		status = http.StatusConflict
	case errors.Is(err, counter.ErrClosed), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	RenderError(w, status, err.Error())
}
