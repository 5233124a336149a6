// Package plugins 聊天机器人的插件: !wtf 计数命令, wtf 关键字监听和 !hello 命令.
// 宿主负责协议和昵称解析, 只需把收到的消息交给 Registry.Dispatch.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	c "github.com/d0ngw/kcounter/common"
)

// Message 一条聊天消息
type Message struct {
	Nick    string
	Channel string
	Text    string
}

// Command 解析后的命令,Name不含前缀且为小写
type Command struct {
	Name string
	Nick string
	Args []string
}

// CommandHandler 命令处理器
type CommandHandler interface {
	// Names 处理的命令名称
	Names() []string
	// Handle 处理命令,返回回复的内容
	Handle(ctx context.Context, cmd *Command) (reply string, err error)
}

// EventListener 消息监听器
type EventListener interface {
	OnMessage(ctx context.Context, msg *Message) error
}

// Config 插件配置
type Config struct {
	Prefix  string            `yaml:"prefix"`  //命令前缀,默认!
	Keyword string            `yaml:"keyword"` //计数的关键字,默认wtf
	Aliases map[string]string `yaml:"aliases"` //别名->主昵称
	aliases map[string]string
}

var keywordRe = regexp.MustCompile(`^\w+$`)

// Parse implements Configurer
func (p *Config) Parse() error {
	if p.Prefix == "" {
		p.Prefix = "!"
	}
	if strings.ContainsAny(p.Prefix, " \t") {
		return fmt.Errorf("invalid command prefix %q", p.Prefix)
	}
	if p.Keyword == "" {
		p.Keyword = "wtf"
	}
	if !keywordRe.MatchString(p.Keyword) {
		return fmt.Errorf("invalid keyword %q", p.Keyword)
	}
	aliases := make(map[string]string, len(p.Aliases))
	for alias, nick := range p.Aliases {
		if alias == "" || nick == "" {
			return fmt.Errorf("invalid alias %q -> %q", alias, nick)
		}
		lower := strings.ToLower(alias)
		if prev, ok := aliases[lower]; ok && prev != nick {
			return fmt.Errorf("alias %q maps to both %q and %q", alias, prev, nick)
		}
		aliases[lower] = nick
	}
	p.aliases = aliases
	return nil
}

// Resolve 返回nick的主昵称,没有别名时返回nick本身
func (p *Config) Resolve(nick string) string {
	if p == nil {
		return nick
	}
	if main, ok := p.aliases[strings.ToLower(nick)]; ok {
		return main
	}
	return nick
}

// 支持引号的参数切分: !wtf "alice smith"
var reArg = regexp.MustCompile(`"([^"]*)"|(\S+)`)

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[1] != "" || strings.HasPrefix(m[0], `"`) {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}

// Registry 按命令名称路由命令,并把普通消息分发给所有监听器
type Registry struct {
	prefix string

	mu        sync.RWMutex
	handlers  map[string]CommandHandler
	listeners []EventListener
}

// NewRegistry 创建Registry,prefix为空时使用!
func NewRegistry(prefix string) *Registry {
	if prefix == "" {
		prefix = "!"
	}
	return &Registry{prefix: prefix, handlers: map[string]CommandHandler{}}
}

// Register 注册命令处理器,名称重复时返回错误
func (p *Registry) Register(handler CommandHandler) error {
	if handler == nil {
		return errors.New("nil handler")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	names := handler.Names()
	if len(names) == 0 {
		return fmt.Errorf("%T has no command name", handler)
	}
	for _, name := range names {
		if _, ok := p.handlers[strings.ToLower(name)]; ok {
			return fmt.Errorf("duplicate command %s", name)
		}
	}
	for _, name := range names {
		p.handlers[strings.ToLower(name)] = handler
	}
	return nil
}

// AddListener 添加消息监听器
func (p *Registry) AddListener(listener EventListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, listener)
}

// ParseCommand 把以前缀开头的消息解析为命令
func (p *Registry) ParseCommand(msg *Message) (*Command, bool) {
	if !strings.HasPrefix(msg.Text, p.prefix) {
		return nil, false
	}
	text := strings.TrimPrefix(msg.Text, p.prefix)
	if text == "" || unicode.IsSpace(rune(text[0])) {
		return nil, false
	}
	fields := splitArgs(text)
	if len(fields) == 0 || fields[0] == "" {
		return nil, false
	}
	return &Command{Name: strings.ToLower(fields[0]), Nick: msg.Nick, Args: fields[1:]}, true
}

// Dispatch 处理一条消息. 命令交给对应的处理器,handled表示是否有处理器处理了该命令;
// 其它消息分发给所有的监听器,所有监听器的错误合并后返回.
func (p *Registry) Dispatch(ctx context.Context, msg *Message) (reply string, handled bool, err error) {
	if msg == nil {
		return "", false, nil
	}
	if cmd, ok := p.ParseCommand(msg); ok {
		p.mu.RLock()
		handler := p.handlers[cmd.Name]
		p.mu.RUnlock()
		if handler == nil {
			c.Debugf("no handler for command %s from %s", cmd.Name, msg.Nick)
			return "", false, nil
		}
		reply, err = handler.Handle(ctx, cmd)
		if err != nil {
			c.Errorf("handle command %s from %s fail,err:%v", cmd.Name, msg.Nick, err)
		}
		return reply, true, err
	}

	p.mu.RLock()
	listeners := append([]EventListener(nil), p.listeners...)
	p.mu.RUnlock()
	var errs []error
	for _, listener := range listeners {
		if err := listener.OnMessage(ctx, msg); err != nil {
			c.Errorf("%T on message from %s fail,err:%v", listener, msg.Nick, err)
			errs = append(errs, err)
		}
	}
	return "", false, errors.Join(errs...)
}
