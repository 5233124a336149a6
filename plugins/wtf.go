package plugins

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/d0ngw/kcounter/counter"
)

// WtfCommand reply how many times a nick has said the keyword
type WtfCommand struct {
	store counter.Store
	conf  *Config
}

// NewWtfCommand create WtfCommand, conf must be parsed
func NewWtfCommand(store counter.Store, conf *Config) *WtfCommand {
	return &WtfCommand{store: store, conf: conf}
}

// Names implements CommandHandler
func (p *WtfCommand) Names() []string {
	return []string{p.conf.Keyword}
}

// Handle implements CommandHandler, the nick is the first argument or the caller
func (p *WtfCommand) Handle(ctx context.Context, cmd *Command) (string, error) {
	nick := cmd.Nick
	if len(cmd.Args) > 0 && cmd.Args[0] != "" {
		nick = cmd.Args[0]
	}
	n, err := p.store.Lookup(ctx, p.conf.Resolve(nick))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s has said %s %d times", nick, p.conf.Keyword, n), nil
}

// WtfListener increment the counter of the sender once per keyword in the message
type WtfListener struct {
	store   counter.Store
	conf    *Config
	keyword *regexp.Regexp
}

// NewWtfListener create WtfListener, conf must be parsed
func NewWtfListener(store counter.Store, conf *Config) *WtfListener {
	return &WtfListener{
		store:   store,
		conf:    conf,
		keyword: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(conf.Keyword) + `\b`),
	}
}

// Count return the whole word occurrences of the keyword in text
func (p *WtfListener) Count(text string) int {
	return len(p.keyword.FindAllStringIndex(text, -1))
}

// OnMessage implements EventListener
func (p *WtfListener) OnMessage(ctx context.Context, msg *Message) error {
	if msg.Nick == "" || strings.HasPrefix(msg.Text, p.conf.Prefix) {
		return nil
	}
	n := p.Count(msg.Text)
	nick := p.conf.Resolve(msg.Nick)
	for i := 0; i < n; i++ {
		if _, err := p.store.Increment(ctx, nick); err != nil {
			return fmt.Errorf("increment %s: %w", nick, err)
		}
	}
	return nil
}

// HelloCommand reply "Hello world!"
type HelloCommand struct{}

// Names implements CommandHandler
func (HelloCommand) Names() []string {
	return []string{"hello"}
}

// Handle implements CommandHandler
func (HelloCommand) Handle(context.Context, *Command) (string, error) {
	return "Hello world!", nil
}

// NewRegistryWithStore create the Registry with all the plugins bound to store
func NewRegistryWithStore(store counter.Store, conf *Config) (*Registry, error) {
	registry := NewRegistry(conf.Prefix)
	if err := registry.Register(NewWtfCommand(store, conf)); err != nil {
		return nil, err
	}
	if err := registry.Register(HelloCommand{}); err != nil {
		return nil, err
	}
	registry.AddListener(NewWtfListener(store, conf))
	return registry, nil
}

var chatLineRe = regexp.MustCompile(`^\s*<([^<>\s]+)>\s?(.*)$`)

// ParseChatLine parse a log line such as "<alice> wtf is this"
func ParseChatLine(line string) (*Message, bool) {
	m := chatLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return &Message{Nick: m[1], Text: m[2]}, true
}
