package common

import (
	"fmt"
	"strings"
	"sync"
)

// LogLevel 日志级别
type LogLevel int8

// 日志级别,0表示未设置
const (
	Debug LogLevel = iota + 1
	Info
	Warn
	Error
	Critical
)

var logLevelNames = map[LogLevel]string{
	Debug:    "debug",
	Info:     "info",
	Warn:     "warn",
	Error:    "error",
	Critical: "critical",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", l)
}

// ParseLogLevel parse the level name, such as "debug" or "INFO"
func ParseLogLevel(name string) (LogLevel, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for level, levelName := range logLevelNames {
		if levelName == name {
			return level, true
		}
	}
	return 0, false
}

// Logger 日志接口
type Logger interface {
	Debugf(format string, params ...interface{})
	Infof(format string, params ...interface{})
	Warnf(format string, params ...interface{})
	Errorf(format string, params ...interface{})
	Criticalf(format string, params ...interface{})
	Enabled(level LogLevel) bool
	SetLevel(level LogLevel)
	Sync()
}

var (
	loggerLock sync.RWMutex
	logger     Logger = NewZapLogger(&LogConfig{})
)

func currentLogger() Logger {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger
}

// SetLogger replace the global logger, the old one will be synced
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	loggerLock.Lock()
	old := logger
	logger = l
	loggerLock.Unlock()
	if old != nil {
		old.Sync()
	}
}

func initLogger(conf *LogConfig) error {
	if conf == nil {
		return nil
	}
	if conf.Level != "" {
		if _, ok := ParseLogLevel(conf.Level); !ok {
			return fmt.Errorf("invalid log level %q", conf.Level)
		}
	}
	SetLogger(NewZapLogger(conf))
	return nil
}

// SetLogLevel 设置日志级别,level无效时忽略
func SetLogLevel(level LogLevel) {
	currentLogger().SetLevel(level)
}

// Debugf debug
func Debugf(format string, params ...interface{}) {
	currentLogger().Debugf(format, params...)
}

// Infof info
func Infof(format string, params ...interface{}) {
	currentLogger().Infof(format, params...)
}

// Warnf warn
func Warnf(format string, params ...interface{}) {
	currentLogger().Warnf(format, params...)
}

// Errorf error
func Errorf(format string, params ...interface{}) {
	currentLogger().Errorf(format, params...)
}

// Criticalf critical
func Criticalf(format string, params ...interface{}) {
	currentLogger().Criticalf(format, params...)
}

// Logf 按指定的级别记录日志
func Logf(level LogLevel, format string, params ...interface{}) {
	l := currentLogger()
	switch level {
	case Debug:
		l.Debugf(format, params...)
	case Warn:
		l.Warnf(format, params...)
	case Error:
		l.Errorf(format, params...)
	case Critical:
		l.Criticalf(format, params...)
	default:
		l.Infof(format, params...)
	}
}

// DebugEnabled debug是否开启
func DebugEnabled() bool {
	return currentLogger().Enabled(Debug)
}

// InfoEnabled info是否开启
func InfoEnabled() bool {
	return currentLogger().Enabled(Info)
}

// ErrorEnabled error是否开启
func ErrorEnabled() bool {
	return currentLogger().Enabled(Error)
}

// SyncLogger flush the buffered logs
func SyncLogger() {
	currentLogger().Sync()
}
