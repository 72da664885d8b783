package utils

import (
	"context"

	"github.com/pengsrc/go-shared/check"
	"github.com/pengsrc/go-shared/log"
)

// ContextFreeLogger adapts log.Logger's context-aware methods to the
// context-free call sites in this codebase.
type ContextFreeLogger struct {
	l *log.Logger
}

// NewContextFreeLogger wraps l, passing context.Background() to every call.
func NewContextFreeLogger(l *log.Logger) *ContextFreeLogger {
	return &ContextFreeLogger{l: l}
}

func (c *ContextFreeLogger) Fatalf(format string, v ...interface{}) {
	c.l.Fatalf(context.Background(), format, v...)
}

func (c *ContextFreeLogger) Panicf(format string, v ...interface{}) {
	c.l.Panicf(context.Background(), format, v...)
}

func (c *ContextFreeLogger) Errorf(format string, v ...interface{}) {
	c.l.Errorf(context.Background(), format, v...)
}

func (c *ContextFreeLogger) Warnf(format string, v ...interface{}) {
	c.l.Warnf(context.Background(), format, v...)
}

func (c *ContextFreeLogger) Infof(format string, v ...interface{}) {
	c.l.Infof(context.Background(), format, v...)
}

func (c *ContextFreeLogger) Debugf(format string, v ...interface{}) {
	c.l.Debugf(context.Background(), format, v...)
}

// Logger is the global logger for nodeftpd
var Logger *ContextFreeLogger

func init() {
	// Setup logger.
	l, err := log.NewTerminalLogger("debug")
	check.ErrorForExit("log init error: ", err)
	Logger = NewContextFreeLogger(l)
}
