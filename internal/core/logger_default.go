package core

import (
	"context"
	"io"
	"log/slog"

	"github.com/pterm/pterm"
)

// slogTrace sits below slog.LevelDebug so -vv output can be filtered apart.
const slogTrace = slog.Level(-8)

// DefaultLogger prints a pterm prefix line for humans and a slog text record
// carrying the structured attributes.
type DefaultLogger struct {
	level   LogLevel
	handler *slog.Logger
	output  io.Writer
}

func NewDefaultLogger(output io.Writer, level LogLevel) *DefaultLogger {
	handler := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: toSlogLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == slogTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}))

	return &DefaultLogger{
		level:   level,
		handler: handler,
		output:  output,
	}
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelTrace:
		return slogTrace
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *DefaultLogger) log(level LogLevel, printer pterm.PrefixPrinter, msg string, args ...any) {
	if l.level > level {
		return
	}
	printer.WithWriter(l.output).Println(msg)
	l.handler.Log(context.Background(), toSlogLevel(level), msg, args...)
}

func (l *DefaultLogger) Trace(msg string, args ...any) {
	l.log(LevelTrace, pterm.Debug, "TRACE: "+msg, args...)
}

func (l *DefaultLogger) Debug(msg string, args ...any) {
	l.log(LevelDebug, pterm.Debug, msg, args...)
}

func (l *DefaultLogger) Info(msg string, args ...any) {
	l.log(LevelInfo, pterm.Info, msg, args...)
}

func (l *DefaultLogger) Warn(msg string, args ...any) {
	l.log(LevelWarn, pterm.Warning, msg, args...)
}

func (l *DefaultLogger) Error(msg string, args ...any) {
	l.log(LevelError, pterm.Error, msg, args...)
}

func (l *DefaultLogger) With(args ...any) Logger {
	return &DefaultLogger{
		level:   l.level,
		handler: l.handler.With(args...),
		output:  l.output,
	}
}

// SetLevel only gates output; the slog handler keeps the level it was built with.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level = level
}
