package core

type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// LevelFromVerbosity maps the CLI -v count to a log level.
func LevelFromVerbosity(count int) LogLevel {
	switch {
	case count >= 2:
		return LevelTrace
	case count == 1:
		return LevelDebug
	default:
		return LevelInfo
	}
}

type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	SetLevel(level LogLevel)
}

// NopLogger discards everything. Library constructors fall back to it.
type NopLogger struct{}

func (NopLogger) Trace(msg string, args ...any) {}
func (NopLogger) Debug(msg string, args ...any) {}
func (NopLogger) Info(msg string, args ...any)  {}
func (NopLogger) Warn(msg string, args ...any)  {}
func (NopLogger) Error(msg string, args ...any) {}
func (n NopLogger) With(args ...any) Logger     { return n }
func (NopLogger) SetLevel(level LogLevel)       {}
