package sv

// Logger is the structured logger every vault component writes to.
// Args are slog-style alternating key/value pairs. Key material, PINs,
// recovery keys and file content must never be passed as values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a Logger that prefixes every record with args.
	With(args ...any) Logger
}

// NopLogger discards everything. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

func (l *NopLogger) With(...any) Logger { return l }
