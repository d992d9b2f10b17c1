package bayeux

import "github.com/sirupsen/logrus"

// Logger decouples this package from any one logging library. WithLogger
// installs a logrus-backed implementation and WithSlogLogger (go1.21+) a
// log/slog-backed one; with neither, a Session discards its log output.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithError(err error) Logger
	WithField(key string, value any) Logger
}

type nullLogger struct{}

func (nullLogger) Debug(string, ...any)             {}
func (nullLogger) Info(string, ...any)              {}
func (nullLogger) Warn(string, ...any)               {}
func (nullLogger) Error(string, ...any)              {}
func (n nullLogger) WithError(error) Logger          { return n }
func (n nullLogger) WithField(string, any) Logger    { return n }

type wrappedFieldLogger struct {
	logrus.FieldLogger
}

func (w wrappedFieldLogger) Debug(msg string, args ...any) { w.FieldLogger.Debug(append([]any{msg}, args...)...) }
func (w wrappedFieldLogger) Info(msg string, args ...any)  { w.FieldLogger.Info(append([]any{msg}, args...)...) }
func (w wrappedFieldLogger) Warn(msg string, args ...any)  { w.FieldLogger.Warn(append([]any{msg}, args...)...) }
func (w wrappedFieldLogger) Error(msg string, args ...any) { w.FieldLogger.Error(append([]any{msg}, args...)...) }

func (w wrappedFieldLogger) WithError(err error) Logger {
	return wrappedFieldLogger{w.FieldLogger.WithError(err)}
}

func (w wrappedFieldLogger) WithField(key string, value any) Logger {
	return wrappedFieldLogger{w.FieldLogger.WithField(key, value)}
}

// WithLogger installs a logrus-backed Logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) {
		s.log = wrappedFieldLogger{logger}
	}
}
