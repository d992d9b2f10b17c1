//go:build go1.21

package bayeux

import "log/slog"

type wrappedSlog struct {
	*slog.Logger
}

func (w wrappedSlog) Debug(msg string, args ...any) { w.Logger.Debug(msg, args...) }
func (w wrappedSlog) Info(msg string, args ...any)  { w.Logger.Info(msg, args...) }
func (w wrappedSlog) Warn(msg string, args ...any)  { w.Logger.Warn(msg, args...) }
func (w wrappedSlog) Error(msg string, args ...any) { w.Logger.Error(msg, args...) }

func (w wrappedSlog) WithError(err error) Logger {
	return wrappedSlog{w.Logger.With("error", err)}
}

func (w wrappedSlog) WithField(key string, value any) Logger {
	return wrappedSlog{w.Logger.With(key, value)}
}

// WithSlogLogger installs a log/slog-backed Logger.
func WithSlogLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.log = wrappedSlog{logger}
	}
}
