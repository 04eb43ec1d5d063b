package subscription

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTimeout bounds every provider and store call. Non-positive values are ignored.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) ServiceOption {
	return func(s *service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithNotifier registers the hook for trial and payment-failure notices.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithSessionCache enables caching of verified checkout sessions.
func WithSessionCache(c SessionCache) ServiceOption {
	return func(s *service) {
		if c != nil {
			s.sessions = c
		}
	}
}
