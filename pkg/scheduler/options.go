package scheduler

import (
	"log/slog"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/domain"
)

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTickFrequency sets how often sources tick, in Hz. Zero disables the
// clock so that only Step ticks; a negative value ticks again as soon as the
// previous tick drained.
func WithTickFrequency(hz float64) Option {
	return func(p *Pool) {
		p.frequency = hz
	}
}

// WithThreadless binds every worker to a single shared group.
func WithThreadless() Option {
	return func(p *Pool) {
		p.threadless = true
	}
}

// WithErrorHandler registers fn to run once when the pool halts on an error.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pool) {
		p.onError = fn
	}
}

// WithInitiallyPaused starts the pool paused.
func WithInitiallyPaused() Option {
	return func(p *Pool) {
		p.paused = true
	}
}

func defaults(p *Pool) {
	p.logger = logging.NewNop()
	p.frequency = domain.DefaultTickFrequency
}
