package engine

import (
	"log/slog"
	"time"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/domain"
)

// Option configures a Graph or a NodeWorker.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	hooks         domain.LifecycleHooks
	executor      Executor
	strict        bool
	contTimeout   time.Duration
	historyLength int
	tickDisabled  bool
	graphID       string
}

func defaultOptions() options {
	return options{
		logger:        logging.NewNop(),
		executor:      Inline,
		historyLength: domain.DefaultTimerHistoryLength,
	}
}

func applyOptions(base options, opts []Option) options {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// WithLogger sets the logger used by workers and transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHooks registers lifecycle callbacks. Repeated options merge.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = o.hooks.Merge(hooks)
	}
}

// WithExecutor sets the executor that runs worker mailboxes.
func WithExecutor(exec Executor) Option {
	return func(o *options) {
		o.executor = exec
	}
}

// WithStrictSequencing escalates rounds whose mandatory inputs or outputs
// disagree on the sequence number to protocol errors instead of only
// logging them.
func WithStrictSequencing(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithContinuationTimeout reports an asynchronous continuation as lost when
// it was not invoked within d, and releases the worker.
func WithContinuationTimeout(d time.Duration) Option {
	return func(o *options) {
		o.contTimeout = d
	}
}

// WithTimerHistory sets how many timer records a worker keeps.
func WithTimerHistory(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyLength = n
		}
	}
}

// WithTickDisabled creates workers with ticking switched off.
func WithTickDisabled() Option {
	return func(o *options) {
		o.tickDisabled = true
	}
}

// WithGraphID sets the id reported in events and descriptions.
func WithGraphID(id string) Option {
	return func(o *options) {
		o.graphID = id
	}
}
