package realtime

import (
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/time/rate"
)

// Defaults applied by NewRouter.
const (
	DefaultChatRate         = 10
	DefaultChatBurst        = 20
	DefaultHistoryLimit     = 50
	DefaultOperationTimeout = 10 * time.Second
)

type options struct {
	chatRate     rate.Limit
	chatBurst    int
	historyLimit int
	opTimeout    time.Duration
	verifiedOnly bool
	publisher    Publisher
	logger       types.Logger
	now          func() time.Time
}

func defaultOptions() options {
	return options{
		chatRate:     DefaultChatRate,
		chatBurst:    DefaultChatBurst,
		historyLimit: DefaultHistoryLimit,
		opTimeout:    DefaultOperationTimeout,
		publisher:    nopPublisher{},
		logger:       nopLogger{},
		now:          time.Now,
	}
}

// Option configures a Router.
type Option func(*options)

// WithChatRateLimit sets the per-connection chat token bucket. A rate of
// zero or less disables limiting.
func WithChatRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.chatRate = rate.Limit(perSecond)
		o.chatBurst = burst
	}
}

// WithHistoryLimit sets how many chat messages a joining player receives.
func WithHistoryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithOperationTimeout bounds every gateway call made while handling an event.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.opTimeout = d
		}
	}
}

// WithVerifiedIdentitiesOnly makes the router ignore user ids claimed in
// join requests. Sessions without a verified identity join as guests.
func WithVerifiedIdentitiesOnly() Option {
	return func(o *options) {
		o.verifiedOnly = true
	}
}

// WithPublisher sets where domain events are announced.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(l types.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type nopLogger struct{}

func (l nopLogger) Debug(string, ...any)           {}
func (l nopLogger) Info(string, ...any)            {}
func (l nopLogger) Warn(string, ...any)            {}
func (l nopLogger) Error(string, ...any)           {}
func (l nopLogger) With(...any) types.Logger       { return l }
func (l nopLogger) WithModule(string) types.Logger { return l }
func (l nopLogger) WithError(error) types.Logger   { return l }
