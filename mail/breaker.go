package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = gobreaker.ErrOpenState

type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears counts while closed; 0 never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// BreakerDispatcher stops calling next after repeated failures so a broken
// broker fails reset requests fast instead of holding each one until timeout.
type BreakerDispatcher struct {
	next    authcore.MailDispatcher
	breaker *gobreaker.CircuitBreaker[authcore.MailResult]
	logger  *slog.Logger
}

var _ authcore.MailDispatcher = (*BreakerDispatcher)(nil)

func NewBreakerDispatcher(next authcore.MailDispatcher, cfg BreakerConfig, logger *slog.Logger) *BreakerDispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mail circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &BreakerDispatcher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[authcore.MailResult](settings),
		logger:  logger,
	}
}

func (d *BreakerDispatcher) Send(ctx context.Context, to, subject, htmlBody string) (authcore.MailResult, error) {
	return d.breaker.Execute(func() (authcore.MailResult, error) {
		return d.next.Send(ctx, to, subject, htmlBody)
	})
}

func (d *BreakerDispatcher) State() gobreaker.State {
	return d.breaker.State()
}
