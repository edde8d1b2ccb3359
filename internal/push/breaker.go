package push

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/notification"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// breakers keeps one circuit breaker per push service host.
type breakers struct {
	mu  sync.Mutex
	cfg BreakerConfig
	m   map[string]*gobreaker.CircuitBreaker[int]
	log *zap.Logger
}

func newBreakers(cfg BreakerConfig, log *zap.Logger) *breakers {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	return &breakers{cfg: cfg, m: make(map[string]*gobreaker.CircuitBreaker[int]), log: log}
}

func (b *breakers) get(host string) *gobreaker.CircuitBreaker[int] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.m[host]; ok {
		return cb
	}
	threshold := b.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        host,
		MaxRequests: b.cfg.MaxRequests,
		Interval:    b.cfg.Interval,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: healthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerTransitions.WithLabelValues(to.String()).Inc()
			b.log.Warn("push breaker state change",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	b.m[host] = cb
	return cb
}

// healthy reports whether err says nothing bad about the push service itself.
// Gone subscriptions and client-side rejections are answers, not outages.
func healthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrPayload) {
		return true
	}
	var se *notification.StatusError
	if errors.As(err, &se) {
		return se.Code < http.StatusInternalServerError && se.Code != http.StatusTooManyRequests
	}
	return false
}
