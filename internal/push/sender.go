package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/notification"
	"github.com/NordCoder/Renewly/internal/domain/subscription"
	"github.com/NordCoder/Renewly/internal/vapid"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrUnavailable wraps requests refused by an open host breaker.
	ErrUnavailable = errors.New("push service unavailable")
	// ErrPayload marks failures to build the message locally (size,
	// subscription keys, encryption). No request reached the push service.
	ErrPayload = errors.New("push payload not sendable")
)

type Config struct {
	Subscriber string
	Timeout    time.Duration
	TTL        time.Duration
	Urgency    string
	RatePerSec float64
	Burst      int
	VerifyTLS  bool
	Breaker    BreakerConfig
}

// Sender signs, encrypts and posts payloads to push services.
type Sender struct {
	keys       *vapid.Keys
	cfg        Config
	subscriber string
	client     *http.Client
	limiter    *rate.Limiter
	breakers   *breakers
	log        *zap.Logger
}

var _ notification.Pusher = (*Sender)(nil)

func NewSender(keys *vapid.Keys, cfg Config, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Urgency == "" {
		cfg.Urgency = string(webpush.UrgencyHigh)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	log = log.With(zap.String("component", "push_sender"))

	return &Sender{
		keys:       keys,
		cfg:        cfg,
		subscriber: strings.TrimPrefix(cfg.Subscriber, "mailto:"),
		client:     NewHTTPClient(cfg.Timeout, cfg.VerifyTLS),
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		breakers:   newBreakers(cfg.Breaker, log),
		log:        log,
	}
}

// WithHTTPClient replaces the transport client.
func (s *Sender) WithHTTPClient(c *http.Client) *Sender {
	s.client = c
	return s
}

// Push returns the push service status code. Non-2xx answers come back as
// *notification.StatusError together with their code.
func (s *Sender) Push(ctx context.Context, sub *subscription.Subscription, payload []byte) (int, error) {
	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Host == "" {
		pushSent.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("invalid endpoint %q", sub.Endpoint)
	}

	if len(payload) > notification.MaxPayloadSize {
		pushSent.WithLabelValues("invalid").Inc()
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayload, len(payload), notification.MaxPayloadSize)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		pushSent.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("push rate limit: %w", err)
	}

	start := time.Now()
	status, err := s.breakers.get(u.Host).Execute(func() (int, error) {
		return s.send(ctx, sub, payload)
	})
	pushLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		pushSent.WithLabelValues("ok").Inc()
		return status, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		pushSent.WithLabelValues("unavailable").Inc()
		return 0, fmt.Errorf("%w: %s: %w", ErrUnavailable, u.Host, err)
	case errors.Is(err, notification.ErrSubscriptionGone):
		pushSent.WithLabelValues("gone").Inc()
	case errors.Is(err, ErrPayload):
		pushSent.WithLabelValues("invalid").Inc()
	default:
		var se *notification.StatusError
		if errors.As(err, &se) {
			pushSent.WithLabelValues("rejected").Inc()
		} else {
			pushSent.WithLabelValues("error").Inc()
		}
	}
	return status, err
}

func (s *Sender) send(ctx context.Context, sub *subscription.Subscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subscriber,
		TTL:             int(s.cfg.TTL / time.Second),
		Urgency:         webpush.Urgency(s.cfg.Urgency),
		VAPIDPublicKey:  s.keys.PublicKey(),
		VAPIDPrivateKey: s.keys.PrivateScalar(),
	})
	if err != nil {
		// http.Client.Do reports transport failures as *url.Error; anything
		// else failed before a request was made.
		var ue *url.Error
		if errors.As(err, &ue) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrPayload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	s.log.Debug("push rejected",
		zap.Int("status", resp.StatusCode),
		zap.String("endpoint", sub.Endpoint),
	)
	return resp.StatusCode, &notification.StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(body)),
	}
}
