package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/client"
	"github.com/NordCoder/Renewly/internal/domain/notification"
	"github.com/NordCoder/Renewly/internal/domain/preference"
	"github.com/NordCoder/Renewly/internal/domain/subscription"
	"github.com/NordCoder/Renewly/internal/obs"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	MsgNoExpiring      = "no expiring clients"
	MsgNoSubscriptions = "no subscriptions"
)

// Ledger persists the outcome of one delivery attempt, pruning the
// subscription in the same transaction when the attempt is marked pruned.
type Ledger interface {
	Settle(ctx context.Context, d *notification.Delivery) error
}

type Options struct {
	DefaultDays  []int
	Location     *time.Location
	FetchWorkers int
	PushWorkers  int
	AppURL       string
}

type Deps struct {
	Prefs   preference.Repo
	Clients client.Repo
	Subs    subscription.Repo
	Pusher  notification.Pusher
	Ledger  Ledger
	Clock   notification.Clock
	Log     *zap.Logger
}

type Usecase struct {
	prefs   preference.Repo
	clients client.Repo
	subs    subscription.Repo
	pusher  notification.Pusher
	ledger  Ledger
	clock   notification.Clock
	log     *zap.Logger
	opts    Options
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func NewUC(d Deps, opts Options) *Usecase {
	if d.Clock == nil {
		d.Clock = systemClock{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if len(opts.DefaultDays) == 0 {
		opts.DefaultDays = slices.Clone(preference.DefaultDays)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.FetchWorkers < 1 {
		opts.FetchWorkers = 4
	}
	if opts.PushWorkers < 1 {
		opts.PushWorkers = 8
	}
	return &Usecase{
		prefs:   d.Prefs,
		clients: d.Clients,
		subs:    d.Subs,
		pusher:  d.Pusher,
		ledger:  d.Ledger,
		clock:   d.Clock,
		log:     d.Log.With(zap.String("component", "dispatcher")),
		opts:    opts,
	}
}

type Result struct {
	UserID  string `json:"userId"`
	Success bool   `json:"success"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Pruned  bool   `json:"pruned,omitempty"`
}

type Summary struct {
	RunID   string   `json:"runId"`
	Message string   `json:"message"`
	Batches int      `json:"batches"`
	Sent    int      `json:"sent"`
	Results []Result `json:"results"`
}

type job struct {
	sub     *subscription.Subscription
	payload []byte
}

var tracer = otel.Tracer("dispatcher.uc")

// Run computes today's per-seller batches and pushes one notification per
// seller to each of its subscriptions.
func (u *Usecase) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "dispatcher.run", trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()
	log := obs.WithTrace(ctx, u.log).With(zap.String("run_id", runID))

	today := startOfDay(u.clock.Now(), u.opts.Location)
	sellers := u.loadPreferences(ctx, log)
	found := u.fetchExpiring(ctx, log, today, offsets(u.opts.DefaultDays, sellers))

	batches := buildBatches(found, sellers, newDaySet(u.opts.DefaultDays))
	span.SetAttributes(attribute.Int("dispatch.batches", len(batches)))
	if len(batches) == 0 {
		log.Debug("nothing to dispatch")
		return &Summary{RunID: runID, Message: MsgNoExpiring, Results: []Result{}}, nil
	}

	ids := make([]string, 0, len(batches))
	for id := range batches {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	subs, err := u.subs.ListByUsers(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list subscriptions")
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	payloads := make(map[string][]byte, len(batches))
	for _, id := range ids {
		raw, err := encodePayload(buildPayload(batches[id], u.opts.AppURL))
		if err != nil {
			log.Error("skip seller: payload", zap.String("user_id", id), zap.Error(err))
			continue
		}
		payloads[id] = raw
	}

	jobs := make([]job, 0, len(subs))
	for _, s := range subs {
		if p, ok := payloads[s.UserID]; ok {
			jobs = append(jobs, job{sub: s, payload: p})
		}
	}

	results := u.deliver(ctx, log, runID, jobs)
	sum := &Summary{
		RunID:   runID,
		Batches: len(batches),
		Sent:    countSent(results),
		Results: results,
	}
	sum.Message = fmt.Sprintf("dispatched %d batches to %d subscriptions", sum.Batches, len(jobs))

	span.SetAttributes(
		attribute.Int("dispatch.subscriptions", len(jobs)),
		attribute.Int("dispatch.sent", sum.Sent),
	)
	log.Info("dispatch finished",
		zap.Int("batches", sum.Batches),
		zap.Int("subscriptions", len(jobs)),
		zap.Int("sent", sum.Sent),
	)
	return sum, nil
}

// SendTest pushes a fixed diagnostic notification to every subscription of
// one seller.
func (u *Usecase) SendTest(ctx context.Context, userID string) (*Summary, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "dispatcher.test_push", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("seller.id", userID),
	))
	defer span.End()
	log := obs.WithTrace(ctx, u.log).With(zap.String("run_id", runID), zap.String("user_id", userID))

	subs, err := u.subs.ListByUsers(ctx, []string{userID})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return &Summary{RunID: runID, Message: MsgNoSubscriptions, Results: []Result{}}, nil
	}

	raw, err := encodePayload(testPayload(u.opts.AppURL))
	if err != nil {
		return nil, err
	}
	jobs := make([]job, 0, len(subs))
	for _, s := range subs {
		jobs = append(jobs, job{sub: s, payload: raw})
	}

	results := u.deliver(ctx, log, runID, jobs)
	return &Summary{
		RunID:   runID,
		Message: fmt.Sprintf("test sent to %d subscriptions", len(jobs)),
		Sent:    countSent(results),
		Results: results,
	}, nil
}

// loadPreferences never fails the run: on error every seller uses defaults.
func (u *Usecase) loadPreferences(ctx context.Context, log *zap.Logger) map[string]daySet {
	prefs, err := u.prefs.ListEnabled(ctx)
	if err != nil {
		log.Warn("load preferences, falling back to defaults", zap.Error(err))
		return map[string]daySet{}
	}
	return sellerDays(prefs, u.opts.DefaultDays)
}

// fetchExpiring queries every offset in parallel. A failed offset is logged
// and left out.
func (u *Usecase) fetchExpiring(ctx context.Context, log *zap.Logger, today time.Time, days []int) map[int][]*client.Expiration {
	var (
		mu    sync.Mutex
		found = make(map[int][]*client.Expiration, len(days))
		g     errgroup.Group
	)
	g.SetLimit(u.opts.FetchWorkers)

	for _, d := range days {
		d := d
		g.Go(func() error {
			target := today.AddDate(0, 0, d)
			fctx, sp := tracer.Start(ctx, "dispatcher.fetch", trace.WithAttributes(
				attribute.Int("offset", d),
				attribute.String("date", target.Format(time.DateOnly)),
			))
			defer sp.End()

			list, err := u.clients.ListExpiringOn(fctx, target)
			if err != nil {
				sp.RecordError(err)
				log.Warn("fetch expiring clients",
					zap.Int("offset", d),
					zap.String("date", target.Format(time.DateOnly)),
					zap.Error(err),
				)
				return nil
			}
			sp.SetAttributes(attribute.Int("clients", len(list)))
			if len(list) == 0 {
				return nil
			}
			mu.Lock()
			found[d] = list
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return found
}

func (u *Usecase) deliver(ctx context.Context, log *zap.Logger, runID string, jobs []job) []Result {
	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(u.opts.PushWorkers)

	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			results[i] = u.deliverOne(ctx, log, runID, j)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (u *Usecase) deliverOne(ctx context.Context, log *zap.Logger, runID string, j job) Result {
	ctx, sp := tracer.Start(ctx, "dispatcher.push", trace.WithAttributes(
		attribute.String("seller.id", j.sub.UserID),
		attribute.Int64("subscription.id", j.sub.ID),
	))
	defer sp.End()

	status, err := u.pusher.Push(ctx, j.sub, j.payload)
	sp.SetAttributes(attribute.Int("push.status", status))

	d := &notification.Delivery{
		RunID:    runID,
		UserID:   j.sub.UserID,
		Endpoint: j.sub.Endpoint,
		Status:   status,
		Success:  err == nil,
		Payload:  j.payload,
		SentAt:   u.clock.Now().UTC(),
	}
	res := Result{UserID: j.sub.UserID, Success: err == nil, Status: status}

	switch {
	case err == nil:
	case errors.Is(err, notification.ErrSubscriptionGone):
		d.Pruned = true
		d.Error = err.Error()
	default:
		sp.RecordError(err)
		d.Error = err.Error()
		res.Error = err.Error()
		log.Warn("push failed",
			zap.String("user_id", j.sub.UserID),
			zap.Int64("subscription_id", j.sub.ID),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	pruned, err := u.settle(ctx, log, d)
	if d.Pruned {
		res.Pruned = pruned
		res.Success = pruned
		if err != nil {
			res.Error = fmt.Sprintf("prune subscription: %v", err)
		} else {
			log.Info("subscription pruned",
				zap.String("user_id", j.sub.UserID),
				zap.Int64("subscription_id", j.sub.ID),
				zap.Int("status", status),
			)
		}
	}
	return res
}

// settle records the attempt. When recording fails a pending prune is still
// carried out directly.
func (u *Usecase) settle(ctx context.Context, log *zap.Logger, d *notification.Delivery) (bool, error) {
	if u.ledger != nil {
		err := u.ledger.Settle(ctx, d)
		if err == nil {
			return d.Pruned, nil
		}
		log.Warn("record delivery", zap.String("user_id", d.UserID), zap.Error(err))
	}
	if !d.Pruned {
		return false, nil
	}
	if err := u.subs.DeleteByEndpoint(ctx, d.Endpoint); err != nil {
		log.Error("prune subscription", zap.String("user_id", d.UserID), zap.Error(err))
		return false, err
	}
	return true, nil
}

func countSent(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Success && !r.Pruned {
			n++
		}
	}
	return n
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
