package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-center/internal/domain"
	"github.com/kursadbilgin/notification-center/internal/observability"
	"github.com/kursadbilgin/notification-center/internal/provider"
	"github.com/kursadbilgin/notification-center/internal/ratelimit"
	"github.com/kursadbilgin/notification-center/internal/workerpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultBulkParallelism = 4

type ProviderResolver interface {
	Resolve(notificationType string) (provider.Provider, error)
	Types() []string
}

type TaskSubmitter interface {
	Submit(task workerpool.Task) error
}

// Dispatcher routes requests to the provider registered for their type.
// Every entry point yields exactly one response per request; provider errors,
// missing providers and panics all become failure responses.
type Dispatcher struct {
	providers       ProviderResolver
	pool            TaskSubmitter
	rateLimiter     ratelimit.RateLimiter
	logger          *zap.Logger
	metrics         *observability.Metrics
	bulkParallelism int
	now             func() time.Time
}

func NewDispatcher(providers ProviderResolver, pool TaskSubmitter, logger *zap.Logger) (*Dispatcher, error) {
	if providers == nil {
		return nil, fmt.Errorf("provider resolver is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("task submitter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		providers:       providers,
		pool:            pool,
		logger:          logger,
		bulkParallelism: defaultBulkParallelism,
		now:             time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// SetRateLimiter paces provider calls per channel. A nil limiter disables pacing.
func (d *Dispatcher) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if d == nil {
		return
	}
	d.rateLimiter = limiter
}

// SetBulkParallelism bounds how many items of one bulk request run at once.
func (d *Dispatcher) SetBulkParallelism(n int) {
	if d == nil {
		return
	}
	if n < 1 {
		n = 1
	}
	d.bulkParallelism = n
}

func (d *Dispatcher) Providers() []string {
	return d.providers.Types()
}

// Send dispatches req on the calling goroutine.
func (d *Dispatcher) Send(ctx context.Context, req domain.NotificationRequest) (resp domain.NotificationResponse) {
	if ctx == nil {
		ctx = context.Background()
	}

	channel := req.NormalizedType()
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("type", channel),
		zap.String("recipient", req.Recipient),
	)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("provider panicked: %v", r)
			logger.Error("notification dispatch panicked", zap.Any("panic", r))
			resp = d.failure(channel, err)
		}
	}()

	p, err := d.providers.Resolve(req.Type)
	if err != nil {
		logger.Warn("no provider for notification type", zap.Error(err))
		return d.failure(channel, err)
	}

	if d.rateLimiter != nil {
		if err := d.rateLimiter.Wait(ctx, channel); err != nil {
			logger.Warn("rate limiter wait failed", zap.Error(err))
			return d.failure(channel, fmt.Errorf("rate limiter wait failed: %w", err))
		}
	}

	out, err := d.invoke(ctx, channel, p, req)
	if err != nil {
		logger.Error("notification send failed", zap.Error(err))
		return d.failure(channel, err)
	}
	if out == nil {
		err := fmt.Errorf("%w: provider returned no response", domain.ErrInvalidBackendResponse)
		logger.Error("notification send failed", zap.Error(err))
		return d.failure(channel, err)
	}

	resp = d.normalize(*out)
	if !resp.Success {
		logger.Warn("notification rejected by backend", zap.String("error", resp.ErrorMessage))
		d.metrics.IncNotificationFailed(channel, "")
		return resp
	}

	logger.Info("notification sent", zap.String("messageId", resp.MessageID))
	d.metrics.IncNotificationSent(channel)
	return resp
}

// SendAsync runs Send on the worker pool. The returned channel always
// receives exactly one response and is then closed. Cancelling ctx after the
// call does not abort the queued send.
func (d *Dispatcher) SendAsync(ctx context.Context, req domain.NotificationRequest) <-chan domain.NotificationResponse {
	taskCtx := detach(ctx)
	out := make(chan domain.NotificationResponse, 1)

	err := d.pool.Submit(func() {
		defer close(out)
		out <- d.Send(taskCtx, req)
	})
	if err != nil {
		d.rejected(ctx, err)
		out <- d.failure(req.NormalizedType(), err)
		close(out)
	}

	return out
}

// SendBulk dispatches every request on the worker pool. The result has one
// response per request in input order; failures never affect siblings.
func (d *Dispatcher) SendBulk(ctx context.Context, reqs []domain.NotificationRequest) <-chan []domain.NotificationResponse {
	out := make(chan []domain.NotificationResponse, 1)
	if len(reqs) == 0 {
		out <- []domain.NotificationResponse{}
		close(out)
		return out
	}

	taskCtx := detach(ctx)
	items := make([]domain.NotificationRequest, len(reqs))
	copy(items, reqs)

	err := d.pool.Submit(func() {
		defer close(out)
		out <- d.sendAll(taskCtx, items)
	})
	if err != nil {
		d.rejected(ctx, err)
		results := make([]domain.NotificationResponse, len(items))
		for i, req := range items {
			results[i] = d.failure(req.NormalizedType(), err)
		}
		out <- results
		close(out)
	}

	return out
}

func (d *Dispatcher) sendAll(ctx context.Context, reqs []domain.NotificationRequest) []domain.NotificationResponse {
	results := make([]domain.NotificationResponse, len(reqs))

	var g errgroup.Group
	g.SetLimit(d.bulkParallelism)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = d.Send(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) invoke(ctx context.Context, channel string, p provider.Provider, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	d.metrics.IncDispatchInFlight(channel)
	defer d.metrics.DecDispatchInFlight(channel)

	start := d.now()
	defer func() {
		d.metrics.ObserveNotificationSendDuration(channel, d.now().Sub(start))
	}()

	return p.Send(ctx, req)
}

func (d *Dispatcher) failure(channel string, err error) domain.NotificationResponse {
	d.metrics.IncNotificationFailed(channel, provider.ReasonLabel(err))
	resp := domain.FailureResponse(err.Error())
	resp.Timestamp = d.now().UTC()
	return *resp
}

func (d *Dispatcher) normalize(resp domain.NotificationResponse) domain.NotificationResponse {
	if resp.Success {
		resp.Status = domain.StatusSent
		resp.ErrorMessage = ""
	} else {
		resp.Status = domain.StatusFailed
		resp.MessageID = ""
		if resp.ErrorMessage == "" {
			resp.ErrorMessage = domain.ErrInvalidBackendResponse.Error()
		}
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = d.now().UTC()
	}
	return resp
}

func (d *Dispatcher) rejected(ctx context.Context, err error) {
	if errors.Is(err, domain.ErrPoolSaturated) {
		d.metrics.IncPoolRejected()
	}
	observability.WithContextLogger(d.logger, ctx).Warn("dispatch pool rejected task", zap.Error(err))
}

func detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
