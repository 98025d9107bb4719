package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/notifier/internal/domain"
	"github.com/kursadbilgin/notifier/internal/observability"
	"github.com/kursadbilgin/notifier/internal/provider"
	"github.com/kursadbilgin/notifier/internal/queue"
	"github.com/kursadbilgin/notifier/internal/ratelimit"
	"github.com/kursadbilgin/notifier/internal/render"
	"github.com/kursadbilgin/notifier/internal/repository"
	"github.com/kursadbilgin/notifier/internal/retry"
)

const (
	minWorkerConcurrency   = 1
	defaultLeaseDuration   = 5 * time.Minute
	defaultProviderTimeout = 10 * time.Second
)

// Discard reasons reported when a unit of work is acknowledged without a
// provider call.
const (
	discardNotFound     = "not_found"
	discardAlreadySent  = "already_sent"
	discardTerminal     = "terminal"
	discardStaleAttempt = "stale_attempt"
	discardLostClaim    = "lost_claim"
)

// ContentRenderer resolves a notification's content into its final text.
type ContentRenderer interface {
	Render(ctx context.Context, c render.Content) (render.Rendered, error)
}

// ProviderLookup resolves the adapter serving a channel.
type ProviderLookup interface {
	Lookup(channel domain.Channel) (provider.Provider, error)
}

type WorkerDeps struct {
	Notifications repository.NotificationRepository
	Attempts      repository.AttemptRepository
	Consumer      queue.Consumer
	Publisher     queue.Publisher
	Providers     ProviderLookup
	Renderer      ContentRenderer
	RateLimiter   ratelimit.RateLimiter
	DeadLetters   *DeadLetterSink
}

type WorkerConfig struct {
	Concurrency     int
	LeaseDuration   time.Duration
	ProviderTimeout time.Duration
	Policy          retry.Policy
}

// WorkerService executes units of work taken from the channel queues.
type WorkerService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	consumer      queue.Consumer
	publisher     queue.Publisher
	providers     ProviderLookup
	renderer      ContentRenderer
	rateLimiter   ratelimit.RateLimiter
	deadLetters   *DeadLetterSink
	policy        retry.Policy

	logger          *zap.Logger
	metrics         *observability.Metrics
	concurrency     int
	leaseDuration   time.Duration
	providerTimeout time.Duration
	now             func() time.Time
}

func NewWorkerService(deps WorkerDeps, cfg WorkerConfig, logger *zap.Logger) (*WorkerService, error) {
	switch {
	case deps.Notifications == nil:
		return nil, fmt.Errorf("notification repository is required")
	case deps.Attempts == nil:
		return nil, fmt.Errorf("attempt repository is required")
	case deps.Consumer == nil:
		return nil, fmt.Errorf("consumer is required")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("provider registry is required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("renderer is required")
	case deps.RateLimiter == nil:
		return nil, fmt.Errorf("rate limiter is required")
	case deps.DeadLetters == nil:
		return nil, fmt.Errorf("dead letter sink is required")
	}

	if cfg.Concurrency < minWorkerConcurrency {
		cfg.Concurrency = minWorkerConcurrency
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		notifications:   deps.Notifications,
		attempts:        deps.Attempts,
		consumer:        deps.Consumer,
		publisher:       deps.Publisher,
		providers:       deps.Providers,
		renderer:        deps.Renderer,
		rateLimiter:     deps.RateLimiter,
		deadLetters:     deps.DeadLetters,
		policy:          cfg.Policy,
		logger:          logger,
		concurrency:     cfg.Concurrency,
		leaseDuration:   cfg.LeaseDuration,
		providerTimeout: cfg.ProviderTimeout,
		now:             time.Now,
	}, nil
}

// Start consumes channel queues and processes units of work until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Every channel queue gets at least one consumer.
	channels := domain.Channels()
	workers := max(s.concurrency, len(channels))

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		channel := channels[i%len(channels)]
		workerID := i + 1

		g.Go(func() error {
			logger := s.logger.With(
				zap.Int("workerId", workerID),
				zap.String("queue", queue.QueueName(channel)),
			)
			logger.Info("worker started")

			if err := s.consumer.Consume(groupCtx, channel, s.processMessage); err != nil {
				logger.Error("worker stopped with error", zap.Error(err))
				return err
			}

			logger.Info("worker stopped")
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
	s.deadLetters.SetMetrics(metrics)
}

// processMessage runs one attempt. A nil return acknowledges the unit of
// work; errors are infrastructure failures left to redelivery and the reaper.
func (s *WorkerService) processMessage(ctx context.Context, item queue.WorkItem) error {
	leaseUntil := s.now().UTC().Add(s.leaseDuration)
	n, claimed, err := s.notifications.Claim(ctx, item.NotificationID, item.Attempt, leaseUntil)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("notification not found during claim, skipping",
				zap.String("notificationId", item.NotificationID),
			)
			s.metrics.IncDiscarded(item.Channel.String(), discardNotFound)
			return nil
		}
		return fmt.Errorf("failed to claim notification: %w", err)
	}

	ctx = observability.WithNotification(ctx, n.ID, n.TenantID)
	logger := observability.WithContextLogger(s.logger, ctx)

	if !claimed {
		reason := discardReason(n)
		logger.Info("duplicate unit of work discarded",
			zap.Int("attempt", item.Attempt),
			zap.Int("attemptCount", n.AttemptCount),
			zap.String("status", n.Status.String()),
			zap.String("reason", reason),
		)
		s.metrics.IncDiscarded(n.Channel.String(), reason)
		return nil
	}

	if item.Channel != n.Channel {
		logger.Warn("unit of work channel differs from record, using record",
			zap.String("queuedChannel", item.Channel.String()),
			zap.String("channel", n.Channel.String()),
		)
	}

	channelName := n.Channel.String()
	s.metrics.IncWorkerInFlight(channelName)
	defer s.metrics.DecWorkerInFlight(channelName)

	rendered, err := s.renderer.Render(ctx, render.ContentOf(n))
	if err != nil {
		if render.IsRenderError(err) {
			return s.deadLetter(ctx, logger, n, item, domain.FailureValidation, err)
		}
		return s.infrastructureFailure(ctx, logger, n, item, fmt.Errorf("failed to render notification: %w", err))
	}

	p, err := s.providers.Lookup(n.Channel)
	if err != nil {
		return s.deadLetter(ctx, logger, n, item, domain.FailureValidation, err)
	}

	if err := s.rateLimiter.Wait(ctx, ratelimit.Key{TenantID: n.TenantID, Channel: n.Channel}); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	result, elapsed, sendErr := s.send(ctx, p, provider.Message{
		Channel:   n.Channel,
		Recipient: n.Recipient,
		Subject:   rendered.Subject,
		Body:      rendered.Body,
	})
	s.metrics.ObserveProviderCall(channelName, p.Name(), callOutcome(sendErr), elapsed)
	s.recordAttempt(ctx, logger, n.ID, item.Attempt+1, p.Name(), result, sendErr, elapsed)

	if sendErr == nil {
		return s.markSent(ctx, logger, n, item, result)
	}

	if !provider.IsTransient(sendErr) {
		return s.deadLetter(ctx, logger, n, item, failureKindOf(provider.Classify(sendErr)), sendErr)
	}

	decision := s.policy.Decide(item.Attempt)
	if !decision.Retry {
		logger.Info("retry budget exhausted",
			zap.Int("attempt", item.Attempt),
			zap.Int("maxRetries", s.policy.MaxRetries),
		)
		return s.deadLetter(ctx, logger, n, item, domain.FailureTransient, sendErr)
	}

	return s.scheduleRetry(ctx, logger, n, item, decision.After, sendErr)
}

func (s *WorkerService) send(ctx context.Context, p provider.Provider, msg provider.Message) (*provider.Result, time.Duration, error) {
	sendCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := s.now()
	result, err := p.Send(sendCtx, msg)
	elapsed := s.now().Sub(start)

	if err != nil && provider.IsTimeout(err) {
		var providerErr *provider.Error
		if !errors.As(err, &providerErr) {
			err = &provider.Error{Kind: provider.KindTransient, Message: "provider call timed out", Cause: err}
		}
	}
	return result, elapsed, err
}

func (s *WorkerService) markSent(
	ctx context.Context,
	logger *zap.Logger,
	n *domain.Notification,
	item queue.WorkItem,
	result *provider.Result,
) error {
	if err := s.notifications.MarkSent(ctx, n.ID, item.Attempt, result.JSON(), s.now().UTC()); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return s.lostClaim(logger, n, item)
		}
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	providerName := ""
	if result != nil {
		providerName = result.Provider
	}
	logger.Info("notification sent",
		zap.String("channel", n.Channel.String()),
		zap.String("provider", providerName),
		zap.Int("attempt", item.Attempt+1),
	)
	s.metrics.IncNotificationSent(n.Channel.String())
	return nil
}

func (s *WorkerService) scheduleRetry(
	ctx context.Context,
	logger *zap.Logger,
	n *domain.Notification,
	item queue.WorkItem,
	delay time.Duration,
	cause error,
) error {
	leaseUntil := s.now().UTC().Add(delay + s.leaseDuration)
	if err := s.notifications.RecordRetry(ctx, n.ID, item.Attempt, cause.Error(), leaseUntil); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return s.lostClaim(logger, n, item)
		}
		return fmt.Errorf("failed to record retry: %w", err)
	}

	next := item.Next()
	next.Channel = n.Channel
	if err := s.publisher.Publish(ctx, next, delay); err != nil {
		// The stored lease still covers the retry; the reaper republishes it.
		logger.Error("failed to publish retry, leaving it to the reaper",
			zap.Int("attempt", next.Attempt),
			zap.Error(err),
		)
		return nil
	}

	logger.Info("retry scheduled",
		zap.String("channel", n.Channel.String()),
		zap.Int("attempt", next.Attempt),
		zap.Duration("delay", delay),
		zap.String("error", cause.Error()),
	)
	s.metrics.IncRetryScheduled(n.Channel.String())
	return nil
}

// infrastructureFailure leaves a failed attempt to redelivery and the
// reaper while the retry budget lasts. The claim already counted the
// attempt, so an exhausted budget ends in the dead letter store.
func (s *WorkerService) infrastructureFailure(
	ctx context.Context,
	logger *zap.Logger,
	n *domain.Notification,
	item queue.WorkItem,
	cause error,
) error {
	if s.policy.Decide(item.Attempt).Retry {
		return cause
	}
	logger.Info("retry budget exhausted on infrastructure failure",
		zap.Int("attempt", item.Attempt),
		zap.Int("maxRetries", s.policy.MaxRetries),
		zap.Error(cause),
	)
	return s.deadLetter(ctx, logger, n, item, domain.FailureTransient, cause)
}

func (s *WorkerService) deadLetter(
	ctx context.Context,
	logger *zap.Logger,
	n *domain.Notification,
	item queue.WorkItem,
	kind domain.FailureKind,
	cause error,
) error {
	if _, err := s.deadLetters.Record(ctx, n, item.Attempt, kind, cause); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return s.lostClaim(logger, n, item)
		}
		return err
	}
	return nil
}

func (s *WorkerService) lostClaim(logger *zap.Logger, n *domain.Notification, item queue.WorkItem) error {
	logger.Warn("claim lost before outcome could be recorded",
		zap.Int("attempt", item.Attempt),
	)
	s.metrics.IncDiscarded(n.Channel.String(), discardLostClaim)
	return nil
}

// recordAttempt writes the audit row for a provider call. Failures are only
// logged so a bookkeeping error never triggers a second send.
func (s *WorkerService) recordAttempt(
	ctx context.Context,
	logger *zap.Logger,
	notificationID string,
	attemptNumber int,
	providerName string,
	result *provider.Result,
	sendErr error,
	elapsed time.Duration,
) {
	attempt := &domain.NotificationAttempt{
		ID:               uuid.NewString(),
		NotificationID:   notificationID,
		AttemptNumber:    attemptNumber,
		Provider:         providerName,
		Outcome:          domain.OutcomeSent,
		ProviderResponse: result.JSON(),
		DurationMillis:   elapsed.Milliseconds(),
		CreatedAt:        s.now().UTC(),
	}

	if sendErr != nil {
		value := sendErr.Error()
		attempt.Error = &value
		attempt.Outcome = domain.AttemptOutcome(provider.Classify(sendErr))

		var providerErr *provider.Error
		if attempt.ProviderResponse == nil && errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 {
			attempt.ProviderResponse = (&provider.Result{
				Status:     "error",
				StatusCode: providerErr.StatusCode,
				Detail:     providerErr.Message,
			}).JSON()
		}
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		logger.Error("failed to record attempt",
			zap.Int("attemptNumber", attemptNumber),
			zap.Error(err),
		)
	}
}

func callOutcome(err error) string {
	if err == nil {
		return domain.OutcomeSent.String()
	}
	return provider.Classify(err).String()
}

func discardReason(n *domain.Notification) string {
	switch {
	case n.Status.IsHandled():
		return discardAlreadySent
	case n.Status.IsTerminal():
		return discardTerminal
	default:
		return discardStaleAttempt
	}
}
