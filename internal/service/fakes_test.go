package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/notifier/internal/domain"
	"github.com/kursadbilgin/notifier/internal/provider"
	"github.com/kursadbilgin/notifier/internal/queue"
	"github.com/kursadbilgin/notifier/internal/ratelimit"
	"github.com/kursadbilgin/notifier/internal/render"
	"github.com/kursadbilgin/notifier/internal/repository"
)

type fakeNotificationRepo struct {
	createFn             func(ctx context.Context, n *domain.Notification) error
	getByIDFn            func(ctx context.Context, id string) (*domain.Notification, error)
	listFn               func(ctx context.Context, params repository.ListParams) ([]domain.Notification, error)
	claimFn              func(ctx context.Context, id string, attempt int, leaseUntil time.Time) (*domain.Notification, bool, error)
	markSentFn           func(ctx context.Context, id string, attempt int, providerResponse []byte, sentAt time.Time) error
	recordRetryFn        func(ctx context.Context, id string, attempt int, errorMessage string, leaseUntil time.Time) error
	failWithDeadLetterFn func(ctx context.Context, id string, attempt int, errorMessage string, entry *domain.DeadLetterEntry) error
	getStaleFn           func(ctx context.Context, params repository.StaleParams) ([]domain.Notification, error)
	extendLeaseFn        func(ctx context.Context, id string, status domain.Status, attemptCount int, now, leaseUntil time.Time) (bool, error)
}

var _ repository.NotificationRepository = (*fakeNotificationRepo)(nil)

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) Claim(ctx context.Context, id string, attempt int, leaseUntil time.Time) (*domain.Notification, bool, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, id, attempt, leaseUntil)
	}
	return nil, false, domain.ErrNotFound
}

func (f *fakeNotificationRepo) MarkSent(ctx context.Context, id string, attempt int, providerResponse []byte, sentAt time.Time) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, attempt, providerResponse, sentAt)
	}
	return nil
}

func (f *fakeNotificationRepo) RecordRetry(ctx context.Context, id string, attempt int, errorMessage string, leaseUntil time.Time) error {
	if f.recordRetryFn != nil {
		return f.recordRetryFn(ctx, id, attempt, errorMessage, leaseUntil)
	}
	return nil
}

func (f *fakeNotificationRepo) FailWithDeadLetter(ctx context.Context, id string, attempt int, errorMessage string, entry *domain.DeadLetterEntry) error {
	if f.failWithDeadLetterFn != nil {
		return f.failWithDeadLetterFn(ctx, id, attempt, errorMessage, entry)
	}
	return nil
}

func (f *fakeNotificationRepo) GetStale(ctx context.Context, params repository.StaleParams) ([]domain.Notification, error) {
	if f.getStaleFn != nil {
		return f.getStaleFn(ctx, params)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ExtendLease(ctx context.Context, id string, status domain.Status, attemptCount int, now, leaseUntil time.Time) (bool, error) {
	if f.extendLeaseFn != nil {
		return f.extendLeaseFn(ctx, id, status, attemptCount, now, leaseUntil)
	}
	return true, nil
}

// memNotificationRepo keeps records in memory with the same compare-and-set
// guards as the gorm repository.
type memNotificationRepo struct {
	mu            sync.Mutex
	notifications map[string]*domain.Notification
	deadLetters   map[string]*domain.DeadLetterEntry
}

var _ repository.NotificationRepository = (*memNotificationRepo)(nil)

func newMemNotificationRepo(notifications ...*domain.Notification) *memNotificationRepo {
	repo := &memNotificationRepo{
		notifications: make(map[string]*domain.Notification),
		deadLetters:   make(map[string]*domain.DeadLetterEntry),
	}
	for _, n := range notifications {
		repo.notifications[n.ID] = n
	}
	return repo
}

func (r *memNotificationRepo) snapshot(id string) *domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return nil
	}
	cp := *n
	return &cp
}

func (r *memNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.notifications[n.ID] = &cp
	return nil
}

func (r *memNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	n := r.snapshot(id)
	if n == nil {
		return nil, domain.ErrNotFound
	}
	return n, nil
}

func (r *memNotificationRepo) List(context.Context, repository.ListParams) ([]domain.Notification, error) {
	return nil, nil
}

func (r *memNotificationRepo) Claim(_ context.Context, id string, attempt int, leaseUntil time.Time) (*domain.Notification, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	claimed := (n.Status == domain.StatusPending || n.Status == domain.StatusProcessing) && n.AttemptCount == attempt
	if claimed {
		n.Status = domain.StatusProcessing
		n.AttemptCount = attempt + 1
		n.LeaseExpiresAt = &leaseUntil
	}
	cp := *n
	return &cp, claimed, nil
}

func (r *memNotificationRepo) claimedLocked(id string, attempt int) (*domain.Notification, error) {
	n, ok := r.notifications[id]
	if !ok || n.Status != domain.StatusProcessing || n.AttemptCount != attempt+1 {
		return nil, domain.ErrConflict
	}
	return n, nil
}

func (r *memNotificationRepo) MarkSent(_ context.Context, id string, attempt int, providerResponse []byte, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.claimedLocked(id, attempt)
	if err != nil {
		return err
	}
	n.Status = domain.StatusSent
	n.ProviderResponse = providerResponse
	n.SentAt = &sentAt
	n.LeaseExpiresAt = nil
	return nil
}

func (r *memNotificationRepo) RecordRetry(_ context.Context, id string, attempt int, errorMessage string, leaseUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.claimedLocked(id, attempt)
	if err != nil {
		return err
	}
	n.ErrorMessage = &errorMessage
	n.LeaseExpiresAt = &leaseUntil
	return nil
}

func (r *memNotificationRepo) FailWithDeadLetter(_ context.Context, id string, attempt int, errorMessage string, entry *domain.DeadLetterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.claimedLocked(id, attempt)
	if err != nil {
		return err
	}
	if _, exists := r.deadLetters[id]; exists {
		return domain.ErrConflict
	}
	n.Status = domain.StatusFailed
	n.ErrorMessage = &errorMessage
	n.LeaseExpiresAt = nil
	r.deadLetters[id] = entry
	return nil
}

func (r *memNotificationRepo) GetStale(context.Context, repository.StaleParams) ([]domain.Notification, error) {
	return nil, nil
}

func (r *memNotificationRepo) ExtendLease(context.Context, string, domain.Status, int, time.Time, time.Time) (bool, error) {
	return false, nil
}

type fakeAttemptRepo struct {
	mu                    sync.Mutex
	created               []domain.NotificationAttempt
	createFn              func(ctx context.Context, a *domain.NotificationAttempt) error
	getByNotificationIDFn func(ctx context.Context, notificationID string) ([]domain.NotificationAttempt, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.NotificationAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *a)
	return nil
}

func (f *fakeAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.NotificationAttempt, error) {
	if f.getByNotificationIDFn != nil {
		return f.getByNotificationIDFn(ctx, notificationID)
	}
	return nil, nil
}

type fakeDeadLetterRepo struct {
	getByNotificationIDFn func(ctx context.Context, notificationID string) (*domain.DeadLetterEntry, error)
	listFn                func(ctx context.Context, tenantID string, limit int) ([]domain.DeadLetterEntry, error)
}

func (f *fakeDeadLetterRepo) GetByNotificationID(ctx context.Context, notificationID string) (*domain.DeadLetterEntry, error) {
	if f.getByNotificationIDFn != nil {
		return f.getByNotificationIDFn(ctx, notificationID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeadLetterRepo) List(ctx context.Context, tenantID string, limit int) ([]domain.DeadLetterEntry, error) {
	if f.listFn != nil {
		return f.listFn(ctx, tenantID, limit)
	}
	return nil, nil
}

type publishedItem struct {
	item  queue.WorkItem
	delay time.Duration
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedItem
	publishFn func(ctx context.Context, item queue.WorkItem, delay time.Duration) error
	closeFn   func() error
}

func (f *fakePublisher) Publish(ctx context.Context, item queue.WorkItem, delay time.Duration) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, item, delay); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedItem{item: item, delay: delay})
	return nil
}

func (f *fakePublisher) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

func (f *fakePublisher) items() []publishedItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedItem(nil), f.published...)
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, channel domain.Channel, handler queue.MessageHandler) error
	closeFn   func() error
}

func (f *fakeConsumer) Consume(ctx context.Context, channel domain.Channel, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, channel, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, key ratelimit.Key) (bool, error)
	waitFn  func(ctx context.Context, key ratelimit.Key) error
}

var _ ratelimit.RateLimiter = (*fakeRateLimiter)(nil)

func (f *fakeRateLimiter) Allow(ctx context.Context, key ratelimit.Key) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key ratelimit.Key) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

type fakeProvider struct {
	name   string
	sendFn func(ctx context.Context, msg provider.Message) (*provider.Result, error)
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeProvider) Send(ctx context.Context, msg provider.Message) (*provider.Result, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.Result{Provider: f.Name(), Status: "accepted"}, nil
}

type fakeTemplateStore struct {
	getActiveFn func(ctx context.Context, tenantID, nameOrID string) (*domain.Template, error)
}

func (f *fakeTemplateStore) GetActive(ctx context.Context, tenantID, nameOrID string) (*domain.Template, error) {
	if f.getActiveFn != nil {
		return f.getActiveFn(ctx, tenantID, nameOrID)
	}
	return nil, domain.ErrNotFound
}

var _ render.TemplateStore = (*fakeTemplateStore)(nil)

type fakePreviewer struct {
	previewFn func(ctx context.Context, tenantID, ref string, vars map[string]any) (render.Rendered, error)
}

func (f *fakePreviewer) Preview(ctx context.Context, tenantID, ref string, vars map[string]any) (render.Rendered, error) {
	if f.previewFn != nil {
		return f.previewFn(ctx, tenantID, ref, vars)
	}
	return render.Rendered{}, nil
}

func strPtr(s string) *string { return &s }
