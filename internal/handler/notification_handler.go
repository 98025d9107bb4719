package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/notifier/internal/domain"
	"github.com/kursadbilgin/notifier/internal/observability"
	"github.com/kursadbilgin/notifier/internal/render"
	"github.com/kursadbilgin/notifier/internal/service"
)

// HeaderTenantID carries the caller's tenant. It is set by the upstream
// gateway after authentication.
const HeaderTenantID = "X-Tenant-ID"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type NotificationService interface {
	GetByID(ctx context.Context, tenantID, id string) (*service.NotificationDetail, error)
	List(ctx context.Context, tenantID string, filter service.ListFilter) ([]domain.Notification, error)
	ListDeadLetters(ctx context.Context, tenantID string, limit int) ([]domain.DeadLetterEntry, error)
	PreviewTemplate(ctx context.Context, tenantID, ref string, vars map[string]any) (render.Rendered, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Get("/dead-letters", h.ListDeadLetters)
	v1.Post("/templates/:ref/preview", h.PreviewTemplate)

	return nil
}

type notificationResponse struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenantId"`
	Channel          string          `json:"channel"`
	Recipient        string          `json:"recipient"`
	TemplateRef      *string         `json:"templateRef,omitempty"`
	Status           string          `json:"status"`
	AttemptCount     int             `json:"attemptCount"`
	ErrorMessage     *string         `json:"errorMessage,omitempty"`
	ProviderResponse json.RawMessage `json:"providerResponse,omitempty"`
	LeaseExpiresAt   *time.Time      `json:"leaseExpiresAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	SentAt           *time.Time      `json:"sentAt,omitempty"`
}

type attemptResponse struct {
	AttemptNumber    int             `json:"attemptNumber"`
	Provider         string          `json:"provider,omitempty"`
	Outcome          string          `json:"outcome"`
	Error            *string         `json:"error,omitempty"`
	ProviderResponse json.RawMessage `json:"providerResponse,omitempty"`
	DurationMillis   int64           `json:"durationMillis"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type deadLetterResponse struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notificationId"`
	Channel        string    `json:"channel"`
	Reason         string    `json:"reason"`
	FailureKind    string    `json:"failureKind"`
	RetryCount     int       `json:"retryCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

type notificationDetailResponse struct {
	notificationResponse
	Attempts   []attemptResponse   `json:"attempts"`
	DeadLetter *deadLetterResponse `json:"deadLetter,omitempty"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listDeadLettersResponse struct {
	Data []deadLetterResponse `json:"data"`
	Meta listMeta             `json:"meta"`
}

type listMeta struct {
	Limit int `json:"limit"`
	Count int `json:"count"`
}

type previewRequest struct {
	Variables map[string]any `json:"variables"`
}

type previewResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	detail, err := h.service.GetByID(requestContext(c), tenantID(c), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	resp := notificationDetailResponse{
		notificationResponse: toNotificationResponse(detail.Notification),
		Attempts:             make([]attemptResponse, 0, len(detail.Attempts)),
	}
	for _, a := range detail.Attempts {
		resp.Attempts = append(resp.Attempts, attemptResponse{
			AttemptNumber:    a.AttemptNumber,
			Provider:         a.Provider,
			Outcome:          a.Outcome.String(),
			Error:            a.Error,
			ProviderResponse: rawJSON(a.ProviderResponse),
			DurationMillis:   a.DurationMillis,
			CreatedAt:        a.CreatedAt,
		})
	}
	if detail.DeadLetter != nil {
		entry := toDeadLetterResponse(detail.DeadLetter)
		resp.DeadLetter = &entry
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, err := h.service.List(requestContext(c), tenantID(c), service.ListFilter{
		Status:  c.Query("status"),
		Channel: c.Query("channel"),
		Limit:   limit,
	})
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		data = append(data, toNotificationResponse(&notifications[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: data,
		Meta: listMeta{Limit: limit, Count: len(data)},
	})
}

func (h *NotificationHandler) ListDeadLetters(c *fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return toHTTPError(err)
	}

	entries, err := h.service.ListDeadLetters(requestContext(c), tenantID(c), limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deadLetterResponse, 0, len(entries))
	for i := range entries {
		data = append(data, toDeadLetterResponse(&entries[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeadLettersResponse{
		Data: data,
		Meta: listMeta{Limit: limit, Count: len(data)},
	})
}

func (h *NotificationHandler) PreviewTemplate(c *fiber.Ctx) error {
	var req previewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	rendered, err := h.service.PreviewTemplate(requestContext(c), tenantID(c), c.Params("ref"), req.Variables)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(previewResponse{
		Subject: rendered.Subject,
		Body:    rendered.Body,
	})
}

func tenantID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(HeaderTenantID))
}

func requestContext(c *fiber.Ctx) context.Context {
	return observability.WithTenant(c.UserContext(), tenantID(c))
}

func parseLimit(c *fiber.Ctx) (int, error) {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit)
	}
	return limit, nil
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:               n.ID,
		TenantID:         n.TenantID,
		Channel:          n.Channel.String(),
		Recipient:        n.Recipient,
		TemplateRef:      n.TemplateRef,
		Status:           n.Status.String(),
		AttemptCount:     n.AttemptCount,
		ErrorMessage:     n.ErrorMessage,
		ProviderResponse: rawJSON(n.ProviderResponse),
		LeaseExpiresAt:   n.LeaseExpiresAt,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
		SentAt:           n.SentAt,
	}
}

func toDeadLetterResponse(e *domain.DeadLetterEntry) deadLetterResponse {
	return deadLetterResponse{
		ID:             e.ID,
		NotificationID: e.NotificationID,
		Channel:        e.Channel.String(),
		Reason:         e.Reason,
		FailureKind:    e.FailureKind.String(),
		RetryCount:     e.RetryCount,
		CreatedAt:      e.CreatedAt,
	}
}

// rawJSON drops stored responses that are not valid JSON instead of failing
// the whole response encoding.
func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
