package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-center/internal/domain"
)

const healthMessage = "Notification Center is running"

type NotificationService interface {
	Send(ctx context.Context, req domain.NotificationRequest) domain.NotificationResponse
	SendAsync(ctx context.Context, req domain.NotificationRequest) <-chan domain.NotificationResponse
	SendBulk(ctx context.Context, reqs []domain.NotificationRequest) <-chan []domain.NotificationResponse
	Providers() []string
}

type NotificationHandler struct {
	service NotificationService
	now     func() time.Time
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service, now: time.Now}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/api/v1")
	v1.Post("/send", h.Send)
	v1.Post("/send/async", h.SendAsync)
	v1.Post("/send/bulk", h.SendBulk)
	v1.Get("/health", h.Health)

	return nil
}

// Send returns 200 for every dispatched request; delivery failures are
// reported in the body.
func (h *NotificationHandler) Send(c *fiber.Ctx) error {
	var req domain.NotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req, err := normalizeRequest(req)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(h.service.Send(c.UserContext(), req))
}

func (h *NotificationHandler) SendAsync(c *fiber.Ctx) error {
	var req domain.NotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req, err := normalizeRequest(req)
	if err != nil {
		return toHTTPError(err)
	}

	resp := <-h.service.SendAsync(c.UserContext(), req)
	return c.Status(fiber.StatusOK).JSON(resp)
}

// SendBulk answers with one response per input item in input order. Items
// that fail validation are answered in place and never reach the dispatcher.
func (h *NotificationHandler) SendBulk(c *fiber.Ctx) error {
	var reqs []domain.NotificationRequest
	if err := c.BodyParser(&reqs); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body, expected a JSON array")
	}

	results := make([]domain.NotificationResponse, len(reqs))
	valid := make([]domain.NotificationRequest, 0, len(reqs))
	positions := make([]int, 0, len(reqs))
	for i, item := range reqs {
		normalized, err := normalizeRequest(item)
		if err != nil {
			results[i] = h.rejected(err)
			continue
		}
		valid = append(valid, normalized)
		positions = append(positions, i)
	}

	if len(valid) > 0 {
		dispatched := <-h.service.SendBulk(c.UserContext(), valid)
		for j, pos := range positions {
			if j < len(dispatched) {
				results[pos] = dispatched[j]
				continue
			}
			results[pos] = h.rejected(fmt.Errorf("%w: missing bulk result", domain.ErrInvalidBackendResponse))
		}
	}

	return c.Status(fiber.StatusOK).JSON(results)
}

func (h *NotificationHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).SendString(healthMessage)
}

func (h *NotificationHandler) rejected(err error) domain.NotificationResponse {
	resp := domain.FailureResponse(err.Error())
	resp.Timestamp = h.now().UTC()
	return *resp
}

func normalizeRequest(req domain.NotificationRequest) (domain.NotificationRequest, error) {
	priority, err := domain.ParsePriorityFromString(string(req.Priority))
	if err != nil {
		return domain.NotificationRequest{}, err
	}
	req.Priority = priority
	req.Type = strings.TrimSpace(req.Type)
	req.Recipient = strings.TrimSpace(req.Recipient)

	if err := req.Validate(); err != nil {
		return domain.NotificationRequest{}, err
	}
	return req, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}
