package provider

import (
	"context"

	"github.com/kursadbilgin/notification-center/internal/domain"
)

const (
	TypeWhatsApp = "WHATSAPP"
	TypeSMS      = "SMS"
	TypeEmail    = "EMAIL"
	TypeSocket   = "SOCKET"
)

// Provider delivers a notification over one channel.
//
// Send returns either a response (success or a backend-reported failure) or a
// classified *ProviderError. Callers must not assume the two are exclusive of
// a nil response; the dispatcher normalizes both.
type Provider interface {
	Type() string
	Enabled() bool
	Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error)
}
