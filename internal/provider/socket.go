package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-center/internal/domain"
	"github.com/kursadbilgin/notification-center/internal/realtime"
	"go.uber.org/zap"
)

const (
	socketMessageIDPrefix = "SOCKET"
	socketRoomRecipient   = "room:"
	socketDefaultEvent    = "notification"
	socketEventKey        = "event"
)

// SocketEmitter pushes events to connected real-time clients.
type SocketEmitter interface {
	SendToRoom(room string, event string, data any) error
	Broadcast(event string, data any) error
	SendToSession(id uuid.UUID, event string, data any) error
}

type SocketConfig struct {
	Enabled bool
}

// SocketProvider pushes notifications to rooms, sessions, or everyone.
// Delivery is fire-and-forget: success means the push was issued.
type SocketProvider struct {
	emitter SocketEmitter
	enabled bool
	ids     messageIDGenerator
	logger  *zap.Logger
}

func NewSocketProvider(cfg SocketConfig, emitter SocketEmitter, logger *zap.Logger) (*SocketProvider, error) {
	if emitter == nil {
		return nil, fmt.Errorf("socket emitter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SocketProvider{
		emitter: emitter,
		enabled: cfg.Enabled,
		ids:     newMessageIDGenerator(),
		logger:  logger,
	}, nil
}

func (p *SocketProvider) Type() string { return TypeSocket }

func (p *SocketProvider) Enabled() bool { return p != nil && p.enabled }

func (p *SocketProvider) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if p == nil || p.emitter == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	event := socketDefaultEvent
	if name, ok := req.MetadataString(socketEventKey); ok {
		event = name
	}
	payload := socketPayload(req)
	recipient := strings.TrimSpace(req.Recipient)

	var err error
	switch {
	case strings.HasPrefix(recipient, socketRoomRecipient):
		room := realtime.RoomPrefix + strings.TrimPrefix(recipient, socketRoomRecipient)
		p.logger.Debug("sending to room", zap.String("room", room))
		err = p.emitter.SendToRoom(room, event, payload)
	case strings.EqualFold(recipient, "broadcast") || strings.EqualFold(recipient, "all"):
		p.logger.Debug("broadcasting to all clients")
		err = p.emitter.Broadcast(event, payload)
	default:
		sessionID, parseErr := uuid.Parse(recipient)
		if parseErr != nil {
			return nil, &ProviderError{
				Kind:    domain.ErrValidation,
				Message: fmt.Sprintf("invalid socket session id %q", recipient),
				Cause:   parseErr,
			}
		}
		err = p.emitter.SendToSession(sessionID, event, payload)
	}
	if err != nil {
		return nil, transportError("socket push failed", 0, err)
	}

	return domain.SuccessResponse(p.ids.next(socketMessageIDPrefix)), nil
}

// socketPayload sends the whole request when metadata is present so clients
// can read it; otherwise only the message text.
func socketPayload(req domain.NotificationRequest) any {
	if req.HasMetadata() {
		return req
	}
	return req.Message
}
