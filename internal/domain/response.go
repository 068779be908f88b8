package domain

import "time"

const (
	StatusSent   = "SENT"
	StatusFailed = "FAILED"
)

// NotificationResponse is the normalized outcome of a single dispatch.
type NotificationResponse struct {
	Success          bool           `json:"success"`
	MessageID        string         `json:"messageId,omitempty"`
	Status           string         `json:"status"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	ProviderResponse map[string]any `json:"providerResponse,omitempty"`
}

func SuccessResponse(messageID string) *NotificationResponse {
	return &NotificationResponse{
		Success:   true,
		MessageID: messageID,
		Status:    StatusSent,
		Timestamp: time.Now().UTC(),
	}
}

func FailureResponse(errorMessage string) *NotificationResponse {
	return &NotificationResponse{
		Success:      false,
		Status:       StatusFailed,
		ErrorMessage: errorMessage,
		Timestamp:    time.Now().UTC(),
	}
}

func (r *NotificationResponse) WithProviderResponse(raw map[string]any) *NotificationResponse {
	if r == nil {
		return nil
	}
	r.ProviderResponse = raw
	return r
}
