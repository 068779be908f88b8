package domain

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Priority is an advisory urgency hint. No channel changes behavior on it.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriorityFromString parses a priority case-insensitively. Empty input means NORMAL.
func ParsePriorityFromString(s string) (Priority, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return PriorityNormal, nil
	}

	p := Priority(strings.ToUpper(trimmed))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return p, nil
}

// MediaAttachment references a remote or local file sent along with a notification.
type MediaAttachment struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Metadata holds free-form per-request options in insertion order.
type Metadata = orderedmap.OrderedMap[string, any]

// TemplateParameters holds template substitutions in insertion order.
type TemplateParameters = orderedmap.OrderedMap[string, string]

func NewMetadata() *Metadata { return orderedmap.New[string, any]() }

func NewTemplateParameters() *TemplateParameters { return orderedmap.New[string, string]() }

// NotificationRequest is a channel-agnostic send request. It is treated as
// immutable once it enters the dispatcher.
type NotificationRequest struct {
	Type               string              `json:"type"`
	Recipient          string              `json:"recipient"`
	Subject            string              `json:"subject,omitempty"`
	Message            string              `json:"message,omitempty"`
	Metadata           *Metadata           `json:"metadata,omitempty"`
	TemplateID         string              `json:"templateId,omitempty"`
	TemplateParameters *TemplateParameters `json:"templateParameters,omitempty"`
	Media              *MediaAttachment    `json:"media,omitempty"`
	Priority           Priority            `json:"priority,omitempty"`
}

// NormalizedType returns the registry key for the request type.
func (r NotificationRequest) NormalizedType() string {
	return strings.ToUpper(strings.TrimSpace(r.Type))
}

func (r NotificationRequest) Validate() error {
	if strings.TrimSpace(r.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrValidation)
	}
	if strings.TrimSpace(r.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.TrimSpace(r.Message) == "" && strings.TrimSpace(r.TemplateID) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if r.Priority != "" && !r.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, r.Priority)
	}
	if r.Media != nil && strings.TrimSpace(r.Media.URL) == "" {
		return fmt.Errorf("%w: media url is required", ErrValidation)
	}
	return nil
}

func (r NotificationRequest) HasMetadata() bool {
	return r.Metadata != nil && r.Metadata.Len() > 0
}

func (r NotificationRequest) MetadataValue(key string) (any, bool) {
	if r.Metadata == nil {
		return nil, false
	}
	return r.Metadata.Get(key)
}

// MetadataString returns the metadata value for key rendered as a string.
// Nil values are reported as missing.
func (r NotificationRequest) MetadataString(key string) (string, bool) {
	value, ok := r.MetadataValue(key)
	if !ok || value == nil {
		return "", false
	}
	if s, ok := value.(string); ok {
		return s, true
	}
	return fmt.Sprint(value), true
}

// MetadataStrings returns a list-valued metadata entry. A single string is
// treated as a one-element list; other shapes yield nil.
func (r NotificationRequest) MetadataStrings(key string) []string {
	value, ok := r.MetadataValue(key)
	if !ok || value == nil {
		return nil
	}

	switch v := value.(type) {
	case []string:
		return v
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
