package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-center/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultWhatsAppBaseURL    = "https://graph.facebook.com"
	defaultWhatsAppAPIVersion = "v18.0"
	defaultHTTPTimeout        = 10 * time.Second

	whatsAppTemplateLanguage = "en"
	whatsAppDefaultMediaType = "document"
	whatsAppFailurePrefix    = "WhatsApp send failed"
)

type WhatsAppConfig struct {
	Enabled       bool
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

type whatsAppText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type whatsAppLanguage struct {
	Code string `json:"code"`
}

type whatsAppParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type whatsAppComponent struct {
	Type       string              `json:"type"`
	Parameters []whatsAppParameter `json:"parameters"`
}

type whatsAppTemplate struct {
	Name       string              `json:"name"`
	Language   whatsAppLanguage    `json:"language"`
	Components []whatsAppComponent `json:"components,omitempty"`
}

type whatsAppMedia struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// WhatsAppProvider sends notifications through the WhatsApp Cloud API.
type WhatsAppProvider struct {
	client      *resty.Client
	endpoint    string
	accessToken string
	enabled     bool
	logger      *zap.Logger
}

func NewWhatsAppProvider(cfg WhatsAppConfig, logger *zap.Logger) (*WhatsAppProvider, error) {
	client := resty.New()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewWhatsAppProviderWithClient(cfg, client, logger)
}

func NewWhatsAppProviderWithClient(cfg WhatsAppConfig, client *resty.Client, logger *zap.Logger) (*WhatsAppProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	phoneNumberID := strings.TrimSpace(cfg.PhoneNumberID)
	if phoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone number id is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("whatsapp access token is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultWhatsAppBaseURL
	}
	apiVersion := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if apiVersion == "" {
		apiVersion = defaultWhatsAppAPIVersion
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", baseURL, apiVersion, phoneNumberID)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid whatsapp endpoint: %w", err)
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultHTTPTimeout)
	}
	client.SetRetryCount(0)

	if logger == nil {
		logger = zap.NewNop()
	}

	return &WhatsAppProvider{
		client:      client,
		endpoint:    endpoint,
		accessToken: strings.TrimSpace(cfg.AccessToken),
		enabled:     cfg.Enabled,
		logger:      logger,
	}, nil
}

func (p *WhatsAppProvider) Type() string { return TypeWhatsApp }

func (p *WhatsAppProvider) Enabled() bool { return p != nil && p.enabled }

func (p *WhatsAppProvider) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	payload := buildWhatsAppPayload(req)
	p.logger.Debug("sending whatsapp message",
		zap.String("to", payload["to"].(string)),
		zap.String("type", payload["type"].(string)),
	)

	response, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(p.accessToken).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(p.endpoint)
	if err != nil {
		return nil, transportError(whatsAppFailurePrefix, 0, err)
	}
	if response == nil {
		return nil, transportError(whatsAppFailurePrefix, 0, errors.New("empty response"))
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		var cause error
		if body != "" {
			cause = errors.New(body)
		}
		return nil, transportError(whatsAppFailurePrefix, statusCode, cause)
	}

	var reply map[string]any
	if err := json.Unmarshal(response.Body(), &reply); err != nil {
		return nil, &ProviderError{
			Kind:       domain.ErrParseFailure,
			StatusCode: statusCode,
			Message:    whatsAppFailurePrefix,
			Cause:      err,
		}
	}

	messageID, ok := whatsAppMessageID(reply)
	if !ok {
		return nil, invalidResponseError(whatsAppFailurePrefix + ": Invalid response from WhatsApp API")
	}

	return domain.SuccessResponse(messageID).WithProviderResponse(reply), nil
}

// buildWhatsAppPayload encodes req as a Cloud API message. A template id wins
// over media, and media wins over plain text.
func buildWhatsAppPayload(req domain.NotificationRequest) map[string]any {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                digitsOnly(req.Recipient),
	}

	switch {
	case strings.TrimSpace(req.TemplateID) != "":
		payload["type"] = "template"
		payload["template"] = buildWhatsAppTemplate(req.TemplateID, req.TemplateParameters)
	case req.Media != nil:
		mediaType := strings.TrimSpace(req.Media.Type)
		if mediaType == "" {
			mediaType = whatsAppDefaultMediaType
		}
		payload["type"] = mediaType
		payload[mediaType] = whatsAppMedia{
			Link:     req.Media.URL,
			Caption:  req.Media.Caption,
			Filename: req.Media.Filename,
		}
	default:
		payload["type"] = "text"
		payload["text"] = whatsAppText{PreviewURL: false, Body: req.Message}
	}

	return payload
}

func buildWhatsAppTemplate(templateID string, params *domain.TemplateParameters) whatsAppTemplate {
	template := whatsAppTemplate{
		Name:     templateID,
		Language: whatsAppLanguage{Code: whatsAppTemplateLanguage},
	}
	if params == nil || params.Len() == 0 {
		return template
	}

	parameters := make([]whatsAppParameter, 0, params.Len())
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		parameters = append(parameters, whatsAppParameter{Type: "text", Text: pair.Value})
	}
	template.Components = []whatsAppComponent{{Type: "body", Parameters: parameters}}
	return template
}

func whatsAppMessageID(reply map[string]any) (string, bool) {
	messages, ok := reply["messages"].([]any)
	if !ok || len(messages) == 0 {
		return "", false
	}
	first, ok := messages[0].(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := first["id"].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
