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
	defaultSMSRoute  = "4"
	defaultSMSMethod = http.MethodPost

	smsMessageIDPrefix = "SMS"
	smsFailurePrefix   = "SMS send failed"
	smsDLTTemplateKey  = "dltTemplateId"
)

// SMSConfig describes a URL-templated HTTP SMS gateway. URL and Params may
// reference {placeholder} names understood by the major gateways.
type SMSConfig struct {
	Enabled       bool
	Provider      string
	URL           string
	Params        string
	AuthKey       string
	User          string
	Password      string
	SenderID      string
	Route         string
	Channel       string
	DLTEntityID   string
	DLTTemplateID string
	Method        string
	Timeout       time.Duration
}

// SMSProvider renders the gateway URL per request and classifies the
// free-form gateway reply.
type SMSProvider struct {
	client *resty.Client
	cfg    SMSConfig
	ids    messageIDGenerator
	logger *zap.Logger
}

func NewSMSProvider(cfg SMSConfig, logger *zap.Logger) (*SMSProvider, error) {
	client := resty.New()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewSMSProviderWithClient(cfg, client, logger)
}

func NewSMSProviderWithClient(cfg SMSConfig, client *resty.Client, logger *zap.Logger) (*SMSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, fmt.Errorf("sms url is required")
	}
	if strings.TrimSpace(cfg.Route) == "" {
		cfg.Route = defaultSMSRoute
	}
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method == "" {
		cfg.Method = defaultSMSMethod
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultHTTPTimeout)
	}
	client.SetRetryCount(0)

	if logger == nil {
		logger = zap.NewNop()
	}

	return &SMSProvider{
		client: client,
		cfg:    cfg,
		ids:    newMessageIDGenerator(),
		logger: logger,
	}, nil
}

func (p *SMSProvider) Type() string { return TypeSMS }

func (p *SMSProvider) Enabled() bool { return p != nil && p.cfg.Enabled }

func (p *SMSProvider) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	target := p.buildTarget(req)
	p.logger.Debug("sending sms",
		zap.String("gateway", p.cfg.Provider),
		zap.String("recipient", req.Recipient),
	)

	response, err := p.client.R().
		SetContext(ctx).
		Execute(p.cfg.Method, target)
	if err != nil {
		return nil, transportError(smsFailurePrefix, 0, err)
	}
	if response == nil {
		return nil, transportError(smsFailurePrefix, 0, errors.New("empty response"))
	}

	raw := response.String()
	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		var cause error
		if body := strings.TrimSpace(raw); body != "" {
			cause = errors.New(body)
		}
		return nil, transportError(smsFailurePrefix, statusCode, cause)
	}

	providerResponse := map[string]any{"rawResponse": raw}
	ok, errorMessage := classifySMSReply(raw)
	if !ok {
		return domain.FailureResponse(errorMessage).WithProviderResponse(providerResponse), nil
	}

	return domain.SuccessResponse(p.ids.next(smsMessageIDPrefix)).WithProviderResponse(providerResponse), nil
}

// buildTarget substitutes placeholders into the URL template and then the
// params template. Placeholders without a non-empty value stay literal.
func (p *SMSProvider) buildTarget(req domain.NotificationRequest) string {
	values := p.placeholderValues(req)

	target := substitutePlaceholders(p.cfg.URL, values)
	if p.cfg.Params == "" {
		return target
	}

	params := substitutePlaceholders(p.cfg.Params, values)
	if strings.HasPrefix(p.cfg.Params, "?") {
		return target + params
	}
	return target + "?" + params
}

type placeholder struct {
	key   string
	value string
}

func (p *SMSProvider) placeholderValues(req domain.NotificationRequest) []placeholder {
	encodedMessage := url.QueryEscape(req.Message)

	dltTemplateID := p.cfg.DLTTemplateID
	if override, ok := req.MetadataString(smsDLTTemplateKey); ok {
		dltTemplateID = override
	}

	return []placeholder{
		{key: "authkey", value: p.cfg.AuthKey},
		{key: "APIKey", value: p.cfg.AuthKey},
		{key: "apikey", value: p.cfg.AuthKey},
		{key: "user", value: p.cfg.User},
		{key: "password", value: p.cfg.Password},
		{key: "mobiles", value: req.Recipient},
		{key: "number", value: req.Recipient},
		{key: "message", value: encodedMessage},
		{key: "text", value: encodedMessage},
		{key: "sender", value: p.cfg.SenderID},
		{key: "senderid", value: p.cfg.SenderID},
		{key: "route", value: p.cfg.Route},
		{key: "channel", value: p.cfg.Channel},
		{key: "dltEntityId", value: p.cfg.DLTEntityID},
		{key: smsDLTTemplateKey, value: dltTemplateID},
	}
}

func substitutePlaceholders(template string, values []placeholder) string {
	out := template
	for _, v := range values {
		if v.value == "" {
			continue
		}
		out = strings.ReplaceAll(out, "{"+v.key+"}", v.value)
	}
	return out
}

// classifySMSReply decides success from a gateway reply. JSON replies are
// judged by ErrorMessage, then ErrorCode. Anything else falls back to text
// matching, where an unrecognized reply counts as success unless it carries
// an error code.
func classifySMSReply(raw string) (bool, string) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		if msg, ok := parsed["ErrorMessage"]; ok && msg != nil {
			text := fmt.Sprint(msg)
			if strings.EqualFold(text, "Success") {
				return true, ""
			}
			return false, text
		}
		if code, ok := parsed["ErrorCode"]; ok && code != nil {
			text := fmt.Sprint(code)
			if text == "000" || text == "0" {
				return true, ""
			}
			return false, "ErrorCode: " + text
		}
	}

	lower := strings.ToLower(raw)
	if strings.Contains(lower, "success") {
		return true, ""
	}
	if strings.HasPrefix(lower, "error") || strings.Contains(lower, "errorcode") {
		return false, raw
	}
	return true, ""
}
