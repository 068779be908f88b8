package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/notification-center/internal/provider"
	"github.com/kursadbilgin/notification-center/internal/workerpool"
)

const defaultShutdownTimeout = 10 * time.Second

type Config struct {
	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	RedisURL           string `env:"REDIS_URL"`
	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	RateLimitOverrides string `env:"RATE_LIMIT_OVERRIDES"`
	ShutdownTimeout    string `env:"SHUTDOWN_TIMEOUT,default=10s"`

	AsyncCorePoolSize  int `env:"ASYNC_CORE_POOL_SIZE,default=5"`
	AsyncMaxPoolSize   int `env:"ASYNC_MAX_POOL_SIZE,default=15"`
	AsyncQueueCapacity int `env:"ASYNC_QUEUE_CAPACITY,default=30"`
	BulkParallelism    int `env:"BULK_PARALLELISM,default=4"`

	WhatsAppEnabled       bool   `env:"WHATSAPP_ENABLED,default=false"`
	WhatsAppBaseURL       string `env:"WHATSAPP_BASE_URL,default=https://graph.facebook.com"`
	WhatsAppAPIVersion    string `env:"WHATSAPP_API_VERSION,default=v18.0"`
	WhatsAppPhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppAccessToken   string `env:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppTimeout       string `env:"WHATSAPP_TIMEOUT,default=10s"`

	SMSEnabled       bool   `env:"SMS_ENABLED,default=false"`
	SMSProvider      string `env:"SMS_PROVIDER"`
	SMSURL           string `env:"SMS_URL"`
	SMSParams        string `env:"SMS_PARAMS"`
	SMSAuthKey       string `env:"SMS_AUTH_KEY"`
	SMSUser          string `env:"SMS_USER"`
	SMSPassword      string `env:"SMS_PASSWORD"`
	SMSSenderID      string `env:"SMS_SENDER_ID"`
	SMSRoute         string `env:"SMS_ROUTE,default=4"`
	SMSChannel       string `env:"SMS_CHANNEL"`
	SMSDLTEntityID   string `env:"SMS_DLT_ENTITY_ID"`
	SMSDLTTemplateID string `env:"SMS_DLT_TEMPLATE_ID"`
	SMSMethod        string `env:"SMS_METHOD,default=POST"`
	SMSTimeout       string `env:"SMS_TIMEOUT,default=10s"`

	EmailEnabled   bool   `env:"EMAIL_ENABLED,default=false"`
	EmailHost      string `env:"EMAIL_HOST"`
	EmailPort      int    `env:"EMAIL_PORT,default=587"`
	EmailUsername  string `env:"EMAIL_USERNAME"`
	EmailPassword  string `env:"EMAIL_PASSWORD"`
	EmailProtocol  string `env:"EMAIL_PROTOCOL,default=smtp"`
	EmailFrom      string `env:"EMAIL_FROM"`
	EmailSMTPAuth  bool   `env:"EMAIL_SMTP_AUTH,default=true"`
	EmailSSLEnable bool   `env:"EMAIL_SSL_ENABLE,default=true"`
	EmailSSLTrust  string `env:"EMAIL_SSL_TRUST,default=*"`
	EmailTimeout   string `env:"EMAIL_TIMEOUT,default=10s"`

	SocketEnabled bool   `env:"SOCKET_ENABLED,default=false"`
	SocketHost    string `env:"SOCKET_HOST,default=0.0.0.0"`
	SocketPort    int    `env:"SOCKET_PORT,default=3002"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate joins every configuration problem into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.APIPort < 1 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("API_PORT out of range: %d", c.APIPort))
	}
	if c.RateLimitPerSec < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_SEC must be >= 1, got %d", c.RateLimitPerSec))
	}
	if _, err := c.RateLimits(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}

	if c.AsyncCorePoolSize < 1 {
		errs = append(errs, fmt.Errorf("ASYNC_CORE_POOL_SIZE must be >= 1, got %d", c.AsyncCorePoolSize))
	}
	if c.AsyncMaxPoolSize < c.AsyncCorePoolSize {
		errs = append(errs, fmt.Errorf("ASYNC_MAX_POOL_SIZE %d must be >= ASYNC_CORE_POOL_SIZE %d", c.AsyncMaxPoolSize, c.AsyncCorePoolSize))
	}
	if c.AsyncQueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("ASYNC_QUEUE_CAPACITY must be >= 0, got %d", c.AsyncQueueCapacity))
	}
	if c.BulkParallelism < 1 {
		errs = append(errs, fmt.Errorf("BULK_PARALLELISM must be >= 1, got %d", c.BulkParallelism))
	}

	if c.WhatsAppEnabled {
		errs = append(errs, required("WHATSAPP_PHONE_NUMBER_ID", c.WhatsAppPhoneNumberID))
		errs = append(errs, required("WHATSAPP_ACCESS_TOKEN", c.WhatsAppAccessToken))
		_, err := parseDuration("WHATSAPP_TIMEOUT", c.WhatsAppTimeout)
		errs = append(errs, err)
	}
	if c.SMSEnabled {
		errs = append(errs, required("SMS_URL", c.SMSURL))
		_, err := parseDuration("SMS_TIMEOUT", c.SMSTimeout)
		errs = append(errs, err)
	}
	if c.EmailEnabled {
		errs = append(errs, required("EMAIL_HOST", c.EmailHost))
		if strings.TrimSpace(c.EmailFrom) == "" && strings.TrimSpace(c.EmailUsername) == "" {
			errs = append(errs, errors.New("EMAIL_FROM or EMAIL_USERNAME is required"))
		}
		switch strings.ToLower(strings.TrimSpace(c.EmailProtocol)) {
		case "smtp", "smtps":
		default:
			errs = append(errs, fmt.Errorf("EMAIL_PROTOCOL must be smtp or smtps, got %q", c.EmailProtocol))
		}
		_, err := parseDuration("EMAIL_TIMEOUT", c.EmailTimeout)
		errs = append(errs, err)
	}
	if c.SocketEnabled && (c.SocketPort < 1 || c.SocketPort > 65535) {
		errs = append(errs, fmt.Errorf("SOCKET_PORT out of range: %d", c.SocketPort))
	}

	return errors.Join(errs...)
}

func (c *Config) Pool() workerpool.Config {
	return workerpool.Config{
		CoreSize:      c.AsyncCorePoolSize,
		MaxSize:       c.AsyncMaxPoolSize,
		QueueCapacity: c.AsyncQueueCapacity,
	}
}

func (c *Config) Shutdown() time.Duration {
	d, err := parseDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	if err != nil || d == 0 {
		return defaultShutdownTimeout
	}
	return d
}

// RateLimits parses RATE_LIMIT_OVERRIDES, a comma separated list of
// channel=limit pairs such as "sms=5,email=20".
func (c *Config) RateLimits() (map[string]int, error) {
	raw := strings.TrimSpace(c.RateLimitOverrides)
	if raw == "" {
		return nil, nil
	}

	overrides := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		channel, value, ok := strings.Cut(pair, "=")
		channel = strings.TrimSpace(channel)
		if !ok || channel == "" {
			return nil, fmt.Errorf("RATE_LIMIT_OVERRIDES entry %q must be channel=limit", pair)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("RATE_LIMIT_OVERRIDES limit for %s must be a positive integer, got %q", channel, value)
		}
		overrides[strings.ToLower(channel)] = limit
	}

	return overrides, nil
}

func (c *Config) WhatsApp() (provider.WhatsAppConfig, error) {
	timeout, err := parseDuration("WHATSAPP_TIMEOUT", c.WhatsAppTimeout)
	if err != nil {
		return provider.WhatsAppConfig{}, err
	}
	return provider.WhatsAppConfig{
		Enabled:       c.WhatsAppEnabled,
		BaseURL:       c.WhatsAppBaseURL,
		APIVersion:    c.WhatsAppAPIVersion,
		PhoneNumberID: c.WhatsAppPhoneNumberID,
		AccessToken:   c.WhatsAppAccessToken,
		Timeout:       timeout,
	}, nil
}

func (c *Config) SMS() (provider.SMSConfig, error) {
	timeout, err := parseDuration("SMS_TIMEOUT", c.SMSTimeout)
	if err != nil {
		return provider.SMSConfig{}, err
	}
	return provider.SMSConfig{
		Enabled:       c.SMSEnabled,
		Provider:      c.SMSProvider,
		URL:           c.SMSURL,
		Params:        c.SMSParams,
		AuthKey:       c.SMSAuthKey,
		User:          c.SMSUser,
		Password:      c.SMSPassword,
		SenderID:      c.SMSSenderID,
		Route:         c.SMSRoute,
		Channel:       c.SMSChannel,
		DLTEntityID:   c.SMSDLTEntityID,
		DLTTemplateID: c.SMSDLTTemplateID,
		Method:        c.SMSMethod,
		Timeout:       timeout,
	}, nil
}

func (c *Config) Email() (provider.EmailConfig, error) {
	timeout, err := parseDuration("EMAIL_TIMEOUT", c.EmailTimeout)
	if err != nil {
		return provider.EmailConfig{}, err
	}
	return provider.EmailConfig{
		Enabled:   c.EmailEnabled,
		Host:      c.EmailHost,
		Port:      c.EmailPort,
		Username:  c.EmailUsername,
		Password:  c.EmailPassword,
		Protocol:  c.EmailProtocol,
		From:      c.EmailFrom,
		SMTPAuth:  c.EmailSMTPAuth,
		SSLEnable: c.EmailSSLEnable,
		SSLTrust:  c.EmailSSLTrust,
		Timeout:   timeout,
	}, nil
}

func (c *Config) Socket() provider.SocketConfig {
	return provider.SocketConfig{Enabled: c.SocketEnabled}
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// parseDuration accepts Go duration strings; an empty value means the
// provider default.
func parseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", name, value)
	}
	return d, nil
}
