package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-center/internal/domain"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const (
	defaultSMTPPort     = 587
	defaultSMTPProtocol = "smtp"
	defaultEmailSubject = "Notification"

	emailMessageIDPrefix = "EMAIL"
	emailFailurePrefix   = "Messaging error"
	emailAttachmentsKey  = "attachments"
)

type EmailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	// Protocol is smtp or smtps. smtps always connects over implicit TLS.
	Protocol string
	From     string
	SMTPAuth bool
	// SSLEnable connects over implicit TLS. Otherwise STARTTLS is used when offered.
	SSLEnable bool
	// SSLTrust is "*" or a whitespace separated list of hosts whose
	// certificates are accepted without verification.
	SSLTrust string
	Timeout  time.Duration
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailProvider delivers notifications over SMTP.
type EmailProvider struct {
	cfg       EmailConfig
	from      string
	newSender func() (mailSender, error)
	ids       messageIDGenerator
	logger    *zap.Logger
}

func NewEmailProvider(cfg EmailConfig, logger *zap.Logger) (*EmailProvider, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultSMTPPort
	}
	cfg.Protocol = strings.ToLower(strings.TrimSpace(cfg.Protocol))
	if cfg.Protocol == "" {
		cfg.Protocol = defaultSMTPProtocol
	}
	if cfg.Protocol != "smtp" && cfg.Protocol != "smtps" {
		return nil, fmt.Errorf("unsupported mail protocol %q", cfg.Protocol)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}

	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		return nil, fmt.Errorf("email from address or username is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	p := &EmailProvider{
		cfg:    cfg,
		from:   from,
		ids:    newMessageIDGenerator(),
		logger: logger,
	}
	p.newSender = p.dialer
	return p, nil
}

func (p *EmailProvider) Type() string { return TypeEmail }

func (p *EmailProvider) Enabled() bool { return p != nil && p.cfg.Enabled }

func (p *EmailProvider) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if p == nil || p.newSender == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	msg, err := p.buildMessage(req)
	if err != nil {
		return nil, &ProviderError{Kind: domain.ErrValidation, Message: emailFailurePrefix, Cause: err}
	}

	sender, err := p.newSender()
	if err != nil {
		return nil, transportError(emailFailurePrefix, 0, err)
	}
	if err := sender.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, transportError(emailFailurePrefix, 0, err)
	}

	p.logger.Info("email sent", zap.String("recipient", req.Recipient))
	return domain.SuccessResponse(p.ids.next(emailMessageIDPrefix)), nil
}

func (p *EmailProvider) buildMessage(req domain.NotificationRequest) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(p.from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(strings.TrimSpace(req.Recipient)); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	subject := req.Subject
	if subject == "" {
		subject = defaultEmailSubject
	}
	msg.Subject(subject)

	contentType := mail.TypeTextPlain
	if isHTMLContent(req.Message) {
		contentType = mail.TypeTextHTML
	}
	msg.SetBodyString(contentType, req.Message)

	for _, a := range emailAttachments(req) {
		msg.AttachFile(a.path, mail.WithFileName(a.name))
	}

	return msg, nil
}

func (p *EmailProvider) dialer() (mailSender, error) {
	opts := []mail.Option{
		mail.WithPort(p.cfg.Port),
		mail.WithTimeout(p.cfg.Timeout),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         p.cfg.Host,
			InsecureSkipVerify: trustsHost(p.cfg.SSLTrust, p.cfg.Host), //nolint:gosec
		}),
	}
	if p.cfg.SSLEnable || p.cfg.Protocol == "smtps" {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if p.cfg.SMTPAuth {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(p.cfg.Username),
			mail.WithPassword(p.cfg.Password),
		)
	}

	client, err := mail.NewClient(p.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client, nil
}

type emailAttachment struct {
	path string
	name string
}

// emailAttachments collects media and metadata attachments that exist on disk.
func emailAttachments(req domain.NotificationRequest) []emailAttachment {
	var out []emailAttachment

	if req.Media != nil && strings.TrimSpace(req.Media.URL) != "" {
		if fileExists(req.Media.URL) {
			name := req.Media.Filename
			if name == "" {
				name = filepath.Base(req.Media.URL)
			}
			out = append(out, emailAttachment{path: req.Media.URL, name: name})
		}
	}

	for _, path := range req.MetadataStrings(emailAttachmentsKey) {
		if fileExists(path) {
			out = append(out, emailAttachment{path: path, name: filepath.Base(path)})
		}
	}

	return out
}

func isHTMLContent(message string) bool {
	trimmed := strings.TrimSpace(message)
	return strings.HasPrefix(trimmed, "<html") ||
		strings.HasPrefix(trimmed, "<!DOCTYPE") ||
		strings.Contains(message, "<body") ||
		strings.Contains(message, "<div")
}

func trustsHost(trust string, host string) bool {
	for _, h := range strings.Fields(trust) {
		if h == "*" || strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
