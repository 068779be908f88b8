package provider

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-center/internal/domain"
)

type stubProvider struct {
	typ     string
	enabled bool
}

func (s stubProvider) Type() string  { return s.typ }
func (s stubProvider) Enabled() bool { return s.enabled }
func (s stubProvider) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	return domain.SuccessResponse(s.typ), nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry(
		stubProvider{typ: "sms", enabled: true},
		stubProvider{typ: "EMAIL", enabled: true},
		stubProvider{typ: "WHATSAPP", enabled: false},
		nil,
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	for _, input := range []string{"sms", "SMS", " Sms "} {
		p, err := registry.Resolve(input)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", input, err)
		}
		if p.Type() != "sms" {
			t.Fatalf("Resolve(%q) = %q", input, p.Type())
		}
	}

	_, err = registry.Resolve("whatsapp")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("Resolve(disabled) error = %v, want ErrProviderNotFound", err)
	}

	_, err = registry.Resolve("fax")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("Resolve(unknown) error = %v, want ErrProviderNotFound", err)
	}
	if !strings.Contains(err.Error(), "no provider configured for type: fax") {
		t.Fatalf("error = %q", err.Error())
	}

	if got := registry.Types(); !reflect.DeepEqual(got, []string{"EMAIL", "SMS"}) {
		t.Fatalf("Types() = %v", got)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(
		stubProvider{typ: "sms", enabled: true},
		stubProvider{typ: "SMS", enabled: true},
	)
	if err == nil {
		t.Fatal("expected duplicate registration error")
	}

	_, err = NewRegistry(stubProvider{typ: " ", enabled: true})
	if err == nil {
		t.Fatal("expected error for empty type")
	}
}

func TestNilRegistryResolve(t *testing.T) {
	t.Parallel()

	var registry *Registry
	if _, err := registry.Resolve("sms"); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrProviderNotFound", err)
	}
}

func TestKindOfAndReasonLabel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		err        error
		wantKind   error
		wantReason string
	}{
		{name: "nil", err: nil, wantKind: nil, wantReason: ""},
		{name: "provider error", err: invalidResponseError("bad"), wantKind: domain.ErrInvalidBackendResponse, wantReason: "invalid_backend_response"},
		{name: "wrapped not found", err: fmt.Errorf("%w: x", domain.ErrProviderNotFound), wantKind: domain.ErrProviderNotFound, wantReason: "provider_not_found"},
		{name: "saturated", err: domain.ErrPoolSaturated, wantKind: domain.ErrPoolSaturated, wantReason: "pool_saturated"},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: domain.ErrTransportFailure, wantReason: "transport_failure"},
		{name: "unclassified", err: errors.New("boom"), wantKind: domain.ErrTransportFailure, wantReason: "transport_failure"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := KindOf(tc.err); got != tc.wantKind {
				t.Fatalf("KindOf() = %v, want %v", got, tc.wantKind)
			}
			if got := ReasonLabel(tc.err); got != tc.wantReason {
				t.Fatalf("ReasonLabel() = %q, want %q", got, tc.wantReason)
			}
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	err := transportError("WhatsApp send failed", 503, errors.New("unavailable"))
	if got := err.Error(); got != "WhatsApp send failed: status=503: unavailable" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, domain.ErrTransportFailure) {
		t.Fatal("transport error should match ErrTransportFailure")
	}

	bare := &ProviderError{Kind: domain.ErrParseFailure}
	if got := bare.Error(); got != domain.ErrParseFailure.Error() {
		t.Fatalf("Error() = %q, want kind text", got)
	}
}

func TestMessageIDGenerator(t *testing.T) {
	t.Parallel()

	gen := messageIDGenerator{
		now:      func() time.Time { return time.UnixMilli(1_712_345_678_901) },
		randIntn: func(n int) int { return n - 1 },
	}
	if got := gen.next("EMAIL"); got != "EMAIL_1712345678901_9999" {
		t.Fatalf("next() = %q", got)
	}

	if got := newMessageIDGenerator().next("SMS"); !strings.HasPrefix(got, "SMS_") || strings.Count(got, "_") != 2 {
		t.Fatalf("next() = %q, want SMS_<millis>_<n>", got)
	}
}
