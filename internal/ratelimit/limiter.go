package ratelimit

import (
	"context"
	"strings"
)

// RateLimiter paces outbound sends per notification channel. Channel names
// are compared through ChannelKey, so "SMS" and "sms" share one budget.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}

func ChannelKey(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}
