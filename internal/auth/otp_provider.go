package auth

import "context"

// SMSSender delivers a text message to a mobile number. Implementations live in internal/sms.
type SMSSender interface {
	Send(ctx context.Context, mobile, message string) error
}
