// Package throttle counts failed logins and locks a key out once it has
// failed too often within a window.
package throttle

import (
	"context"
	"errors"
	"time"
)

var ErrLocked = errors.New("too many failed attempts")

type Throttle interface {
	// Check returns ErrLocked while the key is locked out.
	Check(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

type Options struct {
	MaxAttempts int
	Window      time.Duration
}

func (o Options) normalized() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Window <= 0 {
		o.Window = 15 * time.Minute
	}
	return o
}

func LoginKey(role, phoneNumber string) string {
	return "login_failures:" + role + ":" + phoneNumber
}
