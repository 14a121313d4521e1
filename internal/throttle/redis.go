package throttle

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// The window starts at the first failure and is not extended by later ones.
var failScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

type Redis struct {
	client *redis.Client
	opts   Options
}

func NewRedis(client *redis.Client, opts Options) *Redis {
	return &Redis{client: client, opts: opts.normalized()}
}

func (r *Redis) Check(ctx context.Context, key string) error {
	failures, err := r.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read login failures: %w", err)
	}
	if failures >= r.opts.MaxAttempts {
		return ErrLocked
	}
	return nil
}

func (r *Redis) Fail(ctx context.Context, key string) error {
	if err := failScript.Run(ctx, r.client, []string{key}, r.opts.Window.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}
