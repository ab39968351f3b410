// Package cache provides Redis client setup and cache-aside helpers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"helpboard/internal/observability"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const pingTimeout = 5 * time.Second

var client *redis.Client

// errorHook counts failed commands and marks them on the caller's span.
// A miss (redis.Nil) and a cancelled caller are not failures.
type errorHook struct{}

func (errorHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (errorHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		recordError(ctx, cmd.Name(), err)
		return err
	}
}

func (errorHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		recordError(ctx, "pipeline", err)
		return err
	}
}

func recordError(ctx context.Context, command string, err error) {
	if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
		return
	}
	observability.RedisErrors.WithLabelValues(strings.ToLower(command)).Inc()
	trace.SpanFromContext(ctx).AddEvent("redis.error", trace.WithAttributes(
		attribute.String("redis.command", command),
		attribute.String("error", err.Error()),
	))
}

// ParseOptions accepts a redis:// URL or a bare host:port.
func ParseOptions(url string) (*redis.Options, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("empty redis address")
	}
	if strings.Contains(url, "://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL %q: %w", url, err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: url}, nil
}

// Open connects to url and pings it. The client is instrumented with the
// error hook.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := ParseOptions(url)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	c.AddHook(errorHook{})

	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return c, nil
}

// InitRedis sets the package client. An unreachable server leaves it nil:
// the board then runs single-instance with in-memory connection attributes,
// local fan-out and no token revocation.
func InitRedis(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	c, err := Open(ctx, url)
	if err != nil {
		slog.Warn("Redis unavailable, continuing single-instance", slog.String("error", err.Error()))
		client = nil
		return
	}
	client = c
	slog.Info("Redis connected", slog.String("addr", c.Options().Addr))
}

// GetClient returns the current Redis client instance.
func GetClient() *redis.Client {
	return client
}

// SetClient replaces the package client. Tests use it with miniredis.
func SetClient(c *redis.Client) {
	client = c
}
