package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const keyNamespace = "ml"

// ErrNotInitialized is returned by every command on a zero Client.
var ErrNotInitialized = errors.New("redis client not initialized")

// commands is the slice of go-redis used here; tests swap in a map-backed fake.
type commands interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client backs the idempotency middleware and the cron lock.
type Client struct {
	cmds commands
	conn *redis.Client
}

// Pinger is what readiness checks need.
type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore is what the idempotency middleware needs.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New dials Redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_addr": opts.Addr, "redis_db": opts.DB}), "redis connected")
	}
	return &Client{cmds: conn, conn: conn}, nil
}

// optionsFromConfig prefers the URL form; explicit pool and timeout settings
// fill whatever the URL left unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}
	fillZero(&opts.DB, cfg.DB)
	fillZero(&opts.PoolSize, cfg.PoolSize)
	fillZero(&opts.MinIdleConns, cfg.MinIdleConns)
	fillZero(&opts.DialTimeout, cfg.DialTimeout)
	fillZero(&opts.ReadTimeout, cfg.ReadTimeout)
	fillZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillZero[T comparable](dst *T, fallback T) {
	var zero T
	if *dst == zero {
		*dst = fallback
	}
}

func (c *Client) commands() (commands, error) {
	if c == nil || c.cmds == nil {
		return nil, ErrNotInitialized
	}
	return c.cmds, nil
}

// Get returns the value at key, or redis.Nil when it is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	cmds, err := c.commands()
	if err != nil {
		return "", err
	}
	return cmds.Get(ctx, key).Result()
}

// SetNX writes value only when key is absent and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	cmds, err := c.commands()
	if err != nil {
		return false, err
	}
	return cmds.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	cmds, err := c.commands()
	if err != nil {
		return err
	}
	return cmds.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	cmds, err := c.commands()
	if err != nil {
		return err
	}
	return cmds.Ping(ctx).Err()
}

// Close is a no-op for clients built around a fake.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// IdempotencyKey namespaces a replay record, e.g. ml:idempotency:<scope>:<id>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return Key("idempotency", scope, id)
}

// LockKey namespaces a worker lock, e.g. ml:lock:cron-worker:prod.
func (c *Client) LockKey(name, env string) string {
	return Key("lock", name, env)
}

// Key joins trimmed non-empty parts under the service namespace.
func Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
