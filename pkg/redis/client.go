package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lavavarshney/Library-Management-System/pkg/config"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Nil is returned by Get for a missing key.
var Nil = redis.Nil

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
const compareAndDelete = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

var errNoConnection = errors.New("redis: no connection")

// commands is the part of go-redis the service relies on.
type commands interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
	Publish(context.Context, string, any) *redis.IntCmd
}

// Client is the shared Redis handle for leases, idempotency records and
// notification fan-out. Every key it builds lives under the "lib" namespace.
type Client struct {
	cmds commands
	conn *redis.Client
}

func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connected")
	}
	return &Client{cmds: conn, conn: conn}, nil
}

// optionsFromConfig prefers the URL; pool and timeout settings from cfg fill
// whatever the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case strings.TrimSpace(cfg.URL) != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case strings.TrimSpace(cfg.Address) != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fill := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	fill(&opts.DialTimeout, cfg.DialTimeout)
	fill(&opts.ReadTimeout, cfg.ReadTimeout)
	fill(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func (c *Client) exec() (commands, error) {
	if c == nil || c.cmds == nil {
		return nil, errNoConnection
	}
	return c.cmds, nil
}

func (c *Client) Ping(ctx context.Context) error {
	cmds, err := c.exec()
	if err != nil {
		return err
	}
	return cmds.Ping(ctx).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	cmds, err := c.exec()
	if err != nil {
		return "", err
	}
	return cmds.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	cmds, err := c.exec()
	if err != nil {
		return err
	}
	return cmds.Set(ctx, key, value, ttl).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	cmds, err := c.exec()
	if err != nil {
		return false, err
	}
	return cmds.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	cmds, err := c.exec()
	if err != nil {
		return err
	}
	return cmds.Del(ctx, keys...).Err()
}

// ReleaseIfOwner deletes a lease key only while owner still holds it.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error) {
	cmds, err := c.exec()
	if err != nil {
		return false, err
	}
	n, err := cmds.Eval(ctx, compareAndDelete, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) Publish(ctx context.Context, channel string, payload any) error {
	cmds, err := c.exec()
	if err != nil {
		return err
	}
	return cmds.Publish(ctx, channel, payload).Err()
}

// Subscribe returns once the server has confirmed the subscription.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	if c == nil || c.conn == nil {
		return nil, errNoConnection
	}
	sub := c.conn.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", strings.Join(channels, ","), err)
	}
	return sub, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) IdempotencyKey(scope, id string) string { return key("idempotency", scope, id) }

func (c *Client) LockKey(scope, id string) string { return key("lock", scope, id) }

func key(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString("lib:")
	b.WriteString(kind)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
