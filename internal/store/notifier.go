package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const changeChannel = "todos_changed"

// Notifier fans out "path changed" signals between processes sharing a store.
type Notifier interface {
	Notify(ctx context.Context, path string) error
	// Listen streams changed paths until ctx is cancelled.
	Listen(ctx context.Context) (<-chan string, error)
	Close() error
}

// PGNotifier uses LISTEN/NOTIFY on the store's own database.
type PGNotifier struct {
	pool    *pgxpool.Pool
	channel string
}

func NewPGNotifier(pool *pgxpool.Pool) *PGNotifier {
	return &PGNotifier{pool: pool, channel: changeChannel}
}

func (n *PGNotifier) Notify(ctx context.Context, path string) error {
	if _, err := n.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, n.channel, path); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

func (n *PGNotifier) Listen(ctx context.Context) (<-chan string, error) {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", n.channel, err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer conn.Release()
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Error("postgres change listener stopped")
				}
				return
			}
			select {
			case out <- notification.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the pool belongs to the store.
func (n *PGNotifier) Close() error { return nil }

// RedisNotifier uses PUBLISH/SUBSCRIBE so several service instances can share
// one Postgres store without holding a LISTEN connection each.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(ctx context.Context, redisURL string) (*RedisNotifier, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required for the redis notifier")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisNotifier{client: client, channel: "tasklist:" + changeChannel}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, path string) error {
	if err := n.client.Publish(ctx, n.channel, path).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context) (<-chan string, error) {
	ps := n.client.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", n.channel, err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
