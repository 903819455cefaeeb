package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("store is closed")
	// ErrChangeFeedClosed ends subscriptions whose cross-process change feed
	// is gone and would never report another change.
	ErrChangeFeedClosed = errors.New("change feed closed")
)

// Store is a realtime document collection keyed by opaque ids and scoped by
// path. Subscriptions receive full-snapshot replace events, in emission order,
// starting with the current contents of the path.
type Store interface {
	Create(ctx context.Context, path string, record Record) (string, error)
	Update(ctx context.Context, path, id string, patch Patch) error
	Delete(ctx context.Context, path, id string) error
	// Subscribe returns an idempotent unsubscribe func. onError is called at
	// most once and ends the subscription.
	Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error)
	Close() error
}

// Config selects the backend. URL is "memory://" or a postgres DSN.
type Config struct {
	URL      string
	Notifier string
	RedisURL string
}

// NewStore returns nil, nil when no URL is configured.
func NewStore(ctx context.Context, cfg Config) (Store, string, error) {
	url := strings.TrimSpace(cfg.URL)
	switch {
	case url == "":
		return nil, "", nil
	case strings.HasPrefix(url, "memory://"):
		return NewMemoryStore(), "memory", nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
	default:
		return nil, "", fmt.Errorf("unsupported store url scheme in %q", redactURL(url))
	}

	var notifier Notifier
	mode := "postgres"
	if strings.EqualFold(strings.TrimSpace(cfg.Notifier), "redis") {
		n, err := NewRedisNotifier(ctx, cfg.RedisURL)
		if err != nil {
			return nil, "", err
		}
		notifier = n
		mode = "postgres+redis"
	}
	st, err := NewPostgresStore(ctx, url, notifier)
	if err != nil {
		if notifier != nil {
			_ = notifier.Close()
		}
		return nil, "", err
	}
	return st, mode, nil
}

func redactURL(raw string) string {
	if i := strings.Index(raw, "@"); i >= 0 {
		if j := strings.Index(raw, "://"); j >= 0 && j < i {
			return raw[:j+3] + "***" + raw[i:]
		}
	}
	return raw
}
