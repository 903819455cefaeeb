package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// PostgresStore persists documents in PostgreSQL. Every write publishes the
// changed path through a Notifier; each process listens once and re-reads the
// full path for its local subscribers.
type PostgresStore struct {
	pool     *pgxpool.Pool
	notifier Notifier
	cancel   context.CancelFunc

	mu         sync.Mutex
	closed     bool
	feedClosed bool
	subs       map[string]map[int]*pgSubscription
	nextSubID  int
}

type pgSubscription struct {
	signal   chan struct{}
	done     chan struct{}
	lost     chan struct{}
	once     sync.Once
	lostOnce sync.Once
}

func newPGSubscription() *pgSubscription {
	return &pgSubscription{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		lost:   make(chan struct{}),
	}
}

func (s *pgSubscription) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *pgSubscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *pgSubscription) feedLost() {
	s.lostOnce.Do(func() { close(s.lost) })
}

// NewPostgresStore connects, creates the schema and starts listening for
// changes. A nil notifier selects LISTEN/NOTIFY on the same database.
func NewPostgresStore(ctx context.Context, databaseURL string, notifier Notifier) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTodoSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if notifier == nil {
		notifier = NewPGNotifier(pool)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	changes, err := notifier.Listen(listenCtx)
	if err != nil {
		cancel()
		_ = notifier.Close()
		pool.Close()
		return nil, fmt.Errorf("listen for changes: %w", err)
	}

	s := &PostgresStore{
		pool:     pool,
		notifier: notifier,
		cancel:   cancel,
		subs:     make(map[string]map[int]*pgSubscription),
	}
	go s.dispatch(changes)
	return s, nil
}

func initTodoSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todos (
			path TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			is_completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (path, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_path_created ON todos (path, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init todo schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, path string, record Record) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO todos (path, id, text, is_completed, created_at, owner_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		path,
		id,
		record.Text,
		record.IsCompleted,
		record.CreatedAt,
		record.OwnerID,
	)
	if err != nil {
		return "", fmt.Errorf("insert todo: %w", err)
	}
	s.changed(ctx, path)
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, path, id string, patch Patch) error {
	if s.isClosed() {
		return ErrClosed
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE todos SET is_completed = COALESCE($3, is_completed) WHERE path=$1 AND id=$2`,
		path, id, patch.IsCompleted,
	)
	if err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.changed(ctx, path)
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, path, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM todos WHERE path=$1 AND id=$2`, path, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.changed(ctx, path)
	}
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.feedClosed {
		s.mu.Unlock()
		return nil, ErrChangeFeedClosed
	}
	s.nextSubID++
	id := s.nextSubID
	sub := newPGSubscription()
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]*pgSubscription)
	}
	s.subs[path][id] = sub
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if subs := s.subs[path]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(s.subs, path)
			}
		}
		s.mu.Unlock()
		sub.stop()
	}

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		<-sub.done
	}()

	sub.wake()
	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-subCtx.Done():
				unsubscribe()
				return
			case <-sub.lost:
				unsubscribe()
				if onError != nil {
					onError(ErrChangeFeedClosed)
				}
				return
			case <-sub.signal:
			}

			records, err := s.list(subCtx, path)
			select {
			case <-sub.done:
				return
			default:
			}
			if err != nil {
				unsubscribe()
				if subCtx.Err() == nil && onError != nil {
					onError(err)
				}
				return
			}
			if onSnapshot != nil {
				onSnapshot(records)
			}
		}
	}()
	return unsubscribe, nil
}

func (s *PostgresStore) list(ctx context.Context, path string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, is_completed, created_at, owner_id
		   FROM todos WHERE path=$1 ORDER BY id`,
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 16)
	for rows.Next() {
		var (
			rec       Record
			createdAt *time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.IsCompleted, &createdAt, &rec.OwnerID); err != nil {
			return nil, fmt.Errorf("scan todo row: %w", err)
		}
		rec.CreatedAt = createdAt
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todo rows: %w", err)
	}
	return out, nil
}

// changed wakes local subscribers directly and publishes for other processes.
// Our own notification comes back through dispatch and coalesces with the
// local wake-up.
func (s *PostgresStore) changed(ctx context.Context, path string) {
	s.wakePath(path)
	if err := s.notifier.Notify(ctx, path); err != nil {
		log.WithError(err).WithField("path", path).Warn("change notification failed")
	}
}

// dispatch wakes subscribers for every changed path. When the feed ends
// while the store is open, every subscription is ended with
// ErrChangeFeedClosed.
func (s *PostgresStore) dispatch(changes <-chan string) {
	for path := range changes {
		s.wakePath(path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.feedClosed = true
	log.WithError(ErrChangeFeedClosed).Error("ending todo subscriptions")
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.feedLost()
		}
	}
}

func (s *PostgresStore) wakePath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs[path] {
		sub.wake()
	}
}

func (s *PostgresStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for path, subs := range s.subs {
		for _, sub := range subs {
			sub.stop()
		}
		delete(s.subs, path)
	}
	s.mu.Unlock()

	s.cancel()
	err := s.notifier.Close()
	s.pool.Close()
	return err
}
