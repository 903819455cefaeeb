package todo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ent0n29/tasklist/internal/generation"
	"github.com/ent0n29/tasklist/internal/store"
)

type capturedSub struct {
	path         string
	onSnapshot   store.SnapshotFunc
	onError      store.ErrorFunc
	unsubscribed bool
}

// captureStore records writes and hands subscription callbacks to the test.
type captureStore struct {
	mu           sync.Mutex
	creates      []store.Record
	updates      map[string]store.Patch
	deletes      []string
	subs         []*capturedSub
	subscribeErr error
	writeErr     error
}

func newCaptureStore() *captureStore {
	return &captureStore{updates: make(map[string]store.Patch)}
}

func (s *captureStore) Create(_ context.Context, path string, r store.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return "", s.writeErr
	}
	s.creates = append(s.creates, r)
	return path + "#" + r.Text, nil
}

func (s *captureStore) Update(_ context.Context, _ string, id string, p store.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.updates[id] = p
	return nil
}

func (s *captureStore) Delete(_ context.Context, _ string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.deletes = append(s.deletes, id)
	return nil
}

func (s *captureStore) Subscribe(_ context.Context, path string, onSnapshot store.SnapshotFunc, onError store.ErrorFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	sub := &capturedSub{path: path, onSnapshot: onSnapshot, onError: onError}
	s.subs = append(s.subs, sub)
	return func() {
		s.mu.Lock()
		sub.unsubscribed = true
		s.mu.Unlock()
	}, nil
}

func (s *captureStore) Close() error { return nil }

// hangingStore blocks every create until its context ends.
type hangingStore struct {
	*captureStore
}

func (s hangingStore) Create(ctx context.Context, _ string, _ store.Record) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (s *captureStore) sub(i int) *capturedSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[i]
}

func (s *captureStore) createdTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.creates))
	for _, r := range s.creates {
		out = append(out, r.Text)
	}
	return out
}

func (s *captureStore) deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

// scriptedGenerator returns a fixed answer and records requests. When gate is
// set, Generate signals entered and blocks until gate is closed.
type scriptedGenerator struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []generation.Request
	entered  chan struct{}
	gate     chan struct{}
}

func (g *scriptedGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	entered, gate := g.entered, g.gate
	g.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	if g.text == "" {
		return "", generation.ErrEmptyResult
	}
	return g.text, nil
}

func (g *scriptedGenerator) calls() []generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.Request(nil), g.requests...)
}

var errBoom = errors.New("boom")

// fakeTimers stands in for time.AfterFunc; tests fire timers explicitly.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *fakeTimers) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeTimers) get(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}
