package todo

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/tasklist/internal/generation"
	"github.com/ent0n29/tasklist/internal/identity"
	"github.com/ent0n29/tasklist/internal/observability"
	"github.com/ent0n29/tasklist/internal/session"
)

// Options wires a Client. Gateway is shared between clients so writes can be
// drained at shutdown.
type Options struct {
	Gateway      *Gateway
	Provider     identity.Provider
	Generator    generation.Client
	Metrics      *observability.Metrics
	DeleteWindow time.Duration
}

// Client is the session-scoped to-do list: one identity, one subscription,
// one input field, one pending delete and one generation guard.
type Client struct {
	gateway    *Gateway
	resolver   *session.Resolver
	reconciler *Reconciler
	fanout     *Fanout
	deletes    *DeleteSequencer

	mu          sync.Mutex
	input       string
	userID      string
	started     bool
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}
	watchers    map[int]chan State
	nextWatchID int

	// pubMu orders state publication so a later state is never overwritten
	// by an earlier one.
	pubMu sync.Mutex
}

func NewClient(opts Options) *Client {
	gateway := opts.Gateway
	if gateway == nil {
		gateway = NewGateway(nil, "", opts.Metrics)
	}
	c := &Client{
		gateway:  gateway,
		watchers: make(map[int]chan State),
		done:     make(chan struct{}),
	}
	if opts.Provider != nil {
		c.resolver = session.NewResolver(opts.Provider)
	}
	c.reconciler = NewReconciler(opts.Metrics, c.publish)
	c.fanout = NewFanout(opts.Generator, gateway, opts.Metrics, c.publish)
	c.deletes = NewDeleteSequencer(opts.DeleteWindow, c.deleteConfirmed, c.publish)
	return c
}

// Start resolves the session and follows it. Without a store the client
// stays empty and never signs in.
func (c *Client) Start(ctx context.Context, bearerToken string) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if !c.gateway.Ready() || c.resolver == nil {
		if !c.gateway.Ready() {
			log.Error("document store is not configured, task list is unavailable")
		} else {
			log.Error("identity provider is not configured, task list is unavailable")
		}
		c.reconciler.Attach(ctx, nil, "")
		close(c.done)
		return
	}

	c.resolver.Start(ctx, bearerToken)
	sessions, stop := c.resolver.Watch()
	go func() {
		defer close(c.done)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-sessions:
				if !ok {
					return
				}
				c.follow(ctx, s)
			}
		}
	}()
}

// follow re-attaches the reconciler when the identity changes.
func (c *Client) follow(ctx context.Context, s session.Session) {
	c.mu.Lock()
	if c.closed || s.UserID == c.userID {
		c.mu.Unlock()
		return
	}
	c.userID = s.UserID
	c.mu.Unlock()

	c.deletes.Stop()
	c.reconciler.Attach(ctx, c.gateway.store, c.gateway.Path(s.UserID))
}

// State returns a consistent copy of everything a renderer shows.
func (c *Client) State() State {
	c.mu.Lock()
	input := c.input
	userID := c.userID
	c.mu.Unlock()

	tasks := c.reconciler.Tasks()
	generating := c.fanout.Generating()
	return State{
		UserID:        userID,
		Tasks:         tasks,
		Loading:       c.reconciler.Loading(),
		Input:         input,
		PendingDelete: c.deletes.Pending(),
		Generating:    generating,
		Status:        c.fanout.Status(),
		StoreReady:    c.gateway.Ready(),
		CanBreakdown:  !generating && strings.TrimSpace(input) != "" && userID != "" && c.gateway.Ready(),
		CanSummarize:  !generating && len(tasks) > 0,
	}
}

// Watch streams state changes. Slow readers only see the latest state; the
// current state is delivered immediately.
func (c *Client) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.nextWatchID++
	id := c.nextWatchID
	c.watchers[id] = ch
	c.mu.Unlock()

	c.publish()

	return ch, func() {
		c.pubMu.Lock()
		defer c.pubMu.Unlock()
		c.mu.Lock()
		defer c.mu.Unlock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
	}
}

func (c *Client) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
	c.publish()
}

// AddTask creates a task from text, or from the input field when text is
// empty. The input is cleared once the write succeeds.
func (c *Client) AddTask(text string) {
	c.mu.Lock()
	if strings.TrimSpace(text) == "" {
		text = c.input
	}
	userID := c.userID
	c.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" || userID == "" || !c.gateway.Ready() {
		return
	}
	c.gateway.async(func(ctx context.Context) {
		if err := c.gateway.submitCreate(ctx, text, userID); err != nil {
			return
		}
		c.mu.Lock()
		cleared := strings.TrimSpace(c.input) == text
		if cleared {
			c.input = ""
		}
		c.mu.Unlock()
		if cleared {
			c.publish()
		}
	})
}

// ToggleTask flips completion of a task in the current list.
func (c *Client) ToggleTask(taskID string) {
	userID := c.currentUser()
	for _, t := range c.reconciler.Tasks() {
		if t.ID == taskID {
			c.gateway.ToggleComplete(userID, taskID, t.IsCompleted)
			return
		}
	}
}

// ClickDelete is a delete intent; it reports whether the task was deleted.
func (c *Client) ClickDelete(taskID string) bool {
	return c.deletes.Click(taskID)
}

// Breakdown decomposes the input (or text, when given) into sub-tasks. The
// request outlives ctx cancellation; its result is dropped after Close.
// Without a signed-in user no request is made and the input is kept.
func (c *Client) Breakdown(ctx context.Context, text string) error {
	if strings.TrimSpace(text) != "" {
		c.SetInput(text)
	}
	c.mu.Lock()
	input := c.input
	userID := c.userID
	c.mu.Unlock()

	err := c.fanout.Breakdown(context.WithoutCancel(ctx), input, userID)
	if err == nil {
		c.SetInput("")
	}
	return err
}

func (c *Client) Summarize(ctx context.Context) error {
	return c.fanout.Summarize(context.WithoutCancel(ctx), c.reconciler.Tasks())
}

// Close tears down the subscription and closes all watch channels. Writes
// already submitted still complete.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-c.done
	}
	if c.resolver != nil {
		c.resolver.Close()
	}
	c.reconciler.Detach()
	c.deletes.Stop()

	c.pubMu.Lock()
	c.mu.Lock()
	for id, ch := range c.watchers {
		delete(c.watchers, id)
		close(ch)
	}
	c.mu.Unlock()
	c.pubMu.Unlock()
}

func (c *Client) currentUser() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) deleteConfirmed(taskID string) {
	c.gateway.Delete(c.currentUser(), taskID)
}

func (c *Client) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	if c.closed || len(c.watchers) == 0 {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	st := c.State()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.watchers {
		publishState(ch, st)
	}
}

func publishState(ch chan State, st State) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- st:
	default:
	}
}
