package todo

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/tasklist/internal/observability"
	"github.com/ent0n29/tasklist/internal/store"
)

const defaultWriteTimeout = 10 * time.Second

// Gateway submits task writes. Calls return immediately; the outcome is only
// visible through the next snapshot, and failures are logged.
type Gateway struct {
	store        store.Store
	appID        string
	metrics      *observability.Metrics
	now          func() time.Time
	writeTimeout time.Duration

	wg sync.WaitGroup
}

// NewGateway accepts a nil store; every operation is then a no-op.
func NewGateway(st store.Store, appID string, metrics *observability.Metrics) *Gateway {
	return &Gateway{
		store:        st,
		appID:        appID,
		metrics:      metrics,
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
	}
}

// Ready reports whether a store handle is configured.
func (g *Gateway) Ready() bool {
	return g != nil && g.store != nil
}

// Path returns the collection written for ownerID.
func (g *Gateway) Path(ownerID string) string {
	return store.CollectionPath(g.appID, ownerID)
}

func (g *Gateway) Create(text, ownerID string) {
	if !g.Ready() || strings.TrimSpace(text) == "" || ownerID == "" {
		return
	}
	g.async(func(ctx context.Context) {
		_ = g.submitCreate(ctx, text, ownerID)
	})
}

// ToggleComplete writes the negation of current to is_completed only.
func (g *Gateway) ToggleComplete(ownerID, taskID string, current bool) {
	if !g.Ready() || ownerID == "" || taskID == "" {
		return
	}
	next := !current
	g.async(func(ctx context.Context) {
		err := g.store.Update(ctx, g.Path(ownerID), taskID, store.Patch{IsCompleted: &next})
		g.metrics.ObserveStoreWrite("update", err)
		if err != nil {
			log.WithError(err).WithField("task_id", taskID).Error("error updating document")
		}
	})
}

func (g *Gateway) Delete(ownerID, taskID string) {
	if !g.Ready() || ownerID == "" || taskID == "" {
		return
	}
	g.async(func(ctx context.Context) {
		err := g.store.Delete(ctx, g.Path(ownerID), taskID)
		g.metrics.ObserveStoreWrite("delete", err)
		if err != nil {
			log.WithError(err).WithField("task_id", taskID).Error("error deleting document")
		}
	})
}

// Wait blocks until every submitted write has finished.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// submitCreate is the awaited form of Create used where the caller reacts to
// completion (input clearing, breakdown fanout). Blank text is skipped; a
// missing store or owner is an error so callers never mistake it for a write.
func (g *Gateway) submitCreate(ctx context.Context, text, ownerID string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !g.Ready() || ownerID == "" {
		return ErrNoSession
	}
	now := g.now().UTC()
	path := g.Path(ownerID)
	id, err := g.store.Create(ctx, path, store.Record{
		Text:        text,
		IsCompleted: false,
		CreatedAt:   &now,
		OwnerID:     ownerID,
	})
	g.metrics.ObserveStoreWrite("create", err)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("error adding document")
		return err
	}
	log.WithField("path", path).WithField("task_id", id).Debug("task added")
	return nil
}

// async detaches the write from the caller so it completes even if the
// client that issued it goes away.
func (g *Gateway) async(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.writeTimeout)
		defer cancel()
		fn(ctx)
	}()
}
