package todo

import (
	"context"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/tasklist/internal/observability"
	"github.com/ent0n29/tasklist/internal/store"
)

// Reconcile turns a full snapshot into the ordered task list. Tasks are sorted
// by created_at ascending; a missing timestamp sorts first and ties fall back
// to the id so the order is total.
func Reconcile(records []store.Record) []Task {
	out := make([]Task, 0, len(records))
	for _, r := range records {
		out = append(out, taskFromRecord(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CreatedAt, out[j].CreatedAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out
}

// Reconciler holds the list for one subscription at a time. Every snapshot
// replaces the list wholesale; an error keeps the last list.
type Reconciler struct {
	metrics  *observability.Metrics
	onChange func()

	mu          sync.Mutex
	tasks       []Task
	loading     bool
	generation  uint64
	path        string
	unsubscribe func()
}

func NewReconciler(metrics *observability.Metrics, onChange func()) *Reconciler {
	return &Reconciler{
		metrics:  metrics,
		onChange: onChange,
		loading:  true,
	}
}

// Attach tears down any previous subscription and opens one on path. A nil
// store only clears the loading flag.
func (r *Reconciler) Attach(ctx context.Context, st store.Store, path string) {
	r.mu.Lock()
	prev := r.unsubscribe
	r.unsubscribe = nil
	r.generation++
	gen := r.generation
	if st == nil {
		r.loading = false
		r.path = ""
		r.mu.Unlock()
		if prev != nil {
			prev()
		}
		r.notify()
		return
	}
	if path != r.path {
		r.tasks = nil
	}
	r.path = path
	r.loading = true
	r.mu.Unlock()

	if prev != nil {
		prev()
	}
	r.notify()

	entry := log.WithField("path", path)
	entry.Info("listening for task snapshots")
	unsubscribe, err := st.Subscribe(ctx, path,
		func(records []store.Record) { r.applySnapshot(gen, records) },
		func(err error) { r.applyError(gen, err) },
	)
	if err != nil {
		r.applyError(gen, err)
		return
	}

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		unsubscribe()
		return
	}
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
}

// Detach closes the current subscription. Snapshots still in flight for it
// are dropped.
func (r *Reconciler) Detach() {
	r.mu.Lock()
	r.generation++
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (r *Reconciler) Tasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneTasks(r.tasks)
}

func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

func (r *Reconciler) applySnapshot(gen uint64, records []store.Record) {
	tasks := Reconcile(records)

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		r.metrics.ObserveSnapshot("stale")
		return
	}
	r.tasks = tasks
	r.loading = false
	path := r.path
	r.mu.Unlock()

	r.metrics.ObserveSnapshot("applied")
	log.WithField("path", path).WithField("count", len(tasks)).Debug("real-time update received")
	r.notify()
}

func (r *Reconciler) applyError(gen uint64, err error) {
	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		return
	}
	r.loading = false
	path := r.path
	r.mu.Unlock()

	r.metrics.ObserveSnapshot("error")
	log.WithError(err).WithField("path", path).Error("error getting real-time updates")
	r.notify()
}

func (r *Reconciler) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}
