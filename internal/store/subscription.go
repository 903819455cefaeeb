package store

import (
	"context"
	"sync"
)

// snapshotSub delivers snapshots to one subscriber from its own goroutine.
// Undelivered snapshots are replaced by newer ones, so a slow subscriber skips
// intermediate states but never sees them out of order.
type snapshotSub struct {
	latest chan []Record
	done   chan struct{}
	once   sync.Once
}

func newSnapshotSub() *snapshotSub {
	return &snapshotSub{
		latest: make(chan []Record, 1),
		done:   make(chan struct{}),
	}
}

// offer must be called with the owning store's lock held so offers are
// serialised in emission order.
func (s *snapshotSub) offer(records []Record) {
	select {
	case s.latest <- records:
		return
	default:
	}
	select {
	case <-s.latest:
	default:
	}
	select {
	case s.latest <- records:
	default:
	}
}

func (s *snapshotSub) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *snapshotSub) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *snapshotSub) run(ctx context.Context, onSnapshot SnapshotFunc, unsubscribe func()) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			unsubscribe()
			return
		case records := <-s.latest:
			if s.stopped() {
				return
			}
			if onSnapshot != nil {
				onSnapshot(records)
			}
		}
	}
}
