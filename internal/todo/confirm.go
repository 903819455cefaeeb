package todo

import (
	"sync"
	"time"
)

// DefaultDeleteWindow is how long a delete waits for its confirming click.
const DefaultDeleteWindow = 3 * time.Second

type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// DeleteSequencer implements two-click delete. At most one task is pending;
// a click on another task moves the marker and abandons the first.
type DeleteSequencer struct {
	window   time.Duration
	after    afterFunc
	onDelete func(taskID string)
	onChange func()

	mu      sync.Mutex
	pending string
	seq     uint64
	timer   timer
}

func NewDeleteSequencer(window time.Duration, onDelete func(taskID string), onChange func()) *DeleteSequencer {
	if window <= 0 {
		window = DefaultDeleteWindow
	}
	return &DeleteSequencer{
		window:   window,
		after:    realAfterFunc,
		onDelete: onDelete,
		onChange: onChange,
	}
}

// Click registers a delete intent and reports whether it confirmed a delete.
func (d *DeleteSequencer) Click(taskID string) bool {
	if taskID == "" {
		return false
	}

	d.mu.Lock()
	if d.pending == taskID {
		d.pending = ""
		d.seq++
		d.stopTimerLocked()
		d.mu.Unlock()

		if d.onDelete != nil {
			d.onDelete(taskID)
		}
		d.notify()
		return true
	}

	d.stopTimerLocked()
	d.seq++
	seq := d.seq
	d.pending = taskID
	d.timer = d.after(d.window, func() { d.expire(taskID, seq) })
	d.mu.Unlock()

	d.notify()
	return false
}

func (d *DeleteSequencer) Pending() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels the pending marker without deleting.
func (d *DeleteSequencer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.pending = ""
	d.seq++
}

// expire clears the marker only if it still belongs to the click that armed
// this timer.
func (d *DeleteSequencer) expire(taskID string, seq uint64) {
	d.mu.Lock()
	if d.seq != seq || d.pending != taskID {
		d.mu.Unlock()
		return
	}
	d.pending = ""
	d.timer = nil
	d.mu.Unlock()
	d.notify()
}

func (d *DeleteSequencer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *DeleteSequencer) notify() {
	if d.onChange != nil {
		d.onChange()
	}
}
