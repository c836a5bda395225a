package watcher

import (
	"sync"
	"time"
)

// pendingPath is the debounce state of one path.
type pendingPath struct {
	lastSeen time.Time
	timer    *time.Timer
	gen      uint64
}

// Debouncer coalesces bursts of touches per path into a single emit, fired
// once the path has been quiet for the interval. Paths debounce independently.
//
// Each Touch replaces the path's scheduled task under the lock: the old timer is
// stopped and the generation bumped. An expiry that already started before the
// replacement sees a stale generation and does nothing, so one burst emits once.
type Debouncer struct {
	interval time.Duration
	emit     func(path string)

	mu      sync.Mutex
	pending map[string]*pendingPath
	gen     uint64
	stopped bool
	now     func() time.Time
}

// NewDebouncer returns a debouncer calling emit for every settled path.
// emit runs on a timer goroutine and must not block for long.
func NewDebouncer(interval time.Duration, emit func(path string)) *Debouncer {
	return &Debouncer{
		interval: interval,
		emit:     emit,
		pending:  make(map[string]*pendingPath),
		now:      time.Now,
	}
}

// Touch records activity on path and (re)starts its quiet period.
func (d *Debouncer) Touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.gen++
	gen := d.gen

	p, ok := d.pending[path]
	if !ok {
		p = &pendingPath{}
		d.pending[path] = p
	} else if p.timer != nil {
		p.timer.Stop()
	}
	p.lastSeen = d.now()
	p.gen = gen
	p.timer = time.AfterFunc(d.interval, func() { d.fire(path, gen) })
}

func (d *Debouncer) fire(path string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if d.stopped || !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	d.emit(path)
}

// Pending returns the number of paths waiting for their quiet period to end.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// LastSeen returns when path was last touched, if it is still pending.
func (d *Debouncer) LastSeen(path string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[path]
	if !ok {
		return time.Time{}, false
	}
	return p.lastSeen, true
}

// Stop cancels every pending path and ignores later touches.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for path, p := range d.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(d.pending, path)
	}
}
