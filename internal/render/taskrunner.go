package render

import (
	"sync"
	"time"
)

// TaskRunner serializes scheduled work onto a single goroutine, the way
// every other long-lived component in the engine runs its own message
// loop. PostDelayed never runs fn synchronously, even for delay <= 0, so
// callers never re-enter their own lock.
type TaskRunner struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewTaskRunner starts the runner's loop goroutine.
func NewTaskRunner() *TaskRunner {
	tr := &TaskRunner{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go tr.loop()
	return tr
}

func (tr *TaskRunner) loop() {
	for {
		select {
		case fn := <-tr.tasks:
			fn()
		case <-tr.done:
			return
		}
	}
}

// PostDelayed schedules fn to run on the runner's loop goroutine after
// delay. A non-positive delay still defers to the next loop iteration
// rather than running inline.
func (tr *TaskRunner) PostDelayed(fn func(), delay time.Duration) {
	if delay <= 0 {
		tr.post(fn)
		return
	}
	time.AfterFunc(delay, func() { tr.post(fn) })
}

func (tr *TaskRunner) post(fn func()) {
	select {
	case tr.tasks <- fn:
	case <-tr.done:
	}
}

// Stop terminates the loop goroutine. Safe to call more than once.
func (tr *TaskRunner) Stop() {
	tr.once.Do(func() { close(tr.done) })
}
