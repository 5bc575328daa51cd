// Package render implements the bounded-queue, delay-scheduled render
// pipeline shared by the audio, video, and subtitle renders: accept
// frames with an optional release callback, schedule delivery against the
// master clock, invoke the subclass's render function at the right time,
// drop late frames, and fire the release callback exactly once.
package render

import (
	"log/slog"
	"sync"
	"time"

	"github.com/avplayer/avcore/internal/avsync"
	"github.com/avplayer/avcore/media"
)

// QueueBound is the default maximum number of frames a Scheduler holds;
// the oldest is dropped (never the newest) on overflow.
const QueueBound = 100

// lateThresholdUs / earlyThresholdUs bound the video/subtitle drop-or-wait
// window described by §4.3: a frame more than 40ms late is dropped, one
// less than 5ms early is rendered now, anything earlier is rescheduled.
const (
	lateThresholdUs = 40_000
	earlyToleranceUs = -5_000
)

// ReleaseFunc is invoked exactly once per enqueued frame, with rendered
// set to whether the frame was actually handed to the sink.
type ReleaseFunc func(rendered bool)

// FrameRender is the subset of Audio/Video/SubtitleRender a decoder needs:
// hand it a frame and a release closure. Both concrete renders satisfy
// this through their embedded *Scheduler.
type FrameRender interface {
	RenderFrame(frame *media.Frame, release ReleaseFunc)
}

// Internal is implemented by each concrete render (audio/video/subtitle)
// to perform the actual sink write. For audio, the returned delay paces
// the next scheduling call; for video/subtitle the return value is
// ignored (the base class's drop/early-wait logic decides timing).
type Internal interface {
	RenderFrameInternal(frame *media.Frame) (nextDelayUs int64, err error)
}

// Kind selects which of the two scheduling policies OnRenderTask applies.
type Kind int

const (
	// KindPaced schedules strictly by the subclass-returned delay (audio).
	KindPaced Kind = iota
	// KindClockGated schedules against the master clock with drop/early-wait
	// policy (video, subtitle).
	KindClockGated
)

type queueEntry struct {
	frame   *media.Frame
	release ReleaseFunc
}

// Scheduler is the base render pipeline. Concrete renders embed it and
// supply an Internal implementation.
type Scheduler struct {
	log *slog.Logger

	mu         sync.Mutex
	queue      []queueEntry
	running    bool
	paused     bool
	generation int64
	bound      int

	runner *TaskRunner
	sync   *avsync.Controller
	kind   Kind
	impl   Internal
}

// NewScheduler constructs a Scheduler. impl is wired after the embedding
// render has constructed itself, via SetInternal, since Go has no
// virtual-dispatch-from-base-constructor.
func NewScheduler(log *slog.Logger, syncCtl *avsync.Controller, kind Kind) *Scheduler {
	return &Scheduler{
		log:    log,
		runner: NewTaskRunner(),
		sync:   syncCtl,
		kind:   kind,
		bound:  QueueBound,
	}
}

// SetInternal wires the concrete render's RenderFrameInternal. Must be
// called once, before Start.
func (s *Scheduler) SetInternal(impl Internal) {
	s.impl = impl
}

// RenderFrame enqueues frame for scheduled delivery. If the scheduler is
// not running, the frame is rejected immediately (release fires with
// rendered=false). If the queue is already at its bound, the oldest entry
// is dropped (rendered=false) to make room.
func (s *Scheduler) RenderFrame(frame *media.Frame, release ReleaseFunc) {
	var toRelease []queueEntry

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		fire(release, false)
		return
	}

	if len(s.queue) >= s.bound {
		toRelease = append(toRelease, s.queue[0])
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, queueEntry{frame: frame, release: release})

	shouldSchedule := !s.paused
	s.mu.Unlock()

	for _, e := range toRelease {
		fire(e.release, false)
	}
	if shouldSchedule {
		s.scheduleNext(0)
	}
}

// scheduleNext bumps the generation and posts a delayed render task
// carrying it; any in-flight task for a stale generation becomes a no-op.
func (s *Scheduler) scheduleNext(delayUs int64) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if delayUs < 0 {
		delayUs = 0
	}
	s.runner.PostDelayed(func() { s.onRenderTask(gen) }, time.Duration(delayUs)*time.Microsecond)
}

func (s *Scheduler) onRenderTask(generation int64) {
	s.mu.Lock()
	if !s.running || s.paused {
		s.mu.Unlock()
		return
	}
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	front := s.queue[0]
	syncCtl := s.sync
	kind := s.kind
	impl := s.impl
	s.mu.Unlock()

	switch kind {
	case KindPaced:
		s.renderPaced(front, impl)
	case KindClockGated:
		s.renderClockGated(front, impl, syncCtl)
	}
}

func (s *Scheduler) renderPaced(front queueEntry, impl Internal) {
	nextDelayUs, err := impl.RenderFrameInternal(front.frame)
	if err != nil && s.log != nil {
		s.log.Warn("render failed", "error", err)
	}

	s.mu.Lock()
	s.popFrontLocked(front)
	s.mu.Unlock()

	fire(front.release, true)
	s.scheduleNext(nextDelayUs)
}

func (s *Scheduler) renderClockGated(front queueEntry, impl Internal, syncCtl *avsync.Controller) {
	masterUs := int64(0)
	if syncCtl != nil {
		masterUs = syncCtl.GetMasterClock()
	}
	lateUs := masterUs - front.frame.PTS

	switch {
	case lateUs > lateThresholdUs:
		s.mu.Lock()
		s.popFrontLocked(front)
		s.mu.Unlock()
		fire(front.release, false)
		s.scheduleNext(0)

	case lateUs > earlyToleranceUs:
		if _, err := impl.RenderFrameInternal(front.frame); err != nil && s.log != nil {
			s.log.Warn("render failed", "error", err)
		}
		s.mu.Lock()
		s.popFrontLocked(front)
		s.mu.Unlock()
		fire(front.release, true)
		s.scheduleNext(0)

	default:
		s.scheduleNext(-lateUs)
	}
}

// popFrontLocked removes front from the head of the queue if it is still
// there. Caller must hold mu. A stale removal (front already popped by a
// concurrent Flush) is a silent no-op.
func (s *Scheduler) popFrontLocked(front queueEntry) {
	if len(s.queue) > 0 && s.queue[0].frame == front.frame {
		s.queue = s.queue[1:]
	}
}

// Start marks the scheduler running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
}

// Stop marks the scheduler not-running and releases all pending frames
// with rendered=false.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	pending := s.queue
	s.queue = nil
	s.generation++
	s.mu.Unlock()

	for _, e := range pending {
		fire(e.release, false)
	}
}

// Pause freezes delivery; no render fires while paused.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume unfreezes delivery and, if frames are queued, schedules the next
// one immediately.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	hasQueued := len(s.queue) > 0
	running := s.running
	s.mu.Unlock()

	if running && hasQueued {
		s.scheduleNext(0)
	}
}

// Flush releases every pending frame with rendered=false and bumps the
// generation so no in-flight task from before the flush can fire.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.generation++
	s.mu.Unlock()

	for _, e := range pending {
		fire(e.release, false)
	}
}

// Len reports the current queue depth, for tests and diagnostics.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsPaused reports whether the scheduler is currently paused.
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Close stops the underlying task runner goroutine. Call once the
// scheduler is permanently retired.
func (s *Scheduler) Close() {
	s.runner.Stop()
}

func fire(release ReleaseFunc, rendered bool) {
	if release != nil {
		release(rendered)
	}
}
