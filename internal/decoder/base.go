// Package decoder implements the per-track decoder pipelines: a
// message-driven Base loop shared by all modes, and the Normal,
// Passthrough, Tunnel, and Subtitle decoders that each apply their own
// input/output policy on top of it.
package decoder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/avplayer/avcore/media"
)

// inputRetryDelay is how long the base waits before re-requesting input
// after observing WouldBlock, avoiding a busy loop against a source that
// has no data ready yet.
const inputRetryDelay = 10 * time.Millisecond

// Parent receives decoder-originated notifications, playing the role the
// Player State Machine plays for every decoder pipeline.
type Parent interface {
	OnDecoderError(trackType media.TrackType, err error)
	OnAudioOutputFormatChanged(format media.Format)
	OnVideoSizeChanged(format media.Format)
	OnTrackEndOfStream(trackType media.TrackType)
}

// Base is the message loop shared by every decoder mode: a single
// goroutine draining a command channel, preserving per-decoder message
// order the way the engine's own loop preserves its own.
type Base struct {
	log       *slog.Logger
	trackType media.TrackType
	parent    Parent

	cmds chan func()
	done chan struct{}
	stop sync.Once

	mu                  sync.Mutex
	pendingInputRequest bool
	generation          int64
}

// NewBase starts the loop goroutine and returns a ready Base.
func NewBase(log *slog.Logger, trackType media.TrackType, parent Parent) *Base {
	b := &Base{
		log:       log,
		trackType: trackType,
		parent:    parent,
		cmds:      make(chan func(), 64),
		done:      make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Base) loop() {
	for {
		select {
		case fn := <-b.cmds:
			fn()
		case <-b.done:
			return
		}
	}
}

// Post enqueues fn to run on the decoder's loop goroutine, preserving
// order with every other posted message.
func (b *Base) Post(fn func()) {
	select {
	case b.cmds <- fn:
	case <-b.done:
	}
}

// PostAndWait enqueues fn and blocks the caller until it has run, the way
// the engine's Pause and Seek operations block on a reply channel.
func (b *Base) PostAndWait(fn func() error) error {
	reply := make(chan error, 1)
	b.Post(func() { reply <- fn() })
	return <-reply
}

// Shutdown stops the loop goroutine. Safe to call more than once.
func (b *Base) Shutdown() {
	b.stop.Do(func() { close(b.done) })
}

// TrackType returns the track this decoder was created for.
func (b *Base) TrackType() media.TrackType { return b.trackType }

// BumpGeneration increments and returns the decoder's generation counter.
// Subclasses call this on Flush/Shutdown/reconfigure so that replies or
// timers tagged with a stale generation can be recognized and dropped.
func (b *Base) BumpGeneration() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	return b.generation
}

// Generation returns the current generation counter.
func (b *Base) Generation() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// ScheduleInputRetry arranges for fn to run on the loop goroutine after
// inputRetryDelay, de-duplicating concurrent retries via a pending flag:
// if a retry is already scheduled, this call is a no-op.
func (b *Base) ScheduleInputRetry(fn func()) {
	b.mu.Lock()
	if b.pendingInputRequest {
		b.mu.Unlock()
		return
	}
	b.pendingInputRequest = true
	b.mu.Unlock()

	time.AfterFunc(inputRetryDelay, func() {
		b.mu.Lock()
		b.pendingInputRequest = false
		b.mu.Unlock()
		b.Post(fn)
	})
}

// ReportError dispatches a single DecoderError notification to the
// parent state machine.
func (b *Base) ReportError(err error) {
	if b.parent != nil {
		b.parent.OnDecoderError(b.trackType, err)
	}
}

// NotifyAudioFormatChanged forwards an output format change to the parent.
func (b *Base) NotifyAudioFormatChanged(format media.Format) {
	if b.parent != nil {
		b.parent.OnAudioOutputFormatChanged(format)
	}
}

// NotifyVideoSizeChanged forwards a video size change to the parent.
func (b *Base) NotifyVideoSizeChanged(format media.Format) {
	if b.parent != nil {
		b.parent.OnVideoSizeChanged(format)
	}
}

// NotifyEndOfStream forwards the track's end-of-stream condition to the
// parent, which aggregates it across tracks into overall completion.
func (b *Base) NotifyEndOfStream() {
	if b.parent != nil {
		b.parent.OnTrackEndOfStream(b.trackType)
	}
}
