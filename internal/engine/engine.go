// Package engine implements the Player State Machine: the top-level
// orchestrator that owns the source, the AVSync controller, the audio
// device, the codec factory, and up to two decoder pipelines (audio,
// video) with their renders. It runs on its own message loop, exactly
// like each decoder's Base loop, and coordinates prepare / start /
// pause / seek / reset through a deferred-action queue gated by a
// per-track flush matrix.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avplayer/avcore/codec"
	"github.com/avplayer/avcore/internal/avsync"
	"github.com/avplayer/avcore/internal/decoder"
	"github.com/avplayer/avcore/internal/render"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/sink"
	"github.com/avplayer/avcore/source"
	"github.com/avplayer/avcore/status"
)

// scanRetryDelay is how long ScanSources waits before retrying a track
// whose decoder factory returned status.WouldBlock (e.g. codec hardware
// momentarily unavailable).
const scanRetryDelay = time.Second

// Listener receives player-level notifications, the engine's analogue of
// the source's Notify interface one layer up.
type Listener interface {
	OnError(err error)
	OnCompletion()
	OnVideoSizeChanged(width, height int, format media.PixelFormat)
	OnBufferingStart()
	OnBufferingUpdate(percent int)
	OnBufferingEnd()
}

// CodecFactory creates a codec.Codec for the given format/track. videoSink
// is non-nil only when constructing a tunnel-mode video codec, matching
// codec.Config.VideoSink.
type CodecFactory func(format media.Format, trackType media.TrackType, videoSink any) (codec.Codec, error)

// Config configures an Engine. Source and CodecFactory are required;
// AudioDevice may be nil (no audio track will ever be instantiated).
type Config struct {
	Log                       *slog.Logger
	Source                    source.Source
	AudioDevice               sink.AudioDevice
	CodecFactory              CodecFactory
	TunnelRequested           bool
	AudioPassthroughRequested bool
	Listener                  Listener
}

// decoderHandle is the lifecycle subset of Normal/Passthrough/Tunnel/
// Subtitle every decoder mode shares; the engine drives decoders only
// through this, never caring which concrete mode backs a track.
type decoderHandle interface {
	Start() error
	Pause() error
	Resume() error
	Flush() error
	Shutdown() error
}

// flushPhase tracks one track's progress through a flush or shutdown.
type flushPhase int

const (
	flushNone flushPhase = iota
	flushing
	flushed
	shuttingDown
	shutDown
)

type trackFlush struct {
	phase       flushPhase
	decoderDone bool
	renderDone  bool
}

// terminal reports whether the track has reached a state from which the
// deferred queue may keep dispatching (spec.md's {None, Flushed, ShutDown}).
func (f trackFlush) terminal() bool {
	return f.phase == flushNone || f.phase == flushed || f.phase == shutDown
}

// Engine is the Player State Machine.
type Engine struct {
	log *slog.Logger
	cfg Config

	cmds chan func()
	done chan struct{}
	stop sync.Once

	mu sync.Mutex

	sync *avsync.Controller

	prepared                   bool
	pendingStartIfPrepareAsync bool
	started                    bool

	pausedForBuffering bool
	pausedByClient     bool

	videoSink sink.VideoRenderSink

	scanGeneration int64

	audioDecoder decoderHandle
	audioRender  *render.AudioRender
	audioFlush   trackFlush
	audioErrored bool
	audioEOS     bool

	videoDecoder decoderHandle
	videoRender  *render.VideoRender
	videoFlush   trackFlush
	videoErrored bool
	videoEOS     bool

	deferred []deferredAction

	startCtx context.Context
}

// contextOrBackground returns the context captured by the most recent
// Start call, falling back to context.Background() when Start has not
// been called yet (e.g. a Reset issued before any Start runs
// PerformReset, which stops the source with this context), so call sites
// need no nil check of their own.
func (e *Engine) contextOrBackground() context.Context {
	if e.startCtx != nil {
		return e.startCtx
	}
	return context.Background()
}

// New constructs an Engine and starts its message loop. The source's
// Notify is wired to the engine immediately.
func New(cfg Config) *Engine {
	e := &Engine{
		log:  cfg.Log,
		cfg:  cfg,
		cmds: make(chan func(), 64),
		done: make(chan struct{}),
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("component", "engine")
	go e.loop()
	if cfg.Source != nil {
		cfg.Source.SetNotify(e)
	}
	return e
}

func (e *Engine) loop() {
	for {
		select {
		case fn := <-e.cmds:
			fn()
		case <-e.done:
			return
		}
	}
}

// Post enqueues fn to run on the engine's loop goroutine.
func (e *Engine) Post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.done:
	}
}

// PostAndWait enqueues fn and blocks until it has run, backing every
// synchronous entry point (Prepare, Pause, Seek, Reset, ...).
func (e *Engine) PostAndWait(fn func() error) error {
	reply := make(chan error, 1)
	e.Post(func() { reply <- fn() })
	return <-reply
}

// Shutdown tears down the engine's loop and any instantiated decoders.
// Safe to call more than once.
func (e *Engine) Shutdown() {
	select {
	case <-e.done:
		return
	default:
	}
	_ = e.PostAndWait(func() error {
		e.shutdownTrack(media.TrackAudio)
		e.shutdownTrack(media.TrackVideo)
		return nil
	})
	e.stop.Do(func() { close(e.done) })
}

func (e *Engine) shutdownTrack(trackType media.TrackType) {
	switch trackType {
	case media.TrackAudio:
		if e.audioDecoder != nil {
			_ = e.audioDecoder.Shutdown()
			e.audioDecoder = nil
		}
		if e.audioRender != nil {
			e.audioRender.Stop()
			e.audioRender.Close()
			e.audioRender = nil
		}
	case media.TrackVideo:
		if e.videoDecoder != nil {
			_ = e.videoDecoder.Shutdown()
			e.videoDecoder = nil
		}
		if e.videoRender != nil {
			e.videoRender.Stop()
			e.videoRender.Close()
			e.videoRender = nil
		}
	}
}

// Prepare asks the source to prepare; completion arrives asynchronously
// through OnPrepared.
func (e *Engine) Prepare(ctx context.Context) error {
	return e.PostAndWait(func() error {
		return e.cfg.Source.Prepare(ctx)
	})
}

// Start requests playback to begin. If the source has not yet finished
// preparing, the start is deferred until OnPrepared arrives — per spec.md,
// no decoders are created before that point.
func (e *Engine) Start(ctx context.Context) error {
	return e.PostAndWait(func() error {
		e.startCtx = ctx
		if !e.prepared {
			e.pendingStartIfPrepareAsync = true
			return nil
		}
		return e.onStart(ctx)
	})
}

// onStart starts the source, creates the AVSync controller if absent,
// scans for instantiable decoders, starts every render, and reposts
// ScanSources to pick up tracks/sinks that appear later. Runs on the
// loop goroutine.
func (e *Engine) onStart(ctx context.Context) error {
	if err := e.cfg.Source.Start(ctx); err != nil {
		return err
	}
	if e.sync == nil {
		e.sync = avsync.New()
	}
	e.started = true

	e.scanSources(ctx)
	e.scheduleScanRetry(ctx)
	return nil
}

// Pause applies user-pause; decoders/renders freeze while either the
// user-pause or the buffered-pause bit is set and resume only once both
// are clear (applyPauseState enforces this — the two bits are independent).
func (e *Engine) Pause() error {
	return e.PostAndWait(func() error {
		e.pausedByClient = true
		e.applyPauseState()
		return nil
	})
}

// Resume clears user-pause.
func (e *Engine) Resume() error {
	return e.PostAndWait(func() error {
		e.pausedByClient = false
		e.applyPauseState()
		return nil
	})
}

// applyPauseState pauses decoders/renders when either pause bit is set,
// and resumes them only when both are clear. Calling it redundantly
// (pause-while-paused, resume-while-running) is a no-op, satisfying the
// round-trip idempotence property.
func (e *Engine) applyPauseState() {
	shouldPause := e.pausedByClient || e.pausedForBuffering

	if shouldPause {
		if e.audioDecoder != nil {
			_ = e.audioDecoder.Pause()
		}
		if e.audioRender != nil {
			e.audioRender.Pause()
		}
		if e.videoDecoder != nil {
			_ = e.videoDecoder.Pause()
		}
		if e.videoRender != nil {
			e.videoRender.Pause()
		}
		return
	}

	if e.audioDecoder != nil {
		_ = e.audioDecoder.Resume()
	}
	if e.audioRender != nil {
		e.audioRender.Resume()
	}
	if e.videoDecoder != nil {
		_ = e.videoDecoder.Resume()
	}
	if e.videoRender != nil {
		e.videoRender.Resume()
	}
}

// SetPlaybackRate forwards to the sync controller (and, when an audio
// render exists, its hardware rate path).
func (e *Engine) SetPlaybackRate(rate float64) error {
	return e.PostAndWait(func() error {
		if e.audioRender != nil {
			return e.audioRender.SetPlaybackRate(rate)
		}
		if e.sync != nil {
			e.sync.SetPlaybackRate(rate)
		}
		return nil
	})
}

// GetPlaybackRate returns the sync controller's current rate, or 1.0 if
// no AVSync controller exists yet.
func (e *Engine) GetPlaybackRate() float64 {
	var rate float64 = 1.0
	_ = e.PostAndWait(func() error {
		if e.sync != nil {
			rate = e.sync.GetPlaybackRate()
		}
		return nil
	})
	return rate
}

// GetMasterClock returns the current master clock reading, or 0 if no
// AVSync controller exists yet.
func (e *Engine) GetMasterClock() int64 {
	var clock int64
	_ = e.PostAndWait(func() error {
		if e.sync != nil {
			clock = e.sync.GetMasterClock()
		}
		return nil
	})
	return clock
}

// reportError implements the propagation policy of spec.md §7: the
// listener's OnError fires once per track; repeated errors on an
// already-errored track are collapsed.
func (e *Engine) reportError(trackType media.TrackType, err error) {
	already := false
	switch trackType {
	case media.TrackAudio:
		already = e.audioErrored
		e.audioErrored = true
	case media.TrackVideo:
		already = e.videoErrored
		e.videoErrored = true
	}
	if already {
		return
	}
	if e.cfg.Listener != nil {
		e.cfg.Listener.OnError(err)
	}
}

// isWouldBlock/isEndOfStream are small readability wrappers over
// errors.Is against the shared status sentinels.
func isWouldBlock(err error) bool   { return errors.Is(err, status.WouldBlock) }
func isEndOfStream(err error) bool  { return errors.Is(err, status.EndOfStream) }
