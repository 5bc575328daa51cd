// Package player is the public façade over the avplayer core: a Builder
// and a Player handle exposing the lifecycle operations of spec.md
// §4.11/§6 (Prepare/Start/Pause/Resume/Seek/Reset/SetVideoRenderSink),
// delegating everything to internal/engine — the package itself carries
// no playback logic of its own.
package player

import (
	"context"
	"errors"
	"log/slog"

	"github.com/avplayer/avcore/internal/engine"
	"github.com/avplayer/avcore/sink"
	"github.com/avplayer/avcore/source"
)

// Listener receives player-level notifications: errors, completion,
// video-size changes, and buffering state transitions.
type Listener = engine.Listener

// CodecFactory creates a codec.Codec for a track/format pair, as required
// by every lazily-instantiated decoder.
type CodecFactory = engine.CodecFactory

// Config configures a Player built via Builder. Source and CodecFactory
// are required; everything else is optional.
type Config struct {
	Log *slog.Logger

	Source       source.Source
	AudioDevice  sink.AudioDevice
	VideoSink    sink.VideoRenderSink
	CodecFactory CodecFactory

	TunnelRequested           bool
	AudioPassthroughRequested bool

	Listener Listener
}

var (
	errNoSource       = errors.New("player: Config.Source is required")
	errNoCodecFactory = errors.New("player: Config.CodecFactory is required")
)

// Builder constructs a Player from a Config.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder for cfg.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// Build validates cfg and constructs the Player's engine. If a VideoSink
// was supplied up front, it is wired in before Build returns so the
// engine can instantiate a video decoder as soon as a video track and
// Start arrive.
func (b *Builder) Build() (*Player, error) {
	if b.cfg.Source == nil {
		return nil, errNoSource
	}
	if b.cfg.CodecFactory == nil {
		return nil, errNoCodecFactory
	}

	e := engine.New(engine.Config{
		Log:                       b.cfg.Log,
		Source:                    b.cfg.Source,
		AudioDevice:               b.cfg.AudioDevice,
		CodecFactory:              b.cfg.CodecFactory,
		TunnelRequested:           b.cfg.TunnelRequested,
		AudioPassthroughRequested: b.cfg.AudioPassthroughRequested,
		Listener:                  b.cfg.Listener,
	})

	p := &Player{engine: e}

	if b.cfg.VideoSink != nil {
		if err := e.SetVideoRenderSink(b.cfg.VideoSink); err != nil {
			e.Shutdown()
			return nil, err
		}
	}

	return p, nil
}

// Player is the public playback handle: every method is a thin
// post-and-wait (or fire-and-forget, for notification-driven operations)
// delegation onto the underlying engine's message loop.
type Player struct {
	engine *engine.Engine
}

// Prepare asks the source to prepare. Completion arrives asynchronously;
// a Start issued before it completes is deferred (spec.md scenario S5).
func (p *Player) Prepare(ctx context.Context) error { return p.engine.Prepare(ctx) }

// Start begins playback once the source has prepared.
func (p *Player) Start(ctx context.Context) error { return p.engine.Start(ctx) }

// Pause blocks until the state machine has acknowledged the user-pause.
func (p *Player) Pause() error { return p.engine.Pause() }

// Resume clears the user-pause bit; playback resumes only once the
// buffered-pause bit is also clear.
func (p *Player) Resume() error { return p.engine.Resume() }

// Seek blocks until the source has returned a status for the seek.
func (p *Player) Seek(ctx context.Context, ptsUs int64, mode source.SeekMode) error {
	return p.engine.Seek(ctx, ptsUs, mode)
}

// Reset tears down both decoder pipelines and stops the source, returning
// the Player to a state ready for a fresh Prepare/Start cycle.
func (p *Player) Reset() error { return p.engine.Reset() }

// SetVideoRenderSink swaps the video sink, inline when the current video
// pipeline can simply accept it, or via a flush-and-rescan when it
// cannot (e.g. a tunnel-mode decoder bound to the old sink).
func (p *Player) SetVideoRenderSink(s sink.VideoRenderSink) error {
	return p.engine.SetVideoRenderSink(s)
}

// SetPlaybackRate changes the AVSync controller's (and, when supported,
// the audio hardware's) playback rate.
func (p *Player) SetPlaybackRate(rate float64) error { return p.engine.SetPlaybackRate(rate) }

// GetPlaybackRate returns the current playback rate.
func (p *Player) GetPlaybackRate() float64 { return p.engine.GetPlaybackRate() }

// GetMasterClock returns the current master clock reading, in
// microseconds.
func (p *Player) GetMasterClock() int64 { return p.engine.GetMasterClock() }

// Shutdown tears down the Player's engine loop and any instantiated
// decoders. Safe to call more than once.
func (p *Player) Shutdown() { p.engine.Shutdown() }
