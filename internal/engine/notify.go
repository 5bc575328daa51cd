package engine

import (
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/source"
)

// The methods in this file implement both source.Notify (events arriving
// from the content source) and decoder.Parent (events arriving from a
// decoder pipeline). Both interfaces reach the engine's own message loop
// via Post so the engine never acts on them from a foreign goroutine.

// OnPrepared implements source.Notify.
func (e *Engine) OnPrepared(err error) {
	e.Post(func() { e.handlePrepared(err) })
}

func (e *Engine) handlePrepared(err error) {
	if err != nil {
		e.reportError(media.TrackAudio, err)
		return
	}
	e.prepared = true
	if e.pendingStartIfPrepareAsync {
		e.pendingStartIfPrepareAsync = false
		_ = e.onStart(e.contextOrBackground())
	}
}

// OnFlagsChanged implements source.Notify. The engine does not currently
// branch on capability flags itself (callers query them directly through
// the source), so this is recorded for completeness only.
func (e *Engine) OnFlagsChanged(flags source.Flags) {}

// OnVideoSizeChanged implements both source.Notify (container-reported
// geometry, before any frame has been decoded) and decoder.Parent (a
// codec-reported format change on an already-running video track).
func (e *Engine) OnVideoSizeChanged(format media.Format) {
	e.Post(func() {
		if e.cfg.Listener != nil {
			e.cfg.Listener.OnVideoSizeChanged(format.Width, format.Height, media.PixelUnknown)
		}
	})
}

// OnBufferingStart implements source.Notify: sets the buffered-pause bit,
// independent of any user-pause, per spec.md §4.11.
func (e *Engine) OnBufferingStart() {
	e.Post(func() {
		e.pausedForBuffering = true
		e.applyPauseState()
		if e.cfg.Listener != nil {
			e.cfg.Listener.OnBufferingStart()
		}
	})
}

// OnBufferingUpdate implements source.Notify.
func (e *Engine) OnBufferingUpdate(percent int) {
	e.Post(func() {
		if e.cfg.Listener != nil {
			e.cfg.Listener.OnBufferingUpdate(percent)
		}
	})
}

// OnBufferingEnd implements source.Notify: clears the buffered-pause bit.
func (e *Engine) OnBufferingEnd() {
	e.Post(func() {
		e.pausedForBuffering = false
		e.applyPauseState()
		if e.cfg.Listener != nil {
			e.cfg.Listener.OnBufferingEnd()
		}
	})
}

// OnCompletion implements source.Notify, for sources that detect
// container-level end-of-stream directly. The engine's own completion
// signal (every instantiated track reporting EOS, see OnTrackEndOfStream)
// is the primary path; this is a secondary trigger some sources may use
// instead of per-track EOS.
func (e *Engine) OnCompletion() {
	e.Post(func() {
		if e.cfg.Listener != nil {
			e.cfg.Listener.OnCompletion()
		}
	})
}

// OnError implements source.Notify.
func (e *Engine) OnError(err error) {
	e.Post(func() { e.reportError(media.TrackAudio, err) })
}

// OnFetchData implements source.Notify. Decoders already pull input
// proactively (fillFIFO/fillInput) and retry on WouldBlock, so an
// explicit FetchData push from the source needs no separate action here.
func (e *Engine) OnFetchData(trackType media.TrackType) {}

// OnDecoderError implements decoder.Parent.
func (e *Engine) OnDecoderError(trackType media.TrackType, err error) {
	e.Post(func() { e.reportError(trackType, err) })
}

// OnAudioOutputFormatChanged implements decoder.Parent. The audio render
// itself detects and reopens the sink on format changes (see
// render.AudioRender.formatChanged); the engine has nothing additional to
// do here beyond being a documented notification point.
func (e *Engine) OnAudioOutputFormatChanged(format media.Format) {}

// OnTrackEndOfStream implements decoder.Parent: marks the reporting
// track's EOS and fires Completion once every instantiated track has
// reported it.
func (e *Engine) OnTrackEndOfStream(trackType media.TrackType) {
	e.Post(func() { e.handleTrackEndOfStream(trackType) })
}

func (e *Engine) handleTrackEndOfStream(trackType media.TrackType) {
	switch trackType {
	case media.TrackAudio:
		e.audioEOS = true
	case media.TrackVideo:
		e.videoEOS = true
	}

	audioDone := e.audioDecoder == nil || e.audioEOS
	videoDone := e.videoDecoder == nil || e.videoEOS
	if audioDone && videoDone && (e.audioDecoder != nil || e.videoDecoder != nil) {
		if e.cfg.Listener != nil {
			e.cfg.Listener.OnCompletion()
		}
	}
}
