package engine

import (
	"context"

	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/sink"
	"github.com/avplayer/avcore/source"
)

// deferredKind is the tag of the DeferredAction sum type.
type deferredKind int

const (
	deferredFlush deferredKind = iota
	deferredSeekTo
	deferredResumeDecoders
	deferredPerformReset
	deferredSetVideoSink
)

// deferredAction is one entry of the engine's deferred-action queue.
// Actions are processed strictly in order, and only while no track's
// flush status is in a transient state (see trackFlush.terminal).
type deferredAction struct {
	kind deferredKind

	// deferredFlush
	flushAudio bool
	flushVideo bool
	shutdown   bool // true: decoder.Shutdown()/render.Close() rather than Flush()

	// deferredSeekTo
	seekCtx   context.Context
	seekPTS   int64
	seekMode  source.SeekMode
	seekReply chan error

	// deferredResumeDecoders
	notify bool

	// deferredSetVideoSink
	newVideoSink sink.VideoRenderSink
}

// anyTrackFlushing reports whether either track is between flush-start and
// flush-completion, the condition under which the deferred queue stalls.
func (e *Engine) anyTrackFlushing() bool {
	return !e.audioFlush.terminal() || !e.videoFlush.terminal()
}

// enqueueDeferred appends a to the queue and immediately tries to drain it.
// Must run on the loop goroutine.
func (e *Engine) enqueueDeferred(a deferredAction) {
	e.deferred = append(e.deferred, a)
	e.dispatchDeferred()
}

// dispatchDeferred runs queued actions in order for as long as no track is
// mid-flush. Every action this engine performs completes synchronously
// (decoder.Flush/Shutdown are blocking post-and-wait calls and
// render.Flush runs inline under the render's own lock), so a flush begun by one iteration is always
// terminal again before the loop checks the next; the stall condition
// exists to preserve spec ordering even though nothing here actually
// suspends across scheduler ticks.
func (e *Engine) dispatchDeferred() {
	for len(e.deferred) > 0 && !e.anyTrackFlushing() {
		a := e.deferred[0]
		e.deferred = e.deferred[1:]
		e.runDeferred(a)
	}
}

func (e *Engine) runDeferred(a deferredAction) {
	switch a.kind {
	case deferredFlush:
		e.beginFlush(media.TrackAudio, a.flushAudio, a.shutdown)
		e.beginFlush(media.TrackVideo, a.flushVideo, a.shutdown)

	case deferredSeekTo:
		err := e.cfg.Source.SeekTo(a.seekCtx, a.seekPTS, a.seekMode)
		if a.seekReply != nil {
			a.seekReply <- err
		}

	case deferredResumeDecoders:
		e.applyPauseState()
		if a.notify {
			e.scanSources(e.contextOrBackground())
		}

	case deferredPerformReset:
		e.performReset()

	case deferredSetVideoSink:
		e.videoSink = a.newVideoSink
		e.scanSources(e.contextOrBackground())
		e.applyPauseState()
	}
}

// beginFlush drives one track's side of a Flush(audio, video) or
// Flush(shutdown, shutdown) action. Flushing drains and re-arms the
// decoder/render pair for further use; shutting down tears both down
// entirely, leaving the track eligible for lazy re-instantiation by the
// next ScanSources (e.g. after a format change or a Reset).
func (e *Engine) beginFlush(trackType media.TrackType, should, shutdown bool) {
	if !should {
		return
	}

	switch trackType {
	case media.TrackAudio:
		if e.audioDecoder != nil {
			if shutdown {
				_ = e.audioDecoder.Shutdown()
			} else {
				_ = e.audioDecoder.Flush()
			}
		}
		if e.audioRender != nil {
			e.audioRender.Flush()
			if shutdown {
				e.audioRender.Stop()
				e.audioRender.Close()
			}
		}
		if shutdown {
			e.audioDecoder = nil
			e.audioRender = nil
			e.audioFlush = trackFlush{phase: shutDown, decoderDone: true, renderDone: true}
		} else {
			e.audioFlush = trackFlush{phase: flushNone, decoderDone: true, renderDone: true}
		}
		e.audioEOS = false

	case media.TrackVideo:
		if e.videoDecoder != nil {
			if shutdown {
				_ = e.videoDecoder.Shutdown()
			} else {
				_ = e.videoDecoder.Flush()
			}
		}
		if e.videoRender != nil {
			e.videoRender.Flush()
			if shutdown {
				e.videoRender.Stop()
				e.videoRender.Close()
			}
		}
		if shutdown {
			e.videoDecoder = nil
			e.videoRender = nil
			e.videoFlush = trackFlush{phase: shutDown, decoderDone: true, renderDone: true}
		} else {
			e.videoFlush = trackFlush{phase: flushNone, decoderDone: true, renderDone: true}
		}
		e.videoEOS = false
	}
}

// performReset implements PerformReset: drops decoder/render state for
// both tracks, stops the source, and returns the engine to the
// just-constructed state so a fresh Prepare/Start cycle can begin against
// the same source.
func (e *Engine) performReset() {
	e.shutdownTrack(media.TrackAudio)
	e.shutdownTrack(media.TrackVideo)

	if e.cfg.Source != nil {
		_ = e.cfg.Source.Stop(e.contextOrBackground())
	}

	e.sync = nil
	e.prepared = false
	e.pendingStartIfPrepareAsync = false
	e.started = false
	e.pausedForBuffering = false
	e.pausedByClient = false
	e.audioErrored = false
	e.videoErrored = false
	e.audioEOS = false
	e.videoEOS = false
	e.audioFlush = trackFlush{}
	e.videoFlush = trackFlush{}
	e.scanGeneration++
	e.deferred = nil
}

// Seek decomposes into the ordered deferred queue of spec.md §4.11:
// flush both decoders (not shutdown), issue the source seek, then resume
// decoders with notify=true. It blocks until the source has returned a
// status for the seek.
func (e *Engine) Seek(ctx context.Context, ptsUs int64, mode source.SeekMode) error {
	reply := make(chan error, 1)
	e.Post(func() {
		e.enqueueDeferred(deferredAction{kind: deferredFlush, flushAudio: true, flushVideo: true})
		e.enqueueDeferred(deferredAction{kind: deferredSeekTo, seekCtx: ctx, seekPTS: ptsUs, seekMode: mode, seekReply: reply})
		e.enqueueDeferred(deferredAction{kind: deferredResumeDecoders, notify: true})
	})
	return <-reply
}

// Reset decomposes into Flush(decoder.shutdown, decoder.shutdown) followed
// by PerformReset, per spec.md §4.11.
func (e *Engine) Reset() error {
	return e.PostAndWait(func() error {
		e.enqueueDeferred(deferredAction{kind: deferredFlush, flushAudio: true, flushVideo: true, shutdown: true})
		e.enqueueDeferred(deferredAction{kind: deferredPerformReset})
		return nil
	})
}

// SetVideoRenderSink implements the mid-playback sink-swap rule: when an
// existing software VideoRender can simply accept the new sink, it is
// swapped inline with no flush. When no video decoder exists yet, the sink
// is recorded inline and, if playback has started, sources are rescanned.
// When video is running in tunnel mode (the sink is baked into the codec's
// configuration), the swap is deferred: flush the video track (shutdown,
// since the tunnel codec must be reconfigured against the new sink),
// record the sink, rescan, and resume.
func (e *Engine) SetVideoRenderSink(s sink.VideoRenderSink) error {
	return e.PostAndWait(func() error {
		if e.videoRender != nil {
			e.videoSink = s
			e.videoRender.SetSink(s)
			return nil
		}

		if e.videoDecoder == nil {
			e.videoSink = s
			if e.started {
				e.scanSources(e.contextOrBackground())
			}
			return nil
		}

		e.enqueueDeferred(deferredAction{kind: deferredFlush, flushVideo: true, shutdown: true})
		e.enqueueDeferred(deferredAction{kind: deferredSetVideoSink, newVideoSink: s})
		return nil
	})
}
