package decoder

import (
	"errors"
	"log/slog"

	"github.com/avplayer/avcore/internal/render"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/source"
	"github.com/avplayer/avcore/status"
)

// stagingTargetBytes is the staging buffer size the Passthrough decoder
// aggregates toward before forwarding, trading latency for fewer, larger
// writes to the audio sink.
const stagingTargetBytes = 24 * 1024

// cachedBytesBackpressure is the outstanding (forwarded-but-not-yet-
// consumed) byte count above which the Passthrough decoder stops pulling
// more input from the source.
const cachedBytesBackpressure = 200 * 1024

// Passthrough forwards compressed audio (already a sink-acceptable format,
// e.g. AC3/EAC3/DTS, or already PCM) directly to the audio render without
// decoding. Small packets are aggregated into a staging buffer to reduce
// the number of sink writes.
type Passthrough struct {
	*Base

	src    source.Source
	render render.FrameRender
	format media.Format

	staging       []byte
	stagingPTS    int64
	stagingHasPTS bool
	stagingDur    int64

	cachedBytes int
	fifoEOS     bool
	paused      bool
}

// NewPassthrough constructs a Passthrough decoder for the audio track,
// pulling packets from src and forwarding aggregated chunks to
// frameRender.
func NewPassthrough(log *slog.Logger, src source.Source, frameRender render.FrameRender, parent Parent) *Passthrough {
	return &Passthrough{
		Base:   NewBase(log, media.TrackAudio, parent),
		src:    src,
		render: frameRender,
	}
}

// Configure records the track format (no codec to configure).
func (p *Passthrough) Configure(format media.Format) error {
	return p.PostAndWait(func() error {
		p.format = format
		return nil
	})
}

// Start begins pulling input.
func (p *Passthrough) Start() error {
	return p.PostAndWait(func() error {
		p.paused = false
		p.fillInput()
		return nil
	})
}

// Pause stops pulling input; already-forwarded chunks still drain their
// BufferConsumed replies.
func (p *Passthrough) Pause() error {
	return p.PostAndWait(func() error {
		p.paused = true
		return nil
	})
}

// Resume resumes pulling input.
func (p *Passthrough) Resume() error {
	return p.PostAndWait(func() error {
		p.paused = false
		p.fillInput()
		return nil
	})
}

// Flush drops the staging buffer and outstanding cache accounting, and
// bumps the generation so in-flight BufferConsumed replies from before
// the flush are rejected as stale.
func (p *Passthrough) Flush() error {
	return p.PostAndWait(func() error {
		p.BumpGeneration()
		p.staging = nil
		p.stagingHasPTS = false
		p.stagingDur = 0
		p.cachedBytes = 0
		p.fifoEOS = false
		return nil
	})
}

// Shutdown tears down the decoder's loop.
func (p *Passthrough) Shutdown() error {
	err := p.PostAndWait(func() error {
		p.BumpGeneration()
		return nil
	})
	p.Base.Shutdown()
	return err
}

// fillInput pulls packets from the source, aggregating them into the
// staging buffer, forwarding it once it reaches stagingTargetBytes, once a timestamp
// becomes available on a previously untimed run, or on end-of-stream.
// Stops when paused, at end-of-stream, or once cachedBytes reaches the
// backpressure threshold.
func (p *Passthrough) fillInput() {
	if p.paused || p.fifoEOS {
		return
	}

	for p.cachedBytes < cachedBytesBackpressure {
		pkt, err := p.src.DequeueAccessUnit(media.TrackAudio)
		if err != nil {
			if errors.Is(err, status.WouldBlock) {
				_ = p.src.FeedMoreESData()
				p.ScheduleInputRetry(p.fillInput)
				return
			}
			if errors.Is(err, status.EndOfStream) {
				p.fifoEOS = true
				p.flushStaging()
				p.NotifyEndOfStream()
				return
			}
			p.ReportError(err)
			return
		}

		p.appendPacket(pkt)

		if len(p.staging) >= stagingTargetBytes {
			p.flushStaging()
			if p.paused {
				return
			}
		}
	}
}

// appendPacket adds pkt's payload to the staging buffer. If the staging
// run had no timestamp yet (its first packet carried none) and this
// packet does, the run is flushed first so the new timestamp always
// starts a fresh run rather than silently applying to stale bytes.
func (p *Passthrough) appendPacket(pkt *media.Packet) {
	if len(p.staging) > 0 && !p.stagingHasPTS && pkt.PTS != 0 {
		p.flushStaging()
	}

	if len(p.staging) == 0 {
		p.stagingPTS = pkt.PTS
		p.stagingHasPTS = pkt.PTS != 0
		p.stagingDur = 0
	}
	p.staging = append(p.staging, pkt.Payload...)
	p.stagingDur += pkt.Duration
}

// flushStaging forwards the current staging buffer to the render as a
// single Frame, tracking it against the backpressure cache counter until
// its BufferConsumed reply arrives.
func (p *Passthrough) flushStaging() {
	if len(p.staging) == 0 {
		return
	}

	payload := p.staging
	p.staging = nil
	p.stagingHasPTS = false

	frame := &media.Frame{
		Type:          media.TrackAudio,
		PTS:           p.stagingPTS,
		Duration:      p.stagingDur,
		SampleRate:    p.format.SampleRate,
		Channels:      p.format.Channels,
		ChannelLayout: p.format.ChannelLayout,
		SampleFormat:  audioSampleFormatFor(p.format.MIMEType),
		Payload:       payload,
	}

	size := len(payload)
	p.cachedBytes += size
	genAtDispatch := p.Generation()

	p.render.RenderFrame(frame, func(rendered bool) {
		p.Post(func() { p.onBufferConsumed(genAtDispatch, size) })
	})
}

// onBufferConsumed implements the spec's BufferConsumed(size) reply:
// decrement the outstanding cache counter and resume input fetching. A
// reply carrying a stale generation (a flush happened since dispatch) is
// dropped instead of corrupting the post-flush cache accounting.
func (p *Passthrough) onBufferConsumed(generation int64, size int) {
	if generation != p.Generation() {
		return
	}
	p.cachedBytes -= size
	if p.cachedBytes < 0 {
		p.cachedBytes = 0
	}
	p.fillInput()
}

// audioSampleFormatFor maps a MIME type to the sample format a
// passthrough frame carries, defaulting to PCM16 for already-PCM mimes.
func audioSampleFormatFor(mime string) media.AudioSampleFormat {
	switch mime {
	case "audio/ac3":
		return media.FormatAC3
	case "audio/eac3":
		return media.FormatEAC3
	case "audio/dts":
		return media.FormatDTS
	case "audio/dts-hd":
		return media.FormatDTSHD
	default:
		return media.FormatPCM16
	}
}
