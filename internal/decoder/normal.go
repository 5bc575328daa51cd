package decoder

import (
	"errors"
	"log/slog"

	"github.com/avplayer/avcore/codec"
	"github.com/avplayer/avcore/internal/render"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/source"
	"github.com/avplayer/avcore/status"
)

// inputFIFOBound caps the Normal decoder's internal packet FIFO so a fast
// source cannot grow it without bound while the codec is momentarily
// behind on draining input buffers.
const inputFIFOBound = 16

// Normal decodes audio or video through an external Codec: packets are
// pulled from the source into an internal FIFO and copied into codec
// input buffers as they become available; decoded output buffers are
// turned into Frames and handed to the render.
type Normal struct {
	*Base

	src    source.Source
	cdc    codec.Codec
	render render.FrameRender

	format media.Format
	fifo   []*media.Packet
	fifoEOS bool
	paused bool
}

// NewNormal constructs a Normal decoder for trackType, pulling packets
// from src, decoding via cdc, and delivering frames to frameRender.
func NewNormal(log *slog.Logger, trackType media.TrackType, src source.Source, cdc codec.Codec, frameRender render.FrameRender, parent Parent) *Normal {
	n := &Normal{
		Base:   NewBase(log, trackType, parent),
		src:    src,
		cdc:    cdc,
		render: frameRender,
	}
	cdc.SetCallback(n)
	return n
}

// Configure configures the underlying codec with cfg.
func (n *Normal) Configure(cfg codec.Config) error {
	return n.PostAndWait(func() error {
		n.format = cfg.Format
		return n.cdc.Configure(cfg)
	})
}

// Start starts the codec and begins requesting input.
func (n *Normal) Start() error {
	return n.PostAndWait(func() error {
		if err := n.cdc.Start(); err != nil {
			return err
		}
		n.paused = false
		n.fillFIFO()
		return nil
	})
}

// Pause blocks the caller until the decoder has acknowledged pausing,
// matching the engine's synchronous Pause semantics.
func (n *Normal) Pause() error {
	return n.PostAndWait(func() error {
		n.paused = true
		return nil
	})
}

// Resume resumes input fetching.
func (n *Normal) Resume() error {
	return n.PostAndWait(func() error {
		n.paused = false
		n.fillFIFO()
		return nil
	})
}

// Flush drops the internal FIFO, bumps the generation so release
// callbacks for frames dispatched before the flush are ignored, and
// flushes the codec.
func (n *Normal) Flush() error {
	return n.PostAndWait(func() error {
		n.BumpGeneration()
		n.fifo = nil
		n.fifoEOS = false
		return n.cdc.Flush()
	})
}

// Shutdown stops and releases the codec, then tears down the loop.
func (n *Normal) Shutdown() error {
	err := n.PostAndWait(func() error {
		n.BumpGeneration()
		if err := n.cdc.Stop(); err != nil {
			return err
		}
		return n.cdc.Release()
	})
	n.Base.Shutdown()
	return err
}

// OnInputBufferAvailable implements codec.Callback.
func (n *Normal) OnInputBufferAvailable(index int) {
	n.Post(func() { n.handleInputBufferAvailable(index) })
}

func (n *Normal) handleInputBufferAvailable(index int) {
	buf, err := n.cdc.GetInputBuffer(index)
	if err != nil {
		n.ReportError(err)
		return
	}

	pkt, ok := n.popPacket()
	if !ok {
		// Nothing queued yet: drop this input-buffer opportunity silently.
		// fillFIFO's retry timer only refills the FIFO; this index is not
		// retried.
		return
	}

	n2 := copy(buf.Data(), pkt.Payload)
	buf.SetRange(0, n2)
	buf.SetPTS(pkt.PTS)
	buf.SetEndOfStream(pkt.EndOfStream())
	if err := n.cdc.QueueInputBuffer(buf); err != nil {
		n.ReportError(err)
		return
	}
	n.fillFIFO()
}

// OnOutputBufferAvailable implements codec.Callback.
func (n *Normal) OnOutputBufferAvailable(index int) {
	n.Post(func() { n.handleOutputBufferAvailable(index) })
}

func (n *Normal) handleOutputBufferAvailable(index int) {
	buf, err := n.cdc.GetOutputBuffer(index)
	if err != nil {
		n.ReportError(err)
		return
	}

	var frame *media.Frame
	if n.TrackType() == media.TrackAudio {
		payload := append([]byte(nil), buf.Data()...)
		frame = &media.Frame{
			Type:          media.TrackAudio,
			PTS:           buf.PTS(),
			SampleRate:    n.format.SampleRate,
			Channels:      n.format.Channels,
			ChannelLayout: n.format.ChannelLayout,
			Payload:       payload,
		}
	} else {
		// Zero-copy: the frame references the codec's output buffer rather
		// than owning its own bytes; release happens through the render's
		// callback, never through Frame itself.
		frame = &media.Frame{
			Type:        media.TrackVideo,
			PTS:         buf.PTS(),
			Width:       n.format.Width,
			Height:      n.format.Height,
			PixelFormat: media.PixelOpaqueHandle,
			Opaque:      buf,
		}
	}

	genAtDispatch := n.Generation()
	n.render.RenderFrame(frame, func(rendered bool) {
		n.Post(func() {
			if n.Generation() != genAtDispatch {
				return // stale: a flush already invalidated this buffer
			}
			if err := n.cdc.ReleaseOutputBuffer(buf, rendered); err != nil {
				n.ReportError(err)
			}
		})
	})
}

// OnOutputFormatChanged implements codec.Callback.
func (n *Normal) OnOutputFormatChanged(format media.Format) {
	n.Post(func() {
		n.format = format
		if n.TrackType() == media.TrackAudio {
			n.NotifyAudioFormatChanged(format)
		} else {
			n.NotifyVideoSizeChanged(format)
		}
	})
}

// OnError implements codec.Callback.
func (n *Normal) OnError(err error) {
	n.Post(func() { n.ReportError(err) })
}

// OnFrameRendered implements codec.Callback.
func (n *Normal) OnFrameRendered(presentationTimeUs int64) {}

// fillFIFO pulls packets from the source until the FIFO is full, the
// source reports WouldBlock (scheduling a retry), or end-of-stream.
func (n *Normal) fillFIFO() {
	if n.paused || n.fifoEOS {
		return
	}
	for len(n.fifo) < inputFIFOBound {
		pkt, err := n.src.DequeueAccessUnit(n.TrackType())
		if err != nil {
			if errors.Is(err, status.WouldBlock) {
				_ = n.src.FeedMoreESData()
				n.ScheduleInputRetry(n.fillFIFO)
				return
			}
			if errors.Is(err, status.EndOfStream) {
				n.fifoEOS = true
				n.NotifyEndOfStream()
				return
			}
			n.ReportError(err)
			return
		}
		n.fifo = append(n.fifo, pkt)
	}
}

func (n *Normal) popPacket() (*media.Packet, bool) {
	if len(n.fifo) == 0 {
		n.fillFIFO()
		if len(n.fifo) == 0 {
			return nil, false
		}
	}
	p := n.fifo[0]
	n.fifo = n.fifo[1:]
	n.fillFIFO()
	return p, true
}
