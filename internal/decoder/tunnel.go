package decoder

import (
	"errors"
	"log/slog"

	"github.com/avplayer/avcore/codec"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/source"
	"github.com/avplayer/avcore/status"
)

// Tunnel decodes video through the same codec.Codec contract as Normal,
// but the codec is configured with a hardware video-render sink
// (codec.Config.VideoSink) that performs the actual display. The codec's
// output buffer is released with render=true immediately: the hardware
// paces presentation, so no software scheduling or render queue is
// involved — the sink the codec was configured with *is* the render.
type Tunnel struct {
	*Base

	src source.Source
	cdc codec.Codec

	format media.Format
	fifo   []*media.Packet
	fifoEOS bool
	paused bool
}

// NewTunnel constructs a Tunnel decoder for the video track. sink is
// carried in cfg.VideoSink at Configure time by the caller (the engine),
// not by this constructor.
func NewTunnel(log *slog.Logger, src source.Source, cdc codec.Codec, parent Parent) *Tunnel {
	n := &Tunnel{
		Base: NewBase(log, media.TrackVideo, parent),
		src:  src,
		cdc:  cdc,
	}
	cdc.SetCallback(n)
	return n
}

// Configure configures the underlying codec, which must already carry a
// hardware VideoSink in cfg.VideoSink.
func (t *Tunnel) Configure(cfg codec.Config) error {
	return t.PostAndWait(func() error {
		t.format = cfg.Format
		return t.cdc.Configure(cfg)
	})
}

// Start starts the codec and begins requesting input.
func (t *Tunnel) Start() error {
	return t.PostAndWait(func() error {
		if err := t.cdc.Start(); err != nil {
			return err
		}
		t.paused = false
		t.fillFIFO()
		return nil
	})
}

// Pause stops and flushes the tunnel path: unlike Normal, a tunnel codec
// is driving hardware presentation directly, so there is no software
// queue to simply freeze — pausing means the hardware path is flushed
// and stopped, and Resume restarts it.
func (t *Tunnel) Pause() error {
	return t.PostAndWait(func() error {
		t.paused = true
		t.BumpGeneration()
		t.fifo = nil
		if err := t.cdc.Flush(); err != nil {
			return err
		}
		return t.cdc.Stop()
	})
}

// Resume restarts the hardware tunnel path after a Pause.
func (t *Tunnel) Resume() error {
	return t.PostAndWait(func() error {
		if err := t.cdc.Start(); err != nil {
			return err
		}
		t.paused = false
		t.fillFIFO()
		return nil
	})
}

// Flush drops the FIFO, bumps the generation, and flushes the codec.
func (t *Tunnel) Flush() error {
	return t.PostAndWait(func() error {
		t.BumpGeneration()
		t.fifo = nil
		t.fifoEOS = false
		return t.cdc.Flush()
	})
}

// Shutdown stops and releases the codec, then tears down the loop.
func (t *Tunnel) Shutdown() error {
	err := t.PostAndWait(func() error {
		t.BumpGeneration()
		if err := t.cdc.Stop(); err != nil {
			return err
		}
		return t.cdc.Release()
	})
	t.Base.Shutdown()
	return err
}

// OnInputBufferAvailable implements codec.Callback.
func (t *Tunnel) OnInputBufferAvailable(index int) {
	t.Post(func() { t.handleInputBufferAvailable(index) })
}

func (t *Tunnel) handleInputBufferAvailable(index int) {
	buf, err := t.cdc.GetInputBuffer(index)
	if err != nil {
		t.ReportError(err)
		return
	}

	pkt, ok := t.popPacket()
	if !ok {
		return
	}

	n := copy(buf.Data(), pkt.Payload)
	buf.SetRange(0, n)
	buf.SetPTS(pkt.PTS)
	buf.SetEndOfStream(pkt.EndOfStream())
	if err := t.cdc.QueueInputBuffer(buf); err != nil {
		t.ReportError(err)
		return
	}
	t.fillFIFO()
}

// OnOutputBufferAvailable implements codec.Callback. The hardware sink
// the codec was configured with performs the actual presentation, so the
// buffer is released with render=true immediately rather than being
// handed to a software render.
func (t *Tunnel) OnOutputBufferAvailable(index int) {
	t.Post(func() {
		buf, err := t.cdc.GetOutputBuffer(index)
		if err != nil {
			t.ReportError(err)
			return
		}
		if err := t.cdc.ReleaseOutputBuffer(buf, true); err != nil {
			t.ReportError(err)
		}
	})
}

// OnOutputFormatChanged implements codec.Callback.
func (t *Tunnel) OnOutputFormatChanged(format media.Format) {
	t.Post(func() {
		t.format = format
		t.NotifyVideoSizeChanged(format)
	})
}

// OnError implements codec.Callback.
func (t *Tunnel) OnError(err error) {
	t.Post(func() { t.ReportError(err) })
}

// OnFrameRendered implements codec.Callback. The hardware sink reports
// presentation timing directly through this callback since no software
// render observes these frames.
func (t *Tunnel) OnFrameRendered(presentationTimeUs int64) {}

func (t *Tunnel) fillFIFO() {
	if t.paused || t.fifoEOS {
		return
	}
	for len(t.fifo) < inputFIFOBound {
		pkt, err := t.src.DequeueAccessUnit(media.TrackVideo)
		if err != nil {
			if errors.Is(err, status.WouldBlock) {
				_ = t.src.FeedMoreESData()
				t.ScheduleInputRetry(t.fillFIFO)
				return
			}
			if errors.Is(err, status.EndOfStream) {
				t.fifoEOS = true
				t.NotifyEndOfStream()
				return
			}
			t.ReportError(err)
			return
		}
		t.fifo = append(t.fifo, pkt)
	}
}

func (t *Tunnel) popPacket() (*media.Packet, bool) {
	if len(t.fifo) == 0 {
		t.fillFIFO()
		if len(t.fifo) == 0 {
			return nil, false
		}
	}
	p := t.fifo[0]
	t.fifo = t.fifo[1:]
	t.fillFIFO()
	return p, true
}
