package decoder

import (
	"context"
	"sync"

	"github.com/avplayer/avcore/codec"
	"github.com/avplayer/avcore/internal/render"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/source"
	"github.com/avplayer/avcore/status"
)

// fakeBuffer is a trivial codec.Buffer backed by a plain byte slice.
type fakeBuffer struct {
	index int
	buf   []byte
	size  int
	pts   int64
	eos   bool
}

func (b *fakeBuffer) Index() int                { return b.index }
func (b *fakeBuffer) Data() []byte              { return b.buf }
func (b *fakeBuffer) SetRange(offset, size int) { b.size = size }
func (b *fakeBuffer) PTS() int64                { return b.pts }
func (b *fakeBuffer) SetPTS(pts int64)          { b.pts = pts }
func (b *fakeBuffer) SetEndOfStream(eos bool)   { b.eos = eos }
func (b *fakeBuffer) EndOfStream() bool         { return b.eos }

// fakeCodec is a synchronous stand-in that echoes every queued input
// buffer straight back out as an output buffer with the same bytes/pts,
// driven by direct calls rather than its own goroutine.
type fakeCodec struct {
	mu             sync.Mutex
	cb             codec.Callback
	cfg            codec.Config
	started        bool
	released       []*fakeBuffer
	flushed        int
	nextIndex      int
	pendingOutputs []*fakeBuffer
}

func newFakeCodec() *fakeCodec { return &fakeCodec{} }

func (c *fakeCodec) Configure(cfg codec.Config) error { c.cfg = cfg; return nil }
func (c *fakeCodec) SetCallback(cb codec.Callback)    { c.cb = cb }
func (c *fakeCodec) Start() error                     { c.started = true; return nil }
func (c *fakeCodec) Stop() error                      { c.started = false; return nil }
func (c *fakeCodec) Flush() error                     { c.flushed++; return nil }
func (c *fakeCodec) Release() error                   { return nil }

func (c *fakeCodec) GetInputBuffer(index int) (codec.Buffer, error) {
	return &fakeBuffer{index: index, buf: make([]byte, 4096)}, nil
}

func (c *fakeCodec) QueueInputBuffer(buf codec.Buffer) error {
	c.mu.Lock()
	idx := c.nextIndex
	c.nextIndex++
	fb := buf.(*fakeBuffer)
	out := &fakeBuffer{index: idx, buf: append([]byte(nil), fb.buf[:fb.size]...), size: fb.size, pts: fb.pts, eos: fb.eos}
	c.pendingOutputs = append(c.pendingOutputs, out)
	c.mu.Unlock()

	if c.cb != nil {
		c.cb.OnOutputBufferAvailable(idx)
	}
	return nil
}

func (c *fakeCodec) GetOutputBuffer(index int) (codec.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.pendingOutputs {
		if b.index == index {
			return b, nil
		}
	}
	return nil, nil
}

func (c *fakeCodec) ReleaseOutputBuffer(buf codec.Buffer, render bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, buf.(*fakeBuffer))
	return nil
}

// fakeSource drains a fixed packet list, returning status.WouldBlock once
// exhausted until eos is set.
type fakeSource struct {
	mu      sync.Mutex
	packets []*media.Packet
	eos     bool
}

func (s *fakeSource) push(p *media.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, p)
}

func (s *fakeSource) setEOS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eos = true
}

func (s *fakeSource) SetNotify(notify source.Notify)        {}
func (s *fakeSource) Prepare(ctx context.Context) error      { return nil }
func (s *fakeSource) Start(ctx context.Context) error        { return nil }
func (s *fakeSource) Stop(ctx context.Context) error         { return nil }
func (s *fakeSource) Pause(ctx context.Context) error        { return nil }
func (s *fakeSource) Resume(ctx context.Context) error        { return nil }
func (s *fakeSource) SeekTo(ctx context.Context, ptsUs int64, mode source.SeekMode) error {
	return nil
}
func (s *fakeSource) GetTrackInfo(trackType media.TrackType) *media.Format { return nil }
func (s *fakeSource) FeedMoreESData() error                               { return nil }

func (s *fakeSource) DequeueAccessUnit(trackType media.TrackType) (*media.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.packets) > 0 {
		p := s.packets[0]
		s.packets = s.packets[1:]
		return p, nil
	}
	if s.eos {
		return nil, status.EndOfStream
	}
	return nil, status.WouldBlock
}

// fakeFrameRender captures frames delivered by a decoder and immediately
// fires the release callback with rendered=true, so tests can observe both
// the frame and its release.
type fakeFrameRender struct {
	mu     sync.Mutex
	frames []*media.Frame
	notify chan *media.Frame
}

func newFakeFrameRender() *fakeFrameRender {
	return &fakeFrameRender{notify: make(chan *media.Frame, 16)}
}

func (r *fakeFrameRender) RenderFrame(frame *media.Frame, release render.ReleaseFunc) {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	r.notify <- frame
	if release != nil {
		release(true)
	}
}

// fakeParent records decoder notifications for assertions.
type fakeParent struct {
	mu           sync.Mutex
	errs         []error
	audioFormats []media.Format
	videoSizes   []media.Format
	eosTracks    []media.TrackType
}

func (p *fakeParent) OnDecoderError(trackType media.TrackType, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *fakeParent) OnAudioOutputFormatChanged(format media.Format) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioFormats = append(p.audioFormats, format)
}

func (p *fakeParent) OnVideoSizeChanged(format media.Format) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videoSizes = append(p.videoSizes, format)
}

func (p *fakeParent) OnTrackEndOfStream(trackType media.TrackType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eosTracks = append(p.eosTracks, trackType)
}
