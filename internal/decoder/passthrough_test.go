package decoder

import (
	"sync"
	"testing"
	"time"

	"github.com/avplayer/avcore/internal/render"
	"github.com/avplayer/avcore/media"
)

// countingSource wraps fakeSource to record every DequeueAccessUnit call,
// so a test can observe when fetching stops under backpressure and
// resumes after a BufferConsumed reply.
type countingSource struct {
	*fakeSource
	mu    sync.Mutex
	calls int
}

func (s *countingSource) DequeueAccessUnit(trackType media.TrackType) (*media.Packet, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fakeSource.DequeueAccessUnit(trackType)
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// holdingFrameRender captures every dispatched frame's release closure in
// order instead of firing it, so a test can simulate BufferConsumed
// replies arriving one at a time.
type holdingFrameRender struct {
	mu       sync.Mutex
	frames   []*media.Frame
	releases []render.ReleaseFunc
}

func (h *holdingFrameRender) RenderFrame(frame *media.Frame, release render.ReleaseFunc) {
	h.mu.Lock()
	h.frames = append(h.frames, frame)
	h.releases = append(h.releases, release)
	h.mu.Unlock()
}

func (h *holdingFrameRender) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func (h *holdingFrameRender) frameSize(i int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames[i].Payload)
}

func (h *holdingFrameRender) releaseAt(i int, rendered bool) {
	h.mu.Lock()
	r := h.releases[i]
	h.mu.Unlock()
	r(rendered)
}

func pushPackets(src *fakeSource, count, size int, firstPTS int64) {
	for i := 0; i < count; i++ {
		pts := int64(0)
		if i == 0 {
			pts = firstPTS
		}
		src.push(&media.Packet{TrackType: media.TrackAudio, PTS: pts, Payload: make([]byte, size)})
	}
}

func TestPassthroughAggregatesBeforeForwarding(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	pushPackets(src, 100, 512, 1000)
	fr := &holdingFrameRender{}
	parent := &fakeParent{}

	p := NewPassthrough(testLogger(), src, fr, parent)
	defer p.Shutdown()

	if err := p.Configure(media.Format{MIMEType: "audio/ac3", SampleRate: 48000, Channels: 6}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(time.Second)
	for fr.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first forwarded chunk")
		case <-time.After(time.Millisecond):
		}
	}

	if size := fr.frameSize(0); size < stagingTargetBytes {
		t.Fatalf("forwarded chunk size = %d, want >= %d (staging target)", size, stagingTargetBytes)
	}
}

func TestPassthroughBackpressureStopsFetchingAt200KB(t *testing.T) {
	t.Parallel()

	// 300 KB of input in 512-byte packets, per the documented backpressure
	// scenario: cached bytes should stop growing at the 200 KB ceiling
	// until a BufferConsumed reply frees some of it.
	inner := &fakeSource{}
	pushPackets(inner, (300*1024)/512, 512, 1000)
	src := &countingSource{fakeSource: inner}

	fr := &holdingFrameRender{}
	parent := &fakeParent{}

	p := NewPassthrough(testLogger(), src, fr, parent)
	defer p.Shutdown()

	if err := p.Configure(media.Format{MIMEType: "audio/ac3"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let input fetching run to the backpressure ceiling.
	time.Sleep(50 * time.Millisecond)

	var cached int
	if err := p.PostAndWait(func() error { cached = p.cachedBytes; return nil }); err != nil {
		t.Fatalf("PostAndWait: %v", err)
	}
	if cached < cachedBytesBackpressure {
		t.Fatalf("cachedBytes = %d, want >= %d before any BufferConsumed reply", cached, cachedBytesBackpressure)
	}

	callsBeforeConsume := src.callCount()

	if fr.count() == 0 {
		t.Fatal("no chunk forwarded before backpressure ceiling")
	}
	// Release exactly one forwarded chunk (simulating BufferConsumed) and
	// confirm fetching resumes.
	fr.releaseAt(0, true)

	if err := p.PostAndWait(func() error { return nil }); err != nil {
		t.Fatalf("PostAndWait: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	callsAfterConsume := src.callCount()
	if callsAfterConsume <= callsBeforeConsume {
		t.Fatalf("calls after BufferConsumed = %d, want > %d (fetching should resume)", callsAfterConsume, callsBeforeConsume)
	}
}
