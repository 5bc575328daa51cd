package decoder

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/avplayer/avcore/codec"
	"github.com/avplayer/avcore/internal/render"
	"github.com/avplayer/avcore/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFrame(t *testing.T, fr *fakeFrameRender, timeout time.Duration) *media.Frame {
	t.Helper()
	select {
	case f := <-fr.notify:
		return f
	case <-time.After(timeout):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestNormalDecoderDecodesAudioPackets(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	cdc := newFakeCodec()
	fr := newFakeFrameRender()
	parent := &fakeParent{}

	n := NewNormal(testLogger(), media.TrackAudio, src, cdc, fr, parent)
	defer n.Shutdown()

	if err := n.Configure(codec.Config{Format: media.Format{SampleRate: 48000, Channels: 2}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	src.push(&media.Packet{TrackType: media.TrackAudio, PTS: 1000, Payload: []byte("abcd")})

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Kick the codec's one input buffer manually, as a real codec would once
	// started: request input, let the Normal decoder feed it, which drives
	// QueueInputBuffer -> fakeCodec's synchronous output callback.
	n.OnInputBufferAvailable(0)

	frame := waitFrame(t, fr, time.Second)
	if frame.Type != media.TrackAudio {
		t.Fatalf("frame type = %v, want audio", frame.Type)
	}
	if frame.PTS != 1000 {
		t.Fatalf("frame PTS = %d, want 1000", frame.PTS)
	}
	if string(frame.Payload) != "abcd" {
		t.Fatalf("frame payload = %q, want %q", frame.Payload, "abcd")
	}
}

func TestNormalDecoderVideoFrameIsZeroCopy(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	cdc := newFakeCodec()
	fr := newFakeFrameRender()
	parent := &fakeParent{}

	n := NewNormal(testLogger(), media.TrackVideo, src, cdc, fr, parent)
	defer n.Shutdown()

	if err := n.Configure(codec.Config{Format: media.Format{Width: 1920, Height: 1080}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	src.push(&media.Packet{TrackType: media.TrackVideo, PTS: 2000, Payload: []byte{1, 2, 3}})

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	n.OnInputBufferAvailable(0)

	frame := waitFrame(t, fr, time.Second)
	if frame.PixelFormat != media.PixelOpaqueHandle {
		t.Fatalf("PixelFormat = %v, want PixelOpaqueHandle", frame.PixelFormat)
	}
	if frame.Payload != nil {
		t.Fatalf("video frame should carry no Payload, got %v", frame.Payload)
	}
	if frame.Opaque == nil {
		t.Fatal("video frame Opaque is nil, want the codec output buffer")
	}

	time.Sleep(20 * time.Millisecond)
	cdc.mu.Lock()
	released := len(cdc.released)
	cdc.mu.Unlock()
	if released != 1 {
		t.Fatalf("released buffers = %d, want 1", released)
	}
}

func TestNormalDecoderOutputFormatChangeNotifiesParent(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	cdc := newFakeCodec()
	fr := newFakeFrameRender()
	parent := &fakeParent{}

	n := NewNormal(testLogger(), media.TrackAudio, src, cdc, fr, parent)
	defer n.Shutdown()

	if err := n.Configure(codec.Config{Format: media.Format{SampleRate: 44100}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := n.PostAndWait(func() error {
		n.OnOutputFormatChanged(media.Format{SampleRate: 48000, Channels: 2})
		return nil
	}); err != nil {
		t.Fatalf("PostAndWait: %v", err)
	}

	// OnOutputFormatChanged itself posts, so give the loop one more round
	// trip to actually run it before asserting.
	if err := n.PostAndWait(func() error { return nil }); err != nil {
		t.Fatalf("PostAndWait: %v", err)
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()
	if len(parent.audioFormats) != 1 {
		t.Fatalf("audioFormats = %d, want 1", len(parent.audioFormats))
	}
	if parent.audioFormats[0].SampleRate != 48000 {
		t.Fatalf("notified SampleRate = %d, want 48000", parent.audioFormats[0].SampleRate)
	}
}

func TestNormalDecoderFlushDropsStaleRelease(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	cdc := newFakeCodec()
	parent := &fakeParent{}

	// A render that holds the release callback instead of firing it
	// immediately, so the test can flush before releasing.
	held := make(chan render.ReleaseFunc, 1)
	fr := &holdingRender{held: held}

	n := NewNormal(testLogger(), media.TrackVideo, src, cdc, fr, parent)
	defer n.Shutdown()

	if err := n.Configure(codec.Config{Format: media.Format{Width: 640, Height: 480}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	src.push(&media.Packet{TrackType: media.TrackVideo, PTS: 500, Payload: []byte{9}})
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	n.OnInputBufferAvailable(0)

	var release render.ReleaseFunc
	select {
	case release = <-held:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for render dispatch")
	}

	if err := n.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	release(true)

	if err := n.PostAndWait(func() error { return nil }); err != nil {
		t.Fatalf("PostAndWait: %v", err)
	}

	cdc.mu.Lock()
	released := len(cdc.released)
	cdc.mu.Unlock()
	if released != 0 {
		t.Fatalf("released buffers after stale release = %d, want 0 (dropped as stale)", released)
	}
}

// holdingRender captures the release callback instead of invoking it, so
// a test can control exactly when a frame's release happens.
type holdingRender struct {
	held chan render.ReleaseFunc
}

func (h *holdingRender) RenderFrame(frame *media.Frame, release render.ReleaseFunc) {
	h.held <- release
}
