package moqpreview

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

type mockViewer struct {
	id string

	mu     sync.Mutex
	videos []*VideoFrame
	audios []*AudioFrame

	videoSent atomic.Int64
	audioSent atomic.Int64
}

func newMockViewer(id string) *mockViewer { return &mockViewer{id: id} }

func (m *mockViewer) ID() string { return m.id }

func (m *mockViewer) SendVideo(frame *VideoFrame) {
	m.mu.Lock()
	m.videos = append(m.videos, frame)
	m.mu.Unlock()
	m.videoSent.Add(1)
}

func (m *mockViewer) SendAudio(frame *AudioFrame) {
	m.mu.Lock()
	m.audios = append(m.audios, frame)
	m.mu.Unlock()
	m.audioSent.Add(1)
}

func (m *mockViewer) Stats() ViewerStats {
	return ViewerStats{ID: m.id, VideoSent: m.videoSent.Load(), AudioSent: m.audioSent.Load()}
}

func (m *mockViewer) videoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.videos)
}

func TestRelayAddRemoveViewer(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)
	v := newMockViewer("v1")

	r.AddViewer(v)
	if r.ViewerCount() != 1 {
		t.Errorf("ViewerCount: got %d, want 1", r.ViewerCount())
	}

	r.RemoveViewer("v1")
	if r.ViewerCount() != 0 {
		t.Errorf("ViewerCount: got %d, want 0", r.ViewerCount())
	}
}

func TestRelayBroadcastVideo(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)
	v1 := newMockViewer("v1")
	v2 := newMockViewer("v2")

	r.AddViewer(v1)
	r.AddViewer(v2)

	r.BroadcastVideo(&VideoFrame{PTS: 1000, Data: []byte{0x01, 0x02}})

	if v1.videoCount() != 1 {
		t.Errorf("v1 video count: got %d, want 1", v1.videoCount())
	}
	if v2.videoCount() != 1 {
		t.Errorf("v2 video count: got %d, want 1", v2.videoCount())
	}
}

func TestRelayBroadcastAudio(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)
	v := newMockViewer("v1")
	r.AddViewer(v)

	r.BroadcastAudio(&AudioFrame{PTS: 1000, Data: []byte{0xFF}})

	if v.audioSent.Load() != 1 {
		t.Errorf("audio sent: got %d, want 1", v.audioSent.Load())
	}
}

func TestRelayReplayOrdering(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)

	r.BroadcastVideo(&VideoFrame{PTS: 1000, Data: []byte{0x01}})
	r.BroadcastVideo(&VideoFrame{PTS: 2000, Data: []byte{0x02}})
	r.BroadcastVideo(&VideoFrame{PTS: 3000, Data: []byte{0x03}})

	v := newMockViewer("late")
	r.AddViewer(v)

	if v.videoCount() != 3 {
		t.Fatalf("replay: got %d frames, want 3", v.videoCount())
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.videos[0].PTS != 1000 || v.videos[1].PTS != 2000 || v.videos[2].PTS != 3000 {
		t.Errorf("replay order: got PTS %d,%d,%d, want 1000,2000,3000",
			v.videos[0].PTS, v.videos[1].PTS, v.videos[2].PTS)
	}
}

func TestRelayReplayCapped(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)
	for i := 0; i < videoCacheSize+3; i++ {
		r.BroadcastVideo(&VideoFrame{PTS: int64(i)})
	}

	v := newMockViewer("late")
	r.AddViewer(v)

	if v.videoCount() != videoCacheSize {
		t.Errorf("capped replay: got %d frames, want %d", v.videoCount(), videoCacheSize)
	}
}

func TestRelayWaitVideoInfo(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	if r.WaitVideoInfo(ctx) {
		t.Error("expected WaitVideoInfo to return false before video info set")
	}

	r.SetVideoInfo(VideoInfo{Width: 1280, Height: 720, PixelFormat: "i420"})

	ctx2, cancel2 := context.WithTimeout(context.Background(), 0)
	defer cancel2()
	if !r.WaitVideoInfo(ctx2) {
		t.Error("expected WaitVideoInfo to return true after video info set")
	}

	vi := r.VideoInfo()
	if vi.Width != 1280 || vi.Height != 720 {
		t.Errorf("VideoInfo: got %dx%d, want 1280x720", vi.Width, vi.Height)
	}
}

func TestRelayViewerCount(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)

	r.AddViewer(newMockViewer("a"))
	r.AddViewer(newMockViewer("b"))
	r.AddViewer(newMockViewer("c"))

	if r.ViewerCount() != 3 {
		t.Errorf("ViewerCount: got %d, want 3", r.ViewerCount())
	}

	r.RemoveViewer("b")
	if r.ViewerCount() != 2 {
		t.Errorf("ViewerCount after remove: got %d, want 2", r.ViewerCount())
	}
}

func TestRelayViewerStatsAll(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)
	v := newMockViewer("v1")
	r.AddViewer(v)

	r.BroadcastVideo(&VideoFrame{PTS: 1000})

	stats := r.ViewerStatsAll()
	if len(stats) != 1 {
		t.Fatalf("ViewerStatsAll: got %d entries, want 1", len(stats))
	}
	if stats[0].VideoSent != 1 {
		t.Errorf("VideoSent: got %d, want 1", stats[0].VideoSent)
	}
}

func TestRelayAudioInfoDefault(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil)

	ai := r.AudioInfo()
	if ai.SampleRate != 48000 || ai.Channels != 2 {
		t.Errorf("default AudioInfo: got %d/%d, want 48000/2", ai.SampleRate, ai.Channels)
	}

	r.SetAudioInfo(AudioInfo{SampleRate: 44100, Channels: 1})
	ai = r.AudioInfo()
	if ai.SampleRate != 44100 || ai.Channels != 1 {
		t.Errorf("AudioInfo: got %d/%d, want 44100/1", ai.SampleRate, ai.Channels)
	}
}
