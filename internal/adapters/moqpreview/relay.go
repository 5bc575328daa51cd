// Package moqpreview implements a "preview tap": a sink.VideoRenderSink and
// a sink.AudioDevice that, instead of driving real hardware, republish
// decoded frames to remote viewers over native QUIC using the MoQ Transport
// wire protocol (package moqwire), fanned out through a relay. Unlike the
// primary hardware sink, frames here are carried raw (no re-encode): every
// video frame is self-contained, so there is no GOP/keyframe dependency to
// track, only a small replay buffer for viewers that subscribe mid-stream.
package moqpreview

import (
	"context"
	"log/slog"
	"sync"
)

// videoCacheSize bounds how many recent raw video frames are replayed to a
// newly-subscribed viewer, the same pattern as audioCacheSize below.
const (
	videoCacheSize = 4
	audioCacheSize = 50
)

// VideoFrame is a decoded video frame as handed to the preview tap by
// OnFrame, carrying enough of media.Frame to describe and replay it.
type VideoFrame struct {
	PTS         int64
	Width       int
	Height      int
	Stride      int
	PixelFormat string
	Data        []byte
}

// AudioFrame is a block of decoded PCM handed to the preview tap's
// AudioTrack.Write.
type AudioFrame struct {
	PTS  int64
	Data []byte
}

// Viewer is the interface a MoQ session must implement to receive frames
// from a Relay.
type Viewer interface {
	ID() string
	SendVideo(frame *VideoFrame)
	SendAudio(frame *AudioFrame)
	Stats() ViewerStats
}

// ViewerStats reports per-viewer delivery counters.
type ViewerStats struct {
	ID           string
	VideoSent    int64
	AudioSent    int64
	VideoDropped int64
	AudioDropped int64
}

// VideoInfo describes the current video geometry, advertised to viewers via
// the MoQ catalog.
type VideoInfo struct {
	Width       int
	Height      int
	PixelFormat string
}

// AudioInfo describes the current audio format, advertised via the catalog.
type AudioInfo struct {
	SampleRate int
	Channels   int
}

// Relay is the fan-out hub for a single player's preview tap: one video
// track and one audio track, broadcast to every connected MoQ viewer.
type Relay struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]Viewer

	videoInfo      VideoInfo
	videoInfoSet   bool
	videoInfoReady chan struct{}
	audioInfo      AudioInfo
	audioInfoSet   bool

	cacheMu    sync.RWMutex
	videoCache []*VideoFrame
	audioCache []*AudioFrame
}

// NewRelay creates a Relay with no viewers.
func NewRelay(log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		log:            log.With("component", "moqpreview-relay"),
		sessions:       make(map[string]Viewer),
		videoInfoReady: make(chan struct{}),
	}
}

// SetVideoInfo stores the video geometry, closing videoInfoReady the first
// time it's set.
func (r *Relay) SetVideoInfo(info VideoInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.videoInfoSet {
		r.videoInfo = info
		r.videoInfoSet = true
		close(r.videoInfoReady)
	}
}

// VideoInfo returns the current video geometry, or a zero value if no
// frame has arrived yet.
func (r *Relay) VideoInfo() VideoInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.videoInfo
}

// WaitVideoInfo blocks until real video geometry is known or ctx ends.
func (r *Relay) WaitVideoInfo(ctx context.Context) bool {
	r.mu.RLock()
	if r.videoInfoSet {
		r.mu.RUnlock()
		return true
	}
	r.mu.RUnlock()

	select {
	case <-r.videoInfoReady:
		return true
	case <-ctx.Done():
		return false
	}
}

// SetAudioInfo stores the audio format.
func (r *Relay) SetAudioInfo(info AudioInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioInfo = info
	r.audioInfoSet = true
}

// AudioInfo returns the current audio format, or sensible defaults.
func (r *Relay) AudioInfo() AudioInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.audioInfoSet {
		return r.audioInfo
	}
	return AudioInfo{SampleRate: 48000, Channels: 2}
}

// AddViewer replays the cached frames to the viewer, then registers it for
// live delivery. Replay happens first so BroadcastVideo/BroadcastAudio
// cannot interleave a live frame ahead of the replay.
func (r *Relay) AddViewer(v Viewer) {
	r.replayCached(v)

	r.mu.Lock()
	r.sessions[v.ID()] = v
	r.mu.Unlock()

	r.log.Info("viewer added", "session", v.ID(), "viewers", r.ViewerCount())
}

// RemoveViewer unregisters a viewer by ID.
func (r *Relay) RemoveViewer(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.log.Info("viewer removed", "session", id, "viewers", r.ViewerCount())
}

func (r *Relay) replayCached(v Viewer) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for _, f := range r.videoCache {
		v.SendVideo(f)
	}
	for _, f := range r.audioCache {
		v.SendAudio(f)
	}
}

// BroadcastVideo sends a frame to all connected viewers and updates the
// replay cache.
func (r *Relay) BroadcastVideo(frame *VideoFrame) {
	r.cacheMu.Lock()
	r.videoCache = append(r.videoCache, frame)
	if len(r.videoCache) > videoCacheSize {
		r.videoCache = r.videoCache[len(r.videoCache)-videoCacheSize:]
	}
	r.cacheMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.sessions {
		v.SendVideo(frame)
	}
}

// BroadcastAudio sends a frame to all connected viewers and updates the
// replay cache.
func (r *Relay) BroadcastAudio(frame *AudioFrame) {
	r.cacheMu.Lock()
	r.audioCache = append(r.audioCache, frame)
	if len(r.audioCache) > audioCacheSize {
		r.audioCache = r.audioCache[len(r.audioCache)-audioCacheSize:]
	}
	r.cacheMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.sessions {
		v.SendAudio(frame)
	}
}

// ViewerCount returns the number of currently connected viewers.
func (r *Relay) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ViewerStatsAll returns delivery metrics for every connected viewer.
func (r *Relay) ViewerStatsAll() []ViewerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]ViewerStats, 0, len(r.sessions))
	for _, v := range r.sessions {
		stats = append(stats, v.Stats())
	}
	return stats
}
