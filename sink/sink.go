// Package sink defines the hardware-facing contracts the render layer
// writes to: the audio output device and the video render surface.
package sink

import "github.com/avplayer/avcore/media"

// AudioConfig describes the format an AudioTrack should be opened with.
type AudioConfig struct {
	SampleRate    int
	ChannelLayout uint32
	Format        media.AudioSampleFormat
	FrameSize     int
	Offload       *OffloadInfo
}

// OffloadInfo carries encoded pass-through metadata for compressed formats
// (AAC/AC3/DTS/...) written straight through to hardware decode.
type OffloadInfo struct {
	Format        media.AudioSampleFormat
	SampleRate    int
	ChannelLayout uint32
	BitWidth      int
}

// AudioTrack is a single opened hardware audio output stream.
type AudioTrack interface {
	Open(cfg AudioConfig) error
	Start() error
	Stop() error
	Pause() error
	Flush() error
	Close() error

	// Write is non-blocking when blocking=false; it returns the number of
	// bytes accepted.
	Write(buf []byte, blocking bool) (int, error)

	GetFramesWritten() int64
	GetBufferDurationUs() int64
	LatencyUs() int64
	MsecsPerFrame() float64

	// SetPlaybackRate attempts hardware rate change, returning false if
	// the device does not support it (software conversion is then the
	// caller's responsibility).
	SetPlaybackRate(rate float64) (supported bool, err error)
}

// AudioDevice creates AudioTrack handles.
type AudioDevice interface {
	Init() error
	CreateAudioTrack() (AudioTrack, error)
}

// VideoRenderSink receives decoded video frames for display.
type VideoRenderSink interface {
	OnFrame(frame *media.Frame) error
	RenderLatencyUs() int64
}
