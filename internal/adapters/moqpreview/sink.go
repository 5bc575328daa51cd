package moqpreview

import (
	"time"

	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/sink"
)

// pixelFormatName returns the catalog-facing codec suffix for a decoded
// pixel layout. Unknown/opaque formats are never expected here: the
// preview tap only ever receives software frames with a real Payload.
func pixelFormatName(pf media.PixelFormat) string {
	switch pf {
	case media.PixelI420:
		return "i420"
	case media.PixelNV12:
		return "nv12"
	case media.PixelRGBA:
		return "rgba"
	default:
		return "unknown"
	}
}

// VideoSink is a sink.VideoRenderSink that republishes decoded frames to
// the Relay instead of driving a display. RenderLatencyUs reports zero
// since there is no real presentation pipeline downstream of it.
type VideoSink struct {
	relay *Relay
}

// NewVideoSink wraps relay as a sink.VideoRenderSink.
func NewVideoSink(relay *Relay) *VideoSink {
	return &VideoSink{relay: relay}
}

var _ sink.VideoRenderSink = (*VideoSink)(nil)

// OnFrame forwards a decoded video frame to every connected viewer.
func (v *VideoSink) OnFrame(frame *media.Frame) error {
	v.relay.SetVideoInfo(VideoInfo{
		Width:       frame.Width,
		Height:      frame.Height,
		PixelFormat: pixelFormatName(frame.PixelFormat),
	})

	data := make([]byte, len(frame.Payload))
	copy(data, frame.Payload)

	v.relay.BroadcastVideo(&VideoFrame{
		PTS:         frame.PTS,
		Width:       frame.Width,
		Height:      frame.Height,
		Stride:      frame.Stride,
		PixelFormat: pixelFormatName(frame.PixelFormat),
		Data:        data,
	})
	return nil
}

// RenderLatencyUs reports no added latency: frames are forwarded as they
// arrive, with no internal buffering.
func (v *VideoSink) RenderLatencyUs() int64 { return 0 }

// AudioDevice is a sink.AudioDevice that republishes decoded PCM to the
// Relay instead of driving a hardware output.
type AudioDevice struct {
	relay *Relay
}

// NewAudioDevice wraps relay as a sink.AudioDevice.
func NewAudioDevice(relay *Relay) *AudioDevice {
	return &AudioDevice{relay: relay}
}

var _ sink.AudioDevice = (*AudioDevice)(nil)

func (d *AudioDevice) Init() error { return nil }

func (d *AudioDevice) CreateAudioTrack() (sink.AudioTrack, error) {
	return &audioTrack{relay: d.relay}, nil
}

// audioTrack is the sink.AudioTrack returned by AudioDevice. Compressed
// (offload) formats are accepted but forwarded as opaque bytes: there is
// no decoder on the viewer side of this tap, only a raw PCM consumer, so
// offload passthrough data is published unchanged and tagged "raw.pcm"
// regardless of its real encoding — a limitation of this preview-only
// adapter, not of the MoQ transport itself.
type audioTrack struct {
	relay *Relay

	cfg          sink.AudioConfig
	bytesPerFrame int
	framesWritten int64
	openedAt      time.Time
}

var _ sink.AudioTrack = (*audioTrack)(nil)

func (t *audioTrack) Open(cfg sink.AudioConfig) error {
	t.cfg = cfg
	t.openedAt = time.Now()
	t.framesWritten = 0

	channels := channelsFromLayout(cfg.ChannelLayout)
	t.bytesPerFrame = channels * bytesPerSample(cfg.Format)
	if t.bytesPerFrame <= 0 {
		t.bytesPerFrame = 1
	}

	t.relay.SetAudioInfo(AudioInfo{SampleRate: cfg.SampleRate, Channels: channels})
	return nil
}

func (t *audioTrack) Start() error { return nil }
func (t *audioTrack) Stop() error  { return nil }
func (t *audioTrack) Pause() error { return nil }
func (t *audioTrack) Flush() error { return nil }
func (t *audioTrack) Close() error { return nil }

func (t *audioTrack) Write(buf []byte, _ bool) (int, error) {
	data := make([]byte, len(buf))
	copy(data, buf)

	ptsUs := t.framesWritten * int64(time.Second/time.Microsecond) / int64(max(1, t.cfg.SampleRate))
	if t.bytesPerFrame > 0 {
		t.framesWritten += int64(len(buf) / t.bytesPerFrame)
	}

	t.relay.BroadcastAudio(&AudioFrame{PTS: ptsUs, Data: data})
	return len(buf), nil
}

func (t *audioTrack) GetFramesWritten() int64 { return t.framesWritten }

func (t *audioTrack) GetBufferDurationUs() int64 { return 0 }

func (t *audioTrack) LatencyUs() int64 { return 0 }

func (t *audioTrack) MsecsPerFrame() float64 {
	if t.cfg.SampleRate <= 0 {
		return 0
	}
	return 1000.0 / float64(t.cfg.SampleRate)
}

// SetPlaybackRate is unsupported: this sink has no hardware clock to
// retime against.
func (t *audioTrack) SetPlaybackRate(_ float64) (bool, error) { return false, nil }

// channelsFromLayout counts the set bits in a channel layout bitmask.
func channelsFromLayout(layout uint32) int {
	n := 0
	for layout != 0 {
		n += int(layout & 1)
		layout >>= 1
	}
	if n == 0 {
		return 2
	}
	return n
}

func bytesPerSample(format media.AudioSampleFormat) int {
	switch format {
	case media.FormatPCM16:
		return 2
	case media.FormatPCM24Packed:
		return 3
	case media.FormatPCMFloat:
		return 4
	default:
		return 2
	}
}
