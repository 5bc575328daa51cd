package render

import (
	"log/slog"
	"time"

	"github.com/avplayer/avcore/internal/avsync"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/sink"
)

// AudioRender owns the audio sink, translates frames into device writes,
// detects format changes, and — when it is the master stream — publishes
// clock anchors to the AVSync Controller.
type AudioRender struct {
	*Scheduler

	log     *slog.Logger
	device  sink.AudioDevice
	sync    *avsync.Controller
	isMaster bool

	track sink.AudioTrack

	curSampleRate    int
	curChannelLayout uint32
	curFormat        media.AudioSampleFormat
	haveFormat       bool
}

// NewAudioRender constructs an AudioRender against device, publishing
// anchors to syncCtl when isMaster is true.
func NewAudioRender(log *slog.Logger, device sink.AudioDevice, syncCtl *avsync.Controller, isMaster bool) *AudioRender {
	a := &AudioRender{
		log:      log,
		device:   device,
		sync:     syncCtl,
		isMaster: isMaster,
	}
	a.Scheduler = NewScheduler(log, syncCtl, KindPaced)
	a.Scheduler.SetInternal(a)
	return a
}

// SetMaster toggles whether this render publishes clock anchors. Only one
// audio render may be master at a time; the engine enforces that.
func (a *AudioRender) SetMaster(isMaster bool) {
	a.isMaster = isMaster
}

// OpenAudioSink opens (or reopens) the hardware audio track with cfg.
// RenderFrameInternal calls it on the first frame and on each format change.
func (a *AudioRender) OpenAudioSink(cfg sink.AudioConfig) error {
	if a.track != nil {
		_ = a.track.Close()
		a.track = nil
	}
	track, err := a.device.CreateAudioTrack()
	if err != nil {
		return err
	}
	if err := track.Open(cfg); err != nil {
		return err
	}
	a.track = track
	a.curSampleRate = cfg.SampleRate
	a.curChannelLayout = cfg.ChannelLayout
	a.curFormat = cfg.Format
	a.haveFormat = true
	return nil
}

// CloseAudioSink closes the hardware audio track, if open.
func (a *AudioRender) CloseAudioSink() error {
	if a.track == nil {
		return nil
	}
	err := a.track.Close()
	a.track = nil
	a.haveFormat = false
	return err
}

// formatChanged reports whether frame's (sample_rate, channel_layout,
// sample_format) differs from the currently open sink.
func (a *AudioRender) formatChanged(frame *media.Frame) bool {
	if !a.haveFormat {
		return true
	}
	return frame.SampleRate != a.curSampleRate ||
		frame.ChannelLayout != a.curChannelLayout ||
		frame.SampleFormat != a.curFormat
}

// mapSinkFormat derives a sink.AudioConfig from a frame, choosing PCM vs
// offload pass-through metadata by sample format.
func mapSinkFormat(frame *media.Frame) sink.AudioConfig {
	cfg := sink.AudioConfig{
		SampleRate:    frame.SampleRate,
		ChannelLayout: frame.ChannelLayout,
		Format:        frame.SampleFormat,
	}
	switch frame.SampleFormat {
	case media.FormatPCM16, media.FormatPCM24Packed, media.FormatPCMFloat:
		// Plain PCM: no offload metadata required.
	default:
		cfg.Offload = &sink.OffloadInfo{
			Format:        frame.SampleFormat,
			SampleRate:    frame.SampleRate,
			ChannelLayout: frame.ChannelLayout,
		}
	}
	return cfg
}

// RenderFrameInternal writes frame to the sink, publishes the clock
// anchor if master, and returns the next scheduling delay derived from
// current device buffer state.
func (a *AudioRender) RenderFrameInternal(frame *media.Frame) (int64, error) {
	if a.formatChanged(frame) {
		if err := a.CloseAudioSink(); err != nil && a.log != nil {
			a.log.Warn("close audio sink failed", "error", err)
		}
		if err := a.OpenAudioSink(mapSinkFormat(frame)); err != nil {
			return int64(frame.Duration), err
		}
	}

	if a.track != nil {
		if _, err := a.track.Write(frame.Payload, false); err != nil {
			return int64(frame.Duration), err
		}
	}

	if a.isMaster && a.sync != nil {
		a.sync.UpdateAnchor(frame.PTS, time.Now().UnixMicro(), frame.PTS+frame.Duration)
	}

	return a.nextDelayUs(frame), nil
}

// nextDelayUs paces writes by device buffer state: write faster when the
// buffer is starved, slower when it is nearly full, otherwise at the
// frame's own cadence.
func (a *AudioRender) nextDelayUs(frame *media.Frame) int64 {
	if a.track == nil {
		return frame.Duration
	}
	bufferUs := a.track.GetBufferDurationUs()
	latencyUs := a.track.LatencyUs()
	if latencyUs <= 0 {
		return frame.Duration
	}

	switch {
	case bufferUs > int64(0.8*float64(latencyUs)):
		return 2 * frame.Duration
	case bufferUs < int64(0.2*float64(latencyUs)):
		return int64(0.5 * float64(frame.Duration))
	default:
		return frame.Duration
	}
}

// SetPlaybackRate attempts hardware rate change; if unsupported, the rate
// is simply recorded on the sync controller and software rate conversion
// is left as a deferred extension (see DESIGN.md).
func (a *AudioRender) SetPlaybackRate(rate float64) error {
	if a.track != nil {
		if supported, err := a.track.SetPlaybackRate(rate); err != nil {
			return err
		} else if !supported && a.log != nil {
			a.log.Debug("hardware rate unsupported, software conversion deferred", "rate", rate)
		}
	}
	if a.sync != nil {
		a.sync.SetPlaybackRate(rate)
	}
	return nil
}
