package engine

import (
	"context"
	"strings"
	"time"

	"github.com/avplayer/avcore/codec"
	"github.com/avplayer/avcore/internal/decoder"
	"github.com/avplayer/avcore/internal/render"
	"github.com/avplayer/avcore/media"
)

// tunnelCapableVideoMimes and passthroughCapableAudioMimes are the
// authoritative decoder-type-selection mime lists.
var tunnelCapableVideoMimes = []string{"avc", "hevc", "h264", "h265", "mp4v-es", "vp8", "vp9", "av01"}

var passthroughCapableAudioMimes = []string{"aac", "ac3", "eac3", "dts", "dts-hd", "mp4a-latm", "mpeg", "vorbis", "flac", "opus"}

func mimeIn(mime string, set []string) bool {
	lower := strings.ToLower(mime)
	for _, m := range set {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func isSubtitleMime(mime string) bool {
	lower := strings.ToLower(mime)
	return strings.HasPrefix(lower, "text/") || strings.HasPrefix(lower, "subtitle/") ||
		strings.Contains(lower, "srt") || strings.Contains(lower, "vtt") ||
		strings.Contains(lower, "ass") || strings.Contains(lower, "ssa")
}

func isPCMMime(mime string) bool {
	return strings.Contains(strings.ToLower(mime), "pcm")
}

// decoderKind is the outcome of the decoder factory's mode selection.
type decoderKind int

const (
	kindNormal decoderKind = iota
	kindPassthrough
	kindTunnel
	kindSubtitle
)

// selectDecoderKind implements the factory selection rule of spec.md
// §4.11: Subtitle by mime, then Tunnel (if requested and mime-capable),
// then Passthrough (if tunnel not selected and requested-or-already-PCM),
// else Normal.
func selectDecoderKind(format media.Format, tunnelRequested, audioPassthroughRequested bool) decoderKind {
	if isSubtitleMime(format.MIMEType) {
		return kindSubtitle
	}
	if tunnelRequested && mimeIn(format.MIMEType, tunnelCapableVideoMimes) {
		return kindTunnel
	}
	if audioPassthroughRequested || isPCMMime(format.MIMEType) {
		return kindPassthrough
	}
	return kindNormal
}

// scanSources implements the machine's lazy decoder instantiation: bumps
// scanGeneration, then for each available-but-not-yet-instantiated
// track/sink pair invokes the decoder factory. A factory returning
// status.WouldBlock reschedules the scan at scanRetryDelay.
func (e *Engine) scanSources(ctx context.Context) {
	e.scanGeneration++
	gen := e.scanGeneration

	retry := false

	if e.audioDecoder == nil && e.cfg.AudioDevice != nil {
		if format := e.cfg.Source.GetTrackInfo(media.TrackAudio); format != nil {
			if err := e.instantiateAudio(*format); err != nil {
				if isWouldBlock(err) {
					retry = true
				} else {
					e.reportError(media.TrackAudio, err)
				}
			}
		}
	}

	if e.videoDecoder == nil && e.videoSink != nil {
		if format := e.cfg.Source.GetTrackInfo(media.TrackVideo); format != nil {
			if err := e.instantiateVideo(*format); err != nil {
				if isWouldBlock(err) {
					retry = true
				} else {
					e.reportError(media.TrackVideo, err)
				}
			}
		}
	}

	if retry {
		e.scheduleScanRetryAt(ctx, gen)
	}
}

func (e *Engine) scheduleScanRetry(ctx context.Context) {
	e.scheduleScanRetryAt(ctx, e.scanGeneration)
}

func (e *Engine) scheduleScanRetryAt(ctx context.Context, generation int64) {
	time.AfterFunc(scanRetryDelay, func() {
		e.Post(func() {
			if generation != e.scanGeneration {
				return // stale: something invalidated this scan already
			}
			e.scanSources(ctx)
		})
	})
}

// instantiateAudio builds an audio decoder pipeline of the kind selected
// by the format's mime, wiring it to a (possibly newly created)
// AudioRender.
func (e *Engine) instantiateAudio(format media.Format) error {
	kind := selectDecoderKind(format, false, e.cfg.AudioPassthroughRequested)

	if e.audioRender == nil {
		e.audioRender = render.NewAudioRender(e.log, e.cfg.AudioDevice, e.sync, true)
	}
	e.audioRender.Start()

	switch kind {
	case kindPassthrough:
		p := decoder.NewPassthrough(e.log, e.cfg.Source, e.audioRender, e)
		e.audioDecoder = p
		if err := p.Configure(format); err != nil {
			return err
		}
	default:
		cdc, err := e.cfg.CodecFactory(format, media.TrackAudio, nil)
		if err != nil {
			return err
		}
		n := decoder.NewNormal(e.log, media.TrackAudio, e.cfg.Source, cdc, e.audioRender, e)
		e.audioDecoder = n
		if err := n.Configure(codec.Config{Format: format, MIMEType: format.MIMEType, MediaType: media.TrackAudio}); err != nil {
			return err
		}
	}
	return e.audioDecoder.Start()
}

// instantiateVideo builds a video decoder pipeline of the kind selected
// by the format's mime, wiring it to a (possibly newly created)
// VideoRender, or to a Tunnel decoder whose codec renders directly to
// the hardware sink.
func (e *Engine) instantiateVideo(format media.Format) error {
	kind := selectDecoderKind(format, e.cfg.TunnelRequested, false)

	switch kind {
	case kindTunnel:
		cdc, err := e.cfg.CodecFactory(format, media.TrackVideo, e.videoSink)
		if err != nil {
			return err
		}
		tn := decoder.NewTunnel(e.log, e.cfg.Source, cdc, e)
		e.videoDecoder = tn
		if err := tn.Configure(codec.Config{Format: format, MIMEType: format.MIMEType, MediaType: media.TrackVideo, VideoSink: e.videoSink}); err != nil {
			return err
		}
	default:
		if e.videoRender == nil {
			e.videoRender = render.NewVideoRender(e.log, e.videoSink, e.sync, e.onDecodedVideoSizeChanged)
		}
		e.videoRender.Start()
		cdc, err := e.cfg.CodecFactory(format, media.TrackVideo, nil)
		if err != nil {
			return err
		}
		n := decoder.NewNormal(e.log, media.TrackVideo, e.cfg.Source, cdc, e.videoRender, e)
		e.videoDecoder = n
		if err := n.Configure(codec.Config{Format: format, MIMEType: format.MIMEType, MediaType: media.TrackVideo}); err != nil {
			return err
		}
	}
	return e.videoDecoder.Start()
}

func (e *Engine) onDecodedVideoSizeChanged(width, height int, format media.PixelFormat) {
	if e.cfg.Listener != nil {
		e.cfg.Listener.OnVideoSizeChanged(width, height, format)
	}
}
