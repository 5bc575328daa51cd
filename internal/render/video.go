package render

import (
	"log/slog"

	"github.com/avplayer/avcore/internal/avsync"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/sink"
)

// VideoRender forwards frames to an externally supplied video sink,
// tracking the current geometry/pixel format to report size changes. The
// base Scheduler applies the drop/early-wait policy; RenderFrameInternal
// always returns 0 since the base class ignores the delay for
// clock-gated renders.
type VideoRender struct {
	*Scheduler

	log  *slog.Logger
	sink sink.VideoRenderSink

	width, height int
	pixelFormat   media.PixelFormat
	onSizeChanged func(width, height int, format media.PixelFormat)
}

// NewVideoRender constructs a VideoRender writing to videoSink. onSizeChanged,
// if non-nil, is invoked whenever a frame's geometry differs from the last
// one delivered (the engine wires this to its VideoSizeChanged notification).
func NewVideoRender(log *slog.Logger, videoSink sink.VideoRenderSink, syncCtl *avsync.Controller, onSizeChanged func(int, int, media.PixelFormat)) *VideoRender {
	v := &VideoRender{
		log:           log,
		sink:          videoSink,
		onSizeChanged: onSizeChanged,
	}
	v.Scheduler = NewScheduler(log, syncCtl, KindClockGated)
	v.Scheduler.SetInternal(v)
	return v
}

// SetSink swaps the underlying video sink. The engine's SetVideoRenderSink
// calls it inline, with no flush, when a software VideoRender exists.
func (v *VideoRender) SetSink(s sink.VideoRenderSink) {
	v.sink = s
}

// RenderFrameInternal forwards frame to the sink, reporting a size change
// first if geometry differs from the previous frame.
func (v *VideoRender) RenderFrameInternal(frame *media.Frame) (int64, error) {
	if frame.Width != v.width || frame.Height != v.height || frame.PixelFormat != v.pixelFormat {
		v.width, v.height, v.pixelFormat = frame.Width, frame.Height, frame.PixelFormat
		if v.onSizeChanged != nil {
			v.onSizeChanged(frame.Width, frame.Height, frame.PixelFormat)
		}
	}
	if v.sink == nil {
		return 0, nil
	}
	return 0, v.sink.OnFrame(frame)
}
