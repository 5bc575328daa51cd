package render

import (
	"log/slog"

	"github.com/avplayer/avcore/internal/avsync"
	"github.com/avplayer/avcore/media"
)

// SubtitleSink receives timed subtitle frames for display.
type SubtitleSink interface {
	OnSubtitle(frame *media.Frame) error
}

// SubtitleRender merely forwards timed subtitle frames to the external
// subtitle sink, relying on the base Scheduler's clock-gated drop/wait
// policy for timing.
type SubtitleRender struct {
	*Scheduler

	sink SubtitleSink
}

// NewSubtitleRender constructs a SubtitleRender writing to subtitleSink.
func NewSubtitleRender(log *slog.Logger, subtitleSink SubtitleSink, syncCtl *avsync.Controller) *SubtitleRender {
	s := &SubtitleRender{sink: subtitleSink}
	s.Scheduler = NewScheduler(log, syncCtl, KindClockGated)
	s.Scheduler.SetInternal(s)
	return s
}

// RenderFrameInternal forwards frame to the subtitle sink.
func (s *SubtitleRender) RenderFrameInternal(frame *media.Frame) (int64, error) {
	if s.sink == nil {
		return 0, nil
	}
	return 0, s.sink.OnSubtitle(frame)
}
