package decoder

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/avplayer/avcore/internal/render"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/source"
	"github.com/avplayer/avcore/status"
)

// Subtitle parses subtitle packets into subtitle Frames and forwards them
// to a render. No codec, no aggregation: parsing is intentionally
// minimal (byte-copy plus a format tag) since downstream sinks typically
// render SRT/ASS/VTT formats themselves.
type Subtitle struct {
	*Base

	src    source.Source
	render render.FrameRender

	format  media.Format
	paused  bool
	fifoEOS bool
}

// NewSubtitle constructs a Subtitle decoder pulling packets from src and
// forwarding parsed frames to frameRender.
func NewSubtitle(log *slog.Logger, src source.Source, frameRender render.FrameRender, parent Parent) *Subtitle {
	return &Subtitle{
		Base:   NewBase(log, media.TrackSubtitle, parent),
		src:    src,
		render: frameRender,
	}
}

// Configure records the track's format (for its MIME-derived format
// hint); there is no codec to configure.
func (s *Subtitle) Configure(format media.Format) error {
	return s.PostAndWait(func() error {
		s.format = format
		return nil
	})
}

// Start begins pulling input.
func (s *Subtitle) Start() error {
	return s.PostAndWait(func() error {
		s.paused = false
		s.fillInput()
		return nil
	})
}

// Pause stops pulling input.
func (s *Subtitle) Pause() error {
	return s.PostAndWait(func() error {
		s.paused = true
		return nil
	})
}

// Resume resumes pulling input.
func (s *Subtitle) Resume() error {
	return s.PostAndWait(func() error {
		s.paused = false
		s.fillInput()
		return nil
	})
}

// Flush bumps the generation and clears the end-of-stream flag. There is
// no codec or staging buffer to drop, and subtitle frames are handed to
// the render with no release closure.
func (s *Subtitle) Flush() error {
	return s.PostAndWait(func() error {
		s.BumpGeneration()
		s.fifoEOS = false
		return nil
	})
}

// Shutdown tears down the decoder's loop.
func (s *Subtitle) Shutdown() error {
	err := s.PostAndWait(func() error {
		s.BumpGeneration()
		return nil
	})
	s.Base.Shutdown()
	return err
}

// fillInput pulls packets one at a time, parsing and forwarding each
// immediately: subtitle cues are small and latency-sensitive, so there is
// no aggregation the way Passthrough aggregates audio.
func (s *Subtitle) fillInput() {
	if s.paused || s.fifoEOS {
		return
	}

	for {
		pkt, err := s.src.DequeueAccessUnit(media.TrackSubtitle)
		if err != nil {
			if errors.Is(err, status.WouldBlock) {
				_ = s.src.FeedMoreESData()
				s.ScheduleInputRetry(s.fillInput)
				return
			}
			if errors.Is(err, status.EndOfStream) {
				s.fifoEOS = true
				s.NotifyEndOfStream()
				return
			}
			s.ReportError(err)
			return
		}

		frame := parseSubtitlePacket(pkt, s.format.MIMEType)
		s.render.RenderFrame(frame, nil)

		if s.paused {
			return
		}
	}
}

// formatHintFor maps a subtitle MIME type to the short tag a sink uses to
// pick its parser (spec.md §6's subtitle MIME set).
func formatHintFor(mime string) string {
	lower := strings.ToLower(mime)
	switch {
	case strings.Contains(lower, "srt"), strings.Contains(lower, "subrip"):
		return "srt"
	case strings.Contains(lower, "ass"), strings.Contains(lower, "ssa"):
		return "ass"
	case strings.Contains(lower, "vtt"):
		return "vtt"
	default:
		return "opaque"
	}
}

// parseSubtitlePacket turns a raw subtitle packet into a subtitle Frame.
// Text formats (SRT/ASS/VTT) are copied into Text as-is; anything else is
// kept as an opaque Payload blob. Parsing is deliberately shallow: the
// sink owns actual cue interpretation.
func parseSubtitlePacket(pkt *media.Packet, mime string) *media.Frame {
	hint := formatHintFor(mime)
	frame := &media.Frame{
		Type:       media.TrackSubtitle,
		PTS:        pkt.PTS,
		Duration:   pkt.Duration,
		FormatHint: hint,
	}
	if hint == "opaque" {
		frame.Payload = append([]byte(nil), pkt.Payload...)
	} else {
		frame.Text = string(pkt.Payload)
	}
	return frame
}
