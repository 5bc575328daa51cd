package decoder

import (
	"testing"
	"time"

	"github.com/avplayer/avcore/media"
)

func TestSubtitleDecoderParsesSRTText(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	src.push(&media.Packet{TrackType: media.TrackSubtitle, PTS: 1500, Payload: []byte("hello there")})
	fr := newFakeFrameRender()
	parent := &fakeParent{}

	s := NewSubtitle(testLogger(), src, fr, parent)
	defer s.Shutdown()

	if err := s.Configure(media.Format{MIMEType: "application/x-subrip"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	frame := waitFrame(t, fr, time.Second)
	if frame.FormatHint != "srt" {
		t.Fatalf("FormatHint = %q, want %q", frame.FormatHint, "srt")
	}
	if frame.Text != "hello there" {
		t.Fatalf("Text = %q, want %q", frame.Text, "hello there")
	}
	if frame.PTS != 1500 {
		t.Fatalf("PTS = %d, want 1500", frame.PTS)
	}
}

func TestSubtitleDecoderOpaqueFormatKeepsPayload(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	src.push(&media.Packet{TrackType: media.TrackSubtitle, PTS: 0, Payload: []byte{1, 2, 3, 4}})
	fr := newFakeFrameRender()
	parent := &fakeParent{}

	s := NewSubtitle(testLogger(), src, fr, parent)
	defer s.Shutdown()

	if err := s.Configure(media.Format{MIMEType: "application/x-unknown-subs"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	frame := waitFrame(t, fr, time.Second)
	if frame.FormatHint != "opaque" {
		t.Fatalf("FormatHint = %q, want %q", frame.FormatHint, "opaque")
	}
	if frame.Text != "" {
		t.Fatalf("Text = %q, want empty for opaque format", frame.Text)
	}
	if len(frame.Payload) != 4 {
		t.Fatalf("Payload len = %d, want 4", len(frame.Payload))
	}
}
