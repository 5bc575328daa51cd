package srtsource

import (
	"context"
	"errors"
	"io"

	"github.com/avplayer/avcore/internal/mpegts"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/scte35"
)

// Stream types this adapter recognizes, per ISO/IEC 13818-1 Table 2-34 and
// ANSI/SCTE 35 §8.1. Unlisted stream types are ignored.
const (
	streamTypeAVC     = 0x1B
	streamTypeHEVC    = 0x24
	streamTypeAACADTS = 0x0F
	streamTypeAACLATM = 0x11
	streamTypeAC3     = 0x81
	streamTypeEAC3    = 0x87
	streamTypeSCTE35  = 0x86
)

// runPump drives the MPEG-TS demuxer over conn until it returns io.EOF, a
// read error, or ctx is cancelled, translating each unit into queued
// access units or program-map bookkeeping. SCTE-35 splice sections are
// decoded by the demuxer itself once applyPMT registers the SCTE-35 PID,
// and arrive attached to the PES unit they apply to.
func (s *Source) runPump(ctx context.Context, conn io.Reader) {
	demuxer := mpegts.NewDemuxer(ctx, conn)
	s.mu.Lock()
	s.demuxer = demuxer
	s.mu.Unlock()

	prepared := false

	for {
		d, err := demuxer.NextData()
		if err != nil {
			s.finishPump(err)
			return
		}

		switch {
		case d.PAT != nil:
			// Program map PIDs are tracked internally by the demuxer; we
			// only need elementary stream PIDs, surfaced via PMT below.
		case d.PMT != nil:
			s.applyPMT(d.PMT)
			if !prepared && len(s.tracks) > 0 {
				prepared = true
				if n := s.notifyOf(); n != nil {
					n.OnPrepared(nil)
				}
			}
		case d.PES != nil:
			s.routePES(d, d.Splice)
		}
	}
}

func (s *Source) applyPMT(pmt *mpegts.PMTData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, es := range pmt.ElementaryStreams {
		if es.StreamType == streamTypeSCTE35 {
			s.scte35PID = es.ElementaryPID
			if s.demuxer != nil {
				s.demuxer.SetSCTE35PID(es.ElementaryPID)
			}
			continue
		}

		trackType, mime, ok := trackFor(es.StreamType)
		if !ok {
			continue
		}
		if _, exists := s.tracks[es.ElementaryPID]; exists {
			continue
		}

		format := media.Format{TrackType: trackType, MIMEType: mime}
		s.tracks[es.ElementaryPID] = &trackState{trackType: trackType, format: format}

		switch trackType {
		case media.TrackAudio:
			f := format
			s.audioFormat = &f
		case media.TrackVideo:
			f := format
			s.videoFormat = &f
		}
	}
}

func trackFor(streamType uint8) (media.TrackType, string, bool) {
	switch streamType {
	case streamTypeAVC:
		return media.TrackVideo, "video/avc", true
	case streamTypeHEVC:
		return media.TrackVideo, "video/hevc", true
	case streamTypeAACADTS:
		return media.TrackAudio, "audio/aac", true
	case streamTypeAACLATM:
		return media.TrackAudio, "audio/mp4a-latm", true
	case streamTypeAC3:
		return media.TrackAudio, "audio/ac3", true
	case streamTypeEAC3:
		return media.TrackAudio, "audio/eac3", true
	default:
		return 0, "", false
	}
}

// ptsToMicros converts a 90kHz MPEG-TS clock reference to microseconds.
func ptsToMicros(base int64) int64 {
	return base * 100 / 9
}

func (s *Source) routePES(d *mpegts.Unit, splice *scte35.SpliceInfoSection) {
	if d.FirstPacket == nil || d.PES == nil {
		return
	}
	pid := d.FirstPacket.Header.PID

	s.mu.Lock()
	ts, ok := s.tracks[pid]
	s.mu.Unlock()
	if !ok {
		return
	}

	pkt := &media.Packet{
		TrackType: ts.trackType,
		PTS:       -1,
		Payload:   d.PES.Data,
	}
	if d.PES.Header != nil && d.PES.Header.OptionalHeader != nil && d.PES.Header.OptionalHeader.PTS != nil {
		pkt.PTS = ptsToMicros(d.PES.Header.OptionalHeader.PTS.Base)
	}

	switch ts.trackType {
	case media.TrackVideo:
		if isKeyframe(ts.format.MIMEType, pkt.Payload) {
			pkt.Flags |= media.FlagKeyframe
		}
	case media.TrackAudio:
		pkt.Flags |= media.FlagKeyframe
	}

	s.mu.Lock()
	if !ts.formatSent {
		f := ts.format
		pkt.FormatChange = &f
		ts.formatSent = true
	}
	s.mu.Unlock()

	if splice != nil {
		pkt.SpliceInfo = splice
		pkt.Flags |= media.FlagDiscontinuity
	}

	switch ts.trackType {
	case media.TrackAudio:
		s.audioQueue.push(pkt)
	case media.TrackVideo:
		s.videoQueue.push(pkt)
	}
}

func isKeyframe(mime string, payload []byte) bool {
	switch mime {
	case "video/avc":
		return isAVCKeyframe(payload)
	case "video/hevc":
		return isHEVCKeyframe(payload)
	default:
		return false
	}
}

func (s *Source) finishPump(err error) {
	s.audioQueue.close()
	s.videoQueue.close()

	n := s.notifyOf()
	if n == nil {
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		n.OnCompletion()
		return
	}
	n.OnError(err)
}
