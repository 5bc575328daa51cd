// Package srtsource implements source.Source over an SRT-delivered MPEG-TS
// stream: an SRT listener accepts a single publisher connection, and an
// internal/mpegts Demuxer turns the byte stream into PAT/PMT/PES units which
// are translated into media.Packet access units, one queue per track.
// SCTE-35 splice commands carried on their own PID (stream_type 0x86) are
// decoded by the demuxer itself and arrive attached to the PES unit they
// apply to, alongside a discontinuity flag the core engine already
// understands.
package srtsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	srtgo "github.com/zsiec/srtgo"

	"github.com/avplayer/avcore/internal/mpegts"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/source"
	"github.com/avplayer/avcore/status"
)

// srtLatencyNs sets the SRT receive buffer latency.
const srtLatencyNs = 120_000_000

// Config configures a Source.
type Config struct {
	// Addr is the local address to listen on, e.g. ":9000".
	Addr string
	Log  *slog.Logger
}

// Source is a source.Source that accepts one SRT publisher and demuxes its
// MPEG-TS payload into audio/video access units.
type Source struct {
	log  *slog.Logger
	addr string

	mu     sync.Mutex
	notify source.Notify
	conn   *srtgo.Conn
	cancel context.CancelFunc

	tracks    map[uint16]*trackState // elementary PID -> track
	scte35PID uint16
	demuxer   *mpegts.Demuxer

	audioFormat *media.Format
	videoFormat *media.Format

	audioQueue packetQueue
	videoQueue packetQueue
}

type trackState struct {
	trackType  media.TrackType
	format     media.Format
	formatSent bool
}

// NewSource creates a Source listening on cfg.Addr once Prepare is called.
func NewSource(cfg Config) *Source {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		log:    log.With("component", "srtsource"),
		addr:   cfg.Addr,
		tracks: make(map[uint16]*trackState),
	}
}

// SetNotify implements source.Source.
func (s *Source) SetNotify(notify source.Notify) {
	s.mu.Lock()
	s.notify = notify
	s.mu.Unlock()
}

func (s *Source) notifyOf() source.Notify {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify
}

// Prepare binds the SRT listener synchronously (so bind failures surface
// immediately) and then accepts the publisher and runs the demux pump in
// the background; OnPrepared fires once the program map yields at least
// one elementary stream.
func (s *Source) Prepare(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("srtsource: listen on %s: %w", s.addr, err)
	}
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		return 0
	})

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info("listening", "addr", s.addr)
	go func() {
		go func() {
			<-runCtx.Done()
			l.Close()
		}()

		conn, err := l.Accept()
		if err != nil {
			if runCtx.Err() != nil {
				return
			}
			s.log.Warn("accept error", "error", err)
			if n := s.notifyOf(); n != nil {
				n.OnPrepared(fmt.Errorf("srtsource: accept: %w", err))
			}
			return
		}
		s.log.Info("publisher connected", "remote", conn.RemoteAddr())

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.runPump(runCtx, conn)
	}()

	return nil
}

// Start is a no-op: the demux pump already runs continuously from Prepare,
// matching a live ingest where data flows whether or not playback has
// started. Decoders begin pulling once the engine issues Start.
func (s *Source) Start(ctx context.Context) error { return nil }

// Stop tears down the listener/connection and closes both track queues.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	s.audioQueue.close()
	s.videoQueue.close()
	return nil
}

// Pause and Resume are no-ops: a live SRT feed cannot be paused at the
// source, only at the render/decoder layer above it.
func (s *Source) Pause(ctx context.Context) error  { return nil }
func (s *Source) Resume(ctx context.Context) error { return nil }

// SeekTo is unsupported: this is a live source with no random access.
func (s *Source) SeekTo(ctx context.Context, ptsUs int64, mode source.SeekMode) error {
	return status.Unsupported
}

// GetTrackInfo implements source.Source.
func (s *Source) GetTrackInfo(trackType media.TrackType) *media.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch trackType {
	case media.TrackAudio:
		return s.audioFormat
	case media.TrackVideo:
		return s.videoFormat
	default:
		return nil
	}
}

// FeedMoreESData is a no-op: the demux pump pushes packets as SRT delivers
// them rather than waiting to be asked.
func (s *Source) FeedMoreESData() error { return nil }

// DequeueAccessUnit implements source.Source.
func (s *Source) DequeueAccessUnit(trackType media.TrackType) (*media.Packet, error) {
	var q *packetQueue
	switch trackType {
	case media.TrackAudio:
		q = &s.audioQueue
	case media.TrackVideo:
		q = &s.videoQueue
	default:
		return nil, status.EndOfStream
	}

	p, eof := q.pop()
	if p != nil {
		return p, nil
	}
	if eof {
		return nil, status.EndOfStream
	}
	return nil, status.WouldBlock
}
