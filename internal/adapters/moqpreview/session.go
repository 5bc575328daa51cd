package moqpreview

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"github.com/avplayer/avcore/internal/moqwire"
)

const (
	priorityVideo = 128
	priorityAudio = 128

	// videoChanSize/audioChanSize bound how far a slow viewer can lag
	// before frames are dropped.
	videoChanSize = 8
	audioChanSize = 32

	namespace = "avplayer/preview"
)

type trackSub struct {
	requestID  uint64
	trackAlias uint64
	videoCh    chan *VideoFrame
	audioCh    chan *AudioFrame
	cancel     context.CancelFunc
}

// session manages a single MoQ viewer connection over one QUIC connection:
// a control stream carries the CLIENT_SETUP/SUBSCRIBE handshake, and each
// subscribed track gets its own unidirectional data stream and write loop.
// It implements Viewer so Relay can fan frames out to it.
type session struct {
	id    string
	log   *slog.Logger
	conn  quic.Connection
	relay *Relay

	control       quic.Stream
	controlReader *bufio.Reader
	controlMu     sync.Mutex

	mu             sync.RWMutex
	subscriptions  map[string]*trackSub
	nextTrackAlias uint64

	closed atomic.Bool

	videoSent    atomic.Int64
	audioSent    atomic.Int64
	videoDropped atomic.Int64
	audioDropped atomic.Int64
}

var _ Viewer = (*session)(nil)

func newSession(id string, log *slog.Logger, conn quic.Connection, control quic.Stream, relay *Relay) *session {
	return &session{
		id:            id,
		log:           log.With("viewer", id),
		conn:          conn,
		relay:         relay,
		control:       control,
		controlReader: bufio.NewReader(control),
		subscriptions: make(map[string]*trackSub),
	}
}

func (s *session) ID() string { return s.id }

// handshake performs the CLIENT_SETUP / SERVER_SETUP exchange.
func (s *session) handshake() error {
	msgType, payload, err := moqwire.ReadControlMsg(s.controlReader)
	if err != nil {
		return fmt.Errorf("read CLIENT_SETUP: %w", err)
	}
	if msgType != moqwire.MsgClientSetup {
		return fmt.Errorf("expected CLIENT_SETUP (0x%x), got 0x%x", moqwire.MsgClientSetup, msgType)
	}

	cs, err := moqwire.ParseClientSetup(payload)
	if err != nil {
		return fmt.Errorf("parse CLIENT_SETUP: %w", err)
	}

	versionOK := false
	for _, v := range cs.Versions {
		if v == moqwire.Version {
			versionOK = true
			break
		}
	}
	if !versionOK {
		return fmt.Errorf("%w (client offered %v)", moqwire.ErrVersionMismatch, cs.Versions)
	}

	ss := moqwire.ServerSetup{SelectedVersion: moqwire.Version, MaxRequestID: 100}
	s.controlMu.Lock()
	err = moqwire.WriteControlMsg(s.control, moqwire.MsgServerSetup, moqwire.SerializeServerSetup(ss))
	s.controlMu.Unlock()
	if err != nil {
		return fmt.Errorf("write SERVER_SETUP: %w", err)
	}
	return nil
}

// run drives the control loop until ctx is cancelled or the peer disconnects.
func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.readControlLoop(ctx)
	<-ctx.Done()

	s.closed.Store(true)
	s.controlMu.Lock()
	_ = moqwire.WriteControlMsg(s.control, moqwire.MsgGoAway, moqwire.SerializeGoAway(moqwire.GoAway{}))
	s.controlMu.Unlock()

	s.mu.Lock()
	for _, sub := range s.subscriptions {
		sub.cancel()
	}
	s.subscriptions = make(map[string]*trackSub)
	s.mu.Unlock()
}

func (s *session) readControlLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgType, payload, err := moqwire.ReadControlMsg(s.controlReader)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("control read error", "error", err)
			}
			return
		}

		switch msgType {
		case moqwire.MsgSubscribe:
			sub, err := moqwire.ParseSubscribe(payload)
			if err != nil {
				s.log.Warn("bad SUBSCRIBE", "error", err)
				continue
			}
			s.handleSubscribe(ctx, sub)
		case moqwire.MsgUnsubscribe:
			unsub, err := moqwire.ParseUnsubscribe(payload)
			if err != nil {
				s.log.Warn("bad UNSUBSCRIBE", "error", err)
				continue
			}
			s.handleUnsubscribe(unsub)
		default:
			s.log.Debug("unhandled control message", "type", msgType)
		}
	}
}

func (s *session) handleSubscribe(ctx context.Context, sub moqwire.Subscribe) {
	if sub.FilterType != moqwire.FilterNextGroupStart && sub.FilterType != moqwire.FilterLatestObject {
		s.sendSubscribeError(sub.RequestID, 400, moqwire.ErrUnsupportedFilter.Error())
		return
	}

	s.mu.Lock()
	alias := s.nextTrackAlias
	s.nextTrackAlias++
	s.mu.Unlock()

	switch sub.TrackName {
	case "catalog":
		s.handleCatalogSubscribe(ctx, sub, alias)
	case "video":
		s.handleVideoSubscribe(ctx, sub, alias)
	case "audio":
		s.handleAudioSubscribe(ctx, sub, alias)
	default:
		s.sendSubscribeError(sub.RequestID, 404, moqwire.ErrUnknownTrack.Error())
	}
}

func (s *session) handleCatalogSubscribe(ctx context.Context, sub moqwire.Subscribe, alias uint64) {
	catalogJSON, err := buildCatalog(namespace, s.relay)
	if err != nil {
		s.sendSubscribeError(sub.RequestID, 500, "catalog build failed")
		return
	}
	if err := writeCatalogObject(ctx, s.conn, alias, catalogJSON); err != nil {
		s.log.Warn("catalog delivery failed", "error", err)
		s.sendSubscribeError(sub.RequestID, 500, "catalog delivery failed")
		return
	}
	s.sendSubscribeOK(sub.RequestID, alias, true)
}

func (s *session) handleVideoSubscribe(ctx context.Context, sub moqwire.Subscribe, alias uint64) {
	subCtx, cancel := context.WithCancel(ctx)
	ts := &trackSub{requestID: sub.RequestID, trackAlias: alias, videoCh: make(chan *VideoFrame, videoChanSize), cancel: cancel}

	s.mu.Lock()
	s.subscriptions["video"] = ts
	s.mu.Unlock()

	s.sendSubscribeOK(sub.RequestID, alias, false)
	go s.writeVideoLoop(subCtx, ts)
}

func (s *session) handleAudioSubscribe(ctx context.Context, sub moqwire.Subscribe, alias uint64) {
	subCtx, cancel := context.WithCancel(ctx)
	ts := &trackSub{requestID: sub.RequestID, trackAlias: alias, audioCh: make(chan *AudioFrame, audioChanSize), cancel: cancel}

	s.mu.Lock()
	s.subscriptions["audio"] = ts
	s.mu.Unlock()

	s.sendSubscribeOK(sub.RequestID, alias, false)
	go s.writeAudioLoop(subCtx, ts)
}

func (s *session) handleUnsubscribe(unsub moqwire.Unsubscribe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sub := range s.subscriptions {
		if sub.requestID == unsub.RequestID {
			sub.cancel()
			delete(s.subscriptions, name)
			return
		}
	}
}

func (s *session) sendSubscribeOK(requestID, trackAlias uint64, contentExists bool) {
	sok := moqwire.SubscribeOK{RequestID: requestID, TrackAlias: trackAlias, GroupOrder: moqwire.GroupOrderAscending, ContentExists: contentExists}
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	if err := moqwire.WriteControlMsg(s.control, moqwire.MsgSubscribeOK, moqwire.SerializeSubscribeOK(sok)); err != nil {
		s.log.Warn("write SUBSCRIBE_OK failed", "error", err)
	}
}

func (s *session) sendSubscribeError(requestID, errorCode uint64, reason string) {
	se := moqwire.SubscribeError{RequestID: requestID, ErrorCode: errorCode, ReasonPhrase: reason}
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	if err := moqwire.WriteControlMsg(s.control, moqwire.MsgSubscribeError, moqwire.SerializeSubscribeError(se)); err != nil {
		s.log.Warn("write SUBSCRIBE_ERROR failed", "error", err)
	}
}

// --- Viewer interface ---

func (s *session) SendVideo(frame *VideoFrame) {
	s.mu.RLock()
	sub := s.subscriptions["video"]
	s.mu.RUnlock()
	if sub == nil {
		return
	}
	select {
	case sub.videoCh <- frame:
		s.videoSent.Add(1)
	default:
		s.videoDropped.Add(1)
	}
}

func (s *session) SendAudio(frame *AudioFrame) {
	s.mu.RLock()
	sub := s.subscriptions["audio"]
	s.mu.RUnlock()
	if sub == nil {
		return
	}
	select {
	case sub.audioCh <- frame:
		s.audioSent.Add(1)
	default:
		s.audioDropped.Add(1)
	}
}

func (s *session) Stats() ViewerStats {
	return ViewerStats{
		ID:           s.id,
		VideoSent:    s.videoSent.Load(),
		AudioSent:    s.audioSent.Load(),
		VideoDropped: s.videoDropped.Load(),
		AudioDropped: s.audioDropped.Load(),
	}
}

// --- write loops ---

func (s *session) writeVideoLoop(ctx context.Context, ts *trackSub) {
	fw := newFrameWriter(ts.trackAlias, priorityVideo)
	var groupID uint64

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ts.videoCh:
			if !ok {
				return
			}
			stream, err := s.conn.OpenUniStreamSync(ctx)
			if err != nil {
				s.log.Debug("video stream open failed", "error", err)
				return
			}
			if err := fw.writeStreamHeader(stream, groupID); err != nil {
				stream.Close()
				s.log.Debug("video header write failed", "error", err)
				return
			}
			if _, err := fw.writeFrame(stream, frame.PTS, frame.Data); err != nil {
				s.log.Debug("video frame write failed", "error", err)
			}
			stream.Close()
			groupID++
		}
	}
}

func (s *session) writeAudioLoop(ctx context.Context, ts *trackSub) {
	fw := newFrameWriter(ts.trackAlias, priorityAudio)
	var groupID uint64

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ts.audioCh:
			if !ok {
				return
			}
			stream, err := s.conn.OpenUniStreamSync(ctx)
			if err != nil {
				s.log.Debug("audio stream open failed", "error", err)
				return
			}
			if err := fw.writeStreamHeader(stream, groupID); err != nil {
				stream.Close()
				s.log.Debug("audio header write failed", "error", err)
				return
			}
			if _, err := fw.writeFrame(stream, frame.PTS, frame.Data); err != nil {
				s.log.Debug("audio frame write failed", "error", err)
			}
			stream.Close()
			groupID++
		}
	}
}
