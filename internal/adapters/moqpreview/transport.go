package moqpreview

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/avplayer/avcore/internal/certs"
)

// ListenerConfig configures the preview tap's QUIC listener. There is no
// WebTransport/HTTP3 upgrade here: clients speak MoQ Transport directly
// over a native QUIC connection, using ALPN "moq-00".
type ListenerConfig struct {
	Addr         string
	CertValidity time.Duration
	IdleTimeout  time.Duration
}

const alpnMoQ = "moq-00"

// Listener accepts QUIC connections and spins up a MoQ session per
// connection, feeding frames from a Relay.
type Listener struct {
	log   *slog.Logger
	relay *Relay
	cert  *certs.Info
	ql    *quic.Listener
	addr  string
}

// NewListener generates a fresh self-signed certificate and opens a QUIC
// listener on cfg.Addr.
func NewListener(log *slog.Logger, relay *Relay, cfg ListenerConfig) (*Listener, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:4443"
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Second
	}

	cert, err := certs.Generate(cfg.CertValidity)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert.TLSCert},
		NextProtos:   []string{alpnMoQ},
	}

	quicConf := &quic.Config{
		MaxIdleTimeout: cfg.IdleTimeout,
	}

	ql, err := quic.ListenAddr(cfg.Addr, tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	return &Listener{
		log:   log.With("component", "moqpreview-listener"),
		relay: relay,
		cert:  cert,
		ql:    ql,
		addr:  cfg.Addr,
	}, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() string { return l.addr }

// CertFingerprint returns the base64 SHA-256 fingerprint of the listener's
// self-signed certificate, for clients that pin by certificate hash.
func (l *Listener) CertFingerprint() string { return l.cert.FingerprintBase64() }

// Close shuts down the underlying QUIC listener.
func (l *Listener) Close() error { return l.ql.Close() }

// Run accepts connections until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.ql.Close() })
	defer stop()

	l.log.Info("moqpreview listener running", "addr", l.addr, "fingerprint", l.cert.FingerprintBase64())

	var viewerSeq int64
	for {
		conn, err := l.ql.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		viewerSeq++
		go l.serveConnection(ctx, conn, viewerSeq)
	}
}

func (l *Listener) serveConnection(ctx context.Context, conn quic.Connection, seq int64) {
	id := fmt.Sprintf("moqpreview-%d", seq)
	log := l.log.With("viewer", id, "remote", conn.RemoteAddr().String())

	control, err := conn.AcceptStream(ctx)
	if err != nil {
		log.Warn("failed to accept control stream", "error", err)
		conn.CloseWithError(1, "control stream error")
		return
	}

	sess := newSession(id, log, conn, control, l.relay)
	if err := sess.handshake(); err != nil {
		log.Warn("moq handshake failed", "error", err)
		conn.CloseWithError(2, "setup failed")
		return
	}

	l.relay.AddViewer(sess)
	defer l.relay.RemoveViewer(sess.ID())

	log.Info("moq viewer connected")
	sess.run(ctx)
	log.Info("moq viewer disconnected")
}
