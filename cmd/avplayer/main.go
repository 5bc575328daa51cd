package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avplayer/avcore/codec"
	"github.com/avplayer/avcore/internal/adapters/moqpreview"
	"github.com/avplayer/avcore/internal/adapters/srtsource"
	"github.com/avplayer/avcore/internal/sessions"
	"github.com/avplayer/avcore/media"
	"github.com/avplayer/avcore/player"
	"github.com/avplayer/avcore/status"
)

var version = "dev"

// liveSessionKey is the single playback session this entrypoint manages.
// A full deployment would derive a key per incoming SRT publisher; this
// command keeps one live session to stay a minimal, runnable wiring
// example for internal/sessions.Manager.
const liveSessionKey = "live"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	srtAddr := envOr("SRT_ADDR", ":6000")
	moqAddr := envOr("MOQ_ADDR", ":4443")

	relay := moqpreview.NewRelay(slog.Default())

	listener, err := moqpreview.NewListener(slog.Default(), relay, moqpreview.ListenerConfig{
		Addr:         moqAddr,
		CertValidity: 14 * 24 * time.Hour,
	})
	if err != nil {
		slog.Error("failed to create moqpreview listener", "error", err)
		os.Exit(1)
	}

	slog.Info("avplayer starting",
		"version", version,
		"srt", srtAddr,
		"moq", moqAddr,
		"moq_cert_fingerprint", listener.CertFingerprint(),
	)

	mgr := sessions.NewManager(slog.Default())

	srtSrc := srtsource.NewSource(srtsource.Config{Addr: srtAddr, Log: slog.Default()})

	sess, err := mgr.Create(liveSessionKey, player.Config{
		Log:          slog.Default(),
		Source:       srtSrc,
		AudioDevice:  moqpreview.NewAudioDevice(relay),
		VideoSink:    moqpreview.NewVideoSink(relay),
		CodecFactory: unsupportedCodecFactory,
		Listener:     &sessionListener{log: slog.Default().With("session", liveSessionKey)},
	})
	if err != nil {
		slog.Error("failed to create playback session", "error", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listener.Run(ctx)
	})

	g.Go(func() error {
		if err := sess.Player.Prepare(ctx); err != nil {
			return err
		}
		return sess.Player.Start(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		mgr.Remove(liveSessionKey)
		return listener.Close()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("avplayer exited with error", "error", err)
		os.Exit(1)
	}
}

// unsupportedCodecFactory always fails: codec implementation is out of
// this module's scope (hardware/software decoders are a deployer's own
// concern). Anyone embedding the core supplies a real player.CodecFactory
// in place of this stub.
func unsupportedCodecFactory(_ media.Format, _ media.TrackType, _ any) (codec.Codec, error) {
	return nil, status.Unsupported
}

// sessionListener logs engine notifications for the one managed session.
type sessionListener struct {
	log *slog.Logger
}

func (l *sessionListener) OnError(err error) { l.log.Error("playback error", "error", err) }
func (l *sessionListener) OnCompletion()     { l.log.Info("playback completed") }

func (l *sessionListener) OnVideoSizeChanged(width, height int, format media.PixelFormat) {
	l.log.Info("video size changed", "width", width, "height", height, "format", format)
}

func (l *sessionListener) OnBufferingStart()         { l.log.Debug("buffering start") }
func (l *sessionListener) OnBufferingUpdate(pct int) { l.log.Debug("buffering update", "percent", pct) }
func (l *sessionListener) OnBufferingEnd()           { l.log.Debug("buffering end") }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
