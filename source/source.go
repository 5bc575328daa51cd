// Package source defines the ContentSource contract the engine consumes.
// Source implementations (URL/file opening, probing, demuxing) live
// outside this module; the engine only ever talks to this interface.
package source

import (
	"context"

	"github.com/avplayer/avcore/media"
)

// Flags is a bitset of source capabilities, reported via notifications.
type Flags uint32

const (
	CanPause Flags = 1 << iota
	CanSeekBackward
	CanSeekForward
	CanSeek
	DynamicDuration
	Secure
	Protected
)

// SeekMode mirrors the source-language seek mode bitset. Modes are not
// mutually exclusive: NonBlocking may be OR'd onto any of the others. The
// core never alters its synchronous seek/reply pattern based on this bit;
// it is preserved and passed through to the source untouched.
type SeekMode uint32

const (
	SeekPreviousSync SeekMode = 0
	SeekNextSync     SeekMode = 1
	SeekClosestSync  SeekMode = 2
	SeekClosest      SeekMode = 4
	SeekFrameIndex   SeekMode = 8
	SeekNonBlocking  SeekMode = 16
)

// Notify receives asynchronous events from a Source. All methods are
// invoked on the source's own goroutine(s); the engine forwards them
// into its own message loop rather than acting on them inline, so
// implementations may call these from any goroutine.
type Notify interface {
	OnPrepared(err error)
	OnFlagsChanged(flags Flags)
	OnVideoSizeChanged(format media.Format)
	OnBufferingStart()
	OnBufferingUpdate(percent int)
	OnBufferingEnd()
	OnCompletion()
	OnError(err error)
	OnFetchData(trackType media.TrackType)
}

// Source is the external content source contract: URL/file/fd opening,
// probing, and per-track access-unit delivery. Implementations back this
// with a demuxer; the engine never parses containers itself.
type Source interface {
	SetNotify(notify Notify)

	Prepare(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error

	// SeekTo requests a seek; mode may combine SeekNonBlocking with any of
	// the sync-point modes. The reply is delivered synchronously via the
	// returned error, matching the engine's post-and-wait Seek semantics.
	SeekTo(ctx context.Context, ptsUs int64, mode SeekMode) error

	// DequeueAccessUnit returns the next packet for trackType, or
	// status.WouldBlock if none is ready yet, or status.EndOfStream once
	// the track is exhausted.
	DequeueAccessUnit(trackType media.TrackType) (*media.Packet, error)

	// GetTrackInfo returns the current format for trackType, or nil if the
	// track does not exist (yet).
	GetTrackInfo(trackType media.TrackType) *media.Format

	// FeedMoreESData is invoked by a decoder after it observes WouldBlock,
	// giving the source a chance to pull more elementary-stream data
	// before the decoder's retry timer fires.
	FeedMoreESData() error
}
