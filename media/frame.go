// Package media defines the core packet and frame types that flow through
// the avplayer pipeline: Source -> Packet -> Decoder -> Frame -> Render.
// Types here are shared by the core engine and by every external adapter
// (content source, codec, audio device, video sink), so they carry no
// dependency on internal engine state.
package media

import "github.com/avplayer/avcore/scte35"

// TrackType identifies the kind of elementary stream a packet, frame, or
// track belongs to.
type TrackType int

const (
	TrackAudio TrackType = iota
	TrackVideo
	TrackSubtitle
)

func (t TrackType) String() string {
	switch t {
	case TrackAudio:
		return "audio"
	case TrackVideo:
		return "video"
	case TrackSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// PacketFlags is a bitset of per-packet conditions.
type PacketFlags uint8

const (
	// FlagKeyframe marks a packet as a random-access point.
	FlagKeyframe PacketFlags = 1 << iota
	// FlagEndOfStream marks the last packet of a track.
	FlagEndOfStream
	// FlagDiscontinuity marks a PTS/format discontinuity (e.g. after a
	// splice point or a live-stream reconnect).
	FlagDiscontinuity
)

func (f PacketFlags) Has(flag PacketFlags) bool { return f&flag != 0 }

// Format describes a track's codec/container configuration. It is
// associated with a Packet Queue as a whole, not with each individual
// packet, matching the "format-carrying header" model of §4.2.
type Format struct {
	TrackType TrackType
	MIMEType  string

	// Audio fields.
	SampleRate    int
	Channels      int
	ChannelLayout uint32

	// Video fields.
	Width  int
	Height int

	// Arbitrary codec-specific configuration (e.g. decoder config record,
	// codec-private data) passed through to the codec untouched.
	Extra map[string]any
}

// Packet is an immutable-after-queue buffer of compressed bytes for a
// single track, owned by the packet queue until dequeued by a decoder.
type Packet struct {
	TrackType TrackType
	PTS       int64 // microseconds
	Duration  int64 // microseconds
	Flags     PacketFlags
	Payload   []byte

	// FormatChange is non-nil when this packet carries a new Format that
	// the packet queue / decoder must adopt before processing it.
	FormatChange *Format

	// SpliceInfo is non-nil when a content source observed a SCTE-35
	// splice command at this packet's position in the stream. The core
	// engine/decoders never inspect it — only FlagDiscontinuity drives
	// their behavior — it rides along purely for adapters and listeners
	// that want ad-insertion boundaries (e.g. a distribution layer
	// re-stitching segments around a break).
	SpliceInfo *scte35.SpliceInfoSection
}

func (p *Packet) Keyframe() bool       { return p.Flags.Has(FlagKeyframe) }
func (p *Packet) EndOfStream() bool    { return p.Flags.Has(FlagEndOfStream) }
func (p *Packet) Discontinuous() bool  { return p.Flags.Has(FlagDiscontinuity) }

// AudioSampleFormat enumerates the sample encodings an audio frame or sink
// configuration may carry, including offload (encoded pass-through)
// formats for passthrough decoding.
type AudioSampleFormat int

const (
	FormatPCM16 AudioSampleFormat = iota
	FormatPCM24Packed
	FormatPCMFloat
	FormatAAC
	FormatAC3
	FormatEAC3
	FormatDTS
	FormatDTSHD
	FormatMP4ALATM
	FormatMPEG
	FormatVorbis
	FormatFLAC
	FormatOpus
)

// PixelFormat enumerates supported decoded video pixel layouts. Hardware
// handle frames use PixelOpaqueHandle and carry no Payload.
type PixelFormat int

const (
	PixelUnknown PixelFormat = iota
	PixelI420
	PixelNV12
	PixelRGBA
	PixelOpaqueHandle
)

// Frame is a decoded unit emitted by a decoder and consumed by exactly one
// render before being released. The active fields depend on Type: audio
// frames use the sample-rate/channel fields, video frames use the
// pixel/geometry fields, subtitle frames use Text/FormatHint (or Payload
// for opaque cues).
//
// Release is modeled as a plain closure (render.ReleaseFunc) passed
// alongside the frame at enqueue time, rather than a release-token type
// attached to the frame itself — the idiomatic Go equivalent of the
// RenderEvent/closure-event pattern used for the same purpose upstream.
// Opaque carries a hardware buffer reference for zero-copy video frames;
// it is released through that same closure, never through Frame itself.
type Frame struct {
	Type     TrackType
	PTS      int64 // microseconds
	Duration int64 // microseconds

	// Audio.
	SampleRate    int
	Channels      int
	ChannelLayout uint32
	SampleFormat  AudioSampleFormat

	// Video.
	Width       int
	Height      int
	Stride      int
	PixelFormat PixelFormat

	// Subtitle.
	Text       string
	FormatHint string

	// Payload carries raw bytes for software frames (audio samples, subtitle
	// blobs, I420/NV12/RGBA video). Nil when Opaque is set instead.
	Payload []byte

	// Opaque is non-nil for zero-copy video frames that reference a codec
	// or hardware buffer rather than owning their own bytes.
	Opaque any
}
