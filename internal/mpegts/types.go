// Package mpegts implements MPEG-TS demuxing for the player's SRT ingest
// path. It supports PAT/PMT discovery, PES reassembly with PTS/DTS
// extraction, and in-band SCTE-35 splice_info_section capture on whichever
// PID the PMT advertises as stream_type 0x86, so a caller never has to
// intercept raw packets itself to see splice commands.
package mpegts

import "github.com/avplayer/avcore/scte35"

// Packet is a parsed 188-byte MPEG-TS transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// Unit is a single logical unit produced by the demuxer: a PAT, a PMT, or
// a reassembled PES packet. Exactly one of PAT, PMT, or PES is non-nil.
//
// Splice carries a decoded SCTE-35 splice_info_section when the demuxer has
// been told which PID (via SetSCTE35PID) carries splice commands: the
// section decoded from that PID is attached to the next PES unit that
// follows it, so a consumer sees the splice alongside the access unit it
// applies to instead of having to correlate PIDs itself.
type Unit struct {
	FirstPacket *Packet
	PAT         *PATData
	PMT         *PMTData
	PES         *PESData
	Splice      *scte35.SpliceInfoSection
}

// PATData contains the parsed Program Association Table.
type PATData struct {
	Programs []*PATProgram
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramMapID  uint16
	ProgramNumber uint16
}

// PMTData contains the parsed Program Map Table.
type PMTData struct {
	ElementaryStreams []*PMTElementaryStream
}

// PMTElementaryStream describes a single elementary stream in a PMT.
type PMTElementaryStream struct {
	ElementaryPID uint16
	StreamType    uint8
}

// PESData contains a reassembled Packetized Elementary Stream.
type PESData struct {
	Data   []byte
	Header *PESHeader
}

// PESHeader contains the parsed PES packet header.
type PESHeader struct {
	OptionalHeader *PESOptionalHeader
	StreamID       uint8
}

// PESOptionalHeader carries optional PES fields including timestamps.
type PESOptionalHeader struct {
	PTS *ClockReference
	DTS *ClockReference
}

// ClockReference holds a 33-bit MPEG-TS timestamp base value (90 kHz clock).
type ClockReference struct {
	Base int64
}
