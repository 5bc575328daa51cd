package moqpreview

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// MoQ stream type (draft-ietf-moq-transport-15): a subgroup stream with an
// explicit Subgroup ID in the header and per-object extension headers.
const moqStreamTypeSubgroupSIDExt uint64 = 0x0d

// LOC header extension IDs (draft-ietf-moq-loc-01). Only the capture
// timestamp is used here: there is no compressed bitstream to carry video
// frame marking or decoder config extensions for.
const locExtCaptureTimestamp uint64 = 2

// frameWriter writes VideoFrame/AudioFrame payloads onto a MoQ data stream
// using subgroup/object framing with a capture-timestamp LOC extension.
// There is no bitstream-specific encoding: the payload is the raw decoded
// buffer, unchanged.
type frameWriter struct {
	trackAlias        uint64
	publisherPriority byte
	objectID          uint64
}

func newFrameWriter(trackAlias uint64, publisherPriority byte) *frameWriter {
	return &frameWriter{trackAlias: trackAlias, publisherPriority: publisherPriority}
}

func (fw *frameWriter) writeStreamHeader(w io.Writer, groupID uint64) error {
	fw.objectID = 0

	var buf []byte
	buf = quicvarint.Append(buf, moqStreamTypeSubgroupSIDExt)
	buf = quicvarint.Append(buf, fw.trackAlias)
	buf = quicvarint.Append(buf, groupID)
	buf = quicvarint.Append(buf, 0) // subgroup ID
	buf = append(buf, fw.publisherPriority)

	_, err := w.Write(buf)
	return err
}

func (fw *frameWriter) writeFrame(w io.Writer, ptsUs int64, payload []byte) (int64, error) {
	var exts []byte
	exts = quicvarint.Append(exts, locExtCaptureTimestamp)
	exts = quicvarint.Append(exts, uint64(ptsUs))

	var hdr []byte
	hdr = quicvarint.Append(hdr, fw.objectID)
	hdr = quicvarint.Append(hdr, uint64(len(exts)))
	hdr = append(hdr, exts...)
	hdr = quicvarint.Append(hdr, uint64(len(payload)))

	fw.objectID++

	if _, err := w.Write(hdr); err != nil {
		return 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, err
	}
	return int64(len(hdr) + len(payload)), nil
}
