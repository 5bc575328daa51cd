package moqpreview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/quicvarint"
)

// catalog is the top-level structure per draft-ietf-moq-catalogformat-01,
// trimmed to the two tracks a preview tap ever advertises.
type catalog struct {
	Version                int            `json:"version"`
	StreamingFormat        int            `json:"streamingFormat"`
	StreamingFormatVersion string         `json:"streamingFormatVersion"`
	CommonTrackFields      commonFields   `json:"commonTrackFields"`
	Tracks                 []catalogTrack `json:"tracks"`
}

type commonFields struct {
	Namespace string `json:"namespace"`
	Packaging string `json:"packaging"`
}

type catalogTrack struct {
	Name            string          `json:"name"`
	SelectionParams selectionParams `json:"selectionParams"`
}

type selectionParams struct {
	Codec         string `json:"codec"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	SampleRate    int    `json:"samplerate,omitempty"`
	ChannelConfig string `json:"channelConfig,omitempty"`
}

// buildCatalog assembles the catalog JSON advertising the preview tap's
// raw video and audio tracks.
func buildCatalog(namespace string, relay *Relay) ([]byte, error) {
	vi := relay.VideoInfo()
	ai := relay.AudioInfo()

	c := catalog{
		Version:                1,
		StreamingFormat:        1,
		StreamingFormatVersion: "0.2",
		CommonTrackFields: commonFields{
			Namespace: namespace,
			Packaging: "loc",
		},
		Tracks: []catalogTrack{
			{
				Name: "video",
				SelectionParams: selectionParams{
					Codec:  "raw." + vi.PixelFormat,
					Width:  vi.Width,
					Height: vi.Height,
				},
			},
			{
				Name: "audio",
				SelectionParams: selectionParams{
					Codec:         "raw.pcm",
					SampleRate:    ai.SampleRate,
					ChannelConfig: fmt.Sprintf("%d", ai.Channels),
				},
			},
		},
	}

	return json.Marshal(c)
}

// writeCatalogObject opens a uni-stream and writes the catalog as a single
// MoQ object on it.
func writeCatalogObject(ctx context.Context, conn quic.Connection, catalogAlias uint64, catalogJSON []byte) error {
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open catalog stream: %w", err)
	}
	defer stream.Close()

	var hdr []byte
	hdr = quicvarint.Append(hdr, moqStreamTypeSubgroupSIDExt)
	hdr = quicvarint.Append(hdr, catalogAlias)
	hdr = quicvarint.Append(hdr, 0) // group ID
	hdr = quicvarint.Append(hdr, 0) // subgroup ID
	hdr = append(hdr, 192)          // low priority for the catalog

	if _, err := stream.Write(hdr); err != nil {
		return fmt.Errorf("write catalog subgroup header: %w", err)
	}

	var obj []byte
	obj = quicvarint.Append(obj, 0) // object ID
	obj = quicvarint.Append(obj, 0) // extensions length
	obj = quicvarint.Append(obj, uint64(len(catalogJSON)))
	obj = append(obj, catalogJSON...)

	if _, err := stream.Write(obj); err != nil {
		return fmt.Errorf("write catalog object: %w", err)
	}
	return nil
}
