// Package codec defines the capability-set contract a decoder drives.
// Concrete codecs (hardware or software) are external collaborators; the
// decoder packages only depend on this interface.
package codec

import "github.com/avplayer/avcore/media"

// Buffer is an opaque indexed handle into a codec's input or output
// buffer pool.
type Buffer interface {
	Index() int
	Data() []byte
	SetRange(offset, size int)
	PTS() int64
	SetPTS(ptsUs int64)
	SetEndOfStream(eos bool)
	EndOfStream() bool
}

// Callback receives asynchronous notifications from a Codec. All methods
// may be invoked from a codec-owned goroutine; implementations (the
// decoder base) must not block in these callbacks.
type Callback interface {
	OnInputBufferAvailable(index int)
	OnOutputBufferAvailable(index int)
	OnOutputFormatChanged(format media.Format)
	OnError(err error)
	OnFrameRendered(presentationTimeUs int64)
}

// Config describes how to configure a Codec instance.
type Config struct {
	Format    media.Format
	MIMEType  string
	MediaType media.TrackType
	// VideoSink is set only for tunnel-mode video codecs, where the codec
	// renders directly to a hardware surface instead of producing software
	// output buffers.
	VideoSink any
}

// Codec is the capability set a decoder drives: configure, start/stop,
// flush, and exchange indexed buffers via callback-driven availability.
type Codec interface {
	Configure(cfg Config) error
	SetCallback(cb Callback)
	Start() error
	Stop() error
	Flush() error
	Release() error

	GetInputBuffer(index int) (Buffer, error)
	QueueInputBuffer(buf Buffer) error

	GetOutputBuffer(index int) (Buffer, error)
	ReleaseOutputBuffer(buf Buffer, render bool) error
}
