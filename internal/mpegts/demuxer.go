package mpegts

import (
	"context"
	"errors"
	"io"

	"github.com/avplayer/avcore/scte35"
)

// Demuxer reads MPEG-TS packets from a reader and produces Units containing
// parsed PAT, PMT, and PES payloads. It also decodes SCTE-35 splice commands
// in-band once told which PID carries them.
type Demuxer struct {
	ctx        context.Context
	reader     io.Reader
	readBuf    []byte
	pool       *packetPool
	programMap *programMap
	dataBuffer []*Unit
	pktSize    int
	eof        bool
	eofData    []*Unit

	scte35PID     uint16
	haveSCTE35PID bool
	pendingSplice *scte35.SpliceInfoSection
}

// NewDemuxer creates a new MPEG-TS demuxer reading from r.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) *Demuxer {
	pm := newProgramMap()
	d := &Demuxer{
		ctx:        ctx,
		reader:     r,
		pktSize:    packetSize,
		programMap: pm,
		pool:       newPacketPool(pm),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.readBuf = make([]byte, d.pktSize)
	return d
}

// DemuxerOptPacketSize sets the TS packet size (default 188).
func DemuxerOptPacketSize(size int) func(*Demuxer) {
	return func(d *Demuxer) {
		d.pktSize = size
	}
}

// SetSCTE35PID tells the demuxer which PID carries SCTE-35
// splice_info_sections. A caller typically learns this PID from a PMT
// elementary stream entry with StreamType 0x86 and calls this as soon as
// that PMT arrives; splice sections decoded from that PID are attached to
// the next PES Unit the demuxer emits.
func (d *Demuxer) SetSCTE35PID(pid uint16) {
	d.scte35PID = pid
	d.haveSCTE35PID = true
}

// NextData returns the next parsed unit from the stream. Returns io.EOF
// when all data has been consumed.
func (d *Demuxer) NextData() (*Unit, error) {
	for {
		// Drain buffered results first.
		if len(d.dataBuffer) > 0 {
			data := d.dataBuffer[0]
			d.dataBuffer = d.dataBuffer[1:]
			return data, nil
		}

		// Drain EOF results.
		if d.eof {
			if len(d.eofData) > 0 {
				data := d.eofData[0]
				d.eofData = d.eofData[1:]
				return data, nil
			}
			return nil, io.EOF
		}

		// Check context.
		if d.ctx.Err() != nil {
			return nil, d.ctx.Err()
		}

		// Read next packet.
		_, err := io.ReadFull(d.reader, d.readBuf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				d.drainPool()
				continue
			}
			return nil, err
		}

		pkt, err := parsePacket(d.readBuf)
		if err != nil {
			continue // skip corrupt packets
		}

		flushed := d.pool.add(pkt)
		if flushed == nil {
			continue
		}

		results, err := d.processPackets(flushed)
		if err != nil {
			continue // skip corrupt sections
		}
		if len(results) == 0 {
			continue
		}

		d.adoptPATPrograms(results)

		d.dataBuffer = results[1:]
		return results[0], nil
	}
}

func (d *Demuxer) drainPool() {
	for _, packets := range d.pool.dump() {
		results, err := d.processPackets(packets)
		if err != nil {
			continue
		}
		// Update program map from PAT results so subsequent PMT
		// PIDs are recognized as PSI during drain.
		d.adoptPATPrograms(results)
		d.eofData = append(d.eofData, results...)
	}
}

func (d *Demuxer) adoptPATPrograms(results []*Unit) {
	for _, r := range results {
		if r.PAT != nil {
			for _, p := range r.PAT.Programs {
				d.programMap.addPMTPID(p.ProgramMapID)
			}
		}
	}
}

func (d *Demuxer) processPackets(packets []*Packet) ([]*Unit, error) {
	if len(packets) == 0 {
		return nil, nil
	}

	firstPacket := packets[0]
	pid := firstPacket.Header.PID

	// Concatenate payloads.
	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.Payload...)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	// SCTE-35 splice sections arrive on their own PID, registered via
	// SetSCTE35PID once the PMT identifies it. Decode it here and hold it
	// until the next PES unit, rather than making every caller intercept
	// raw packets to find splice commands.
	if d.haveSCTE35PID && pid == d.scte35PID {
		sis, err := scte35.DecodeBytes(payload)
		if err != nil {
			return nil, nil
		}
		d.pendingSplice = sis
		return nil, nil
	}

	// Route to appropriate parser.
	if isPSIPayload(pid, d.programMap) {
		return parsePSI(payload, pid, firstPacket, d.programMap)
	}

	if isPESPayload(payload) {
		pes, err := parsePES(payload)
		if err != nil {
			return nil, err
		}
		unit := &Unit{
			FirstPacket: firstPacket,
			PES:         pes,
			Splice:      d.pendingSplice,
		}
		d.pendingSplice = nil
		return []*Unit{unit}, nil
	}

	return nil, nil
}
