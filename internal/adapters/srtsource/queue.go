package srtsource

import (
	"sync"

	"github.com/avplayer/avcore/media"
)

// maxQueuedPackets bounds each track's backlog. SRT delivers data whether or
// not a decoder is pulling it, so without a cap a stalled consumer would
// grow the queue without limit; we drop the oldest packet instead, the same
// trade a live ingest has to make.
const maxQueuedPackets = 512

// packetQueue is a small FIFO of pending access units for one track,
// written by the demux pump goroutine and drained by DequeueAccessUnit.
type packetQueue struct {
	mu     sync.Mutex
	items  []*media.Packet
	closed bool
	drops  int
}

func (q *packetQueue) push(p *media.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if len(q.items) >= maxQueuedPackets {
		q.items = q.items[1:]
		q.drops++
	}
	q.items = append(q.items, p)
}

// pop returns the oldest queued packet with eof=false; when the queue is
// empty it returns nil with eof=false while open (the caller's WouldBlock
// case) and nil with eof=true once closed.
func (q *packetQueue) pop() (p *media.Packet, eof bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		p = q.items[0]
		q.items = q.items[1:]
		return p, false
	}
	return nil, q.closed
}

func (q *packetQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
