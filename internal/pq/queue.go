// Package pq implements the bounded in-memory packet queue sitting between
// a Source and a Decoder for a single track. It does no scheduling of its
// own; blocking/backoff is entirely the caller's concern.
package pq

import (
	"sync"

	"github.com/avplayer/avcore/media"
)

// Queue is a per-track FIFO of packets with an associated Format. The
// Format belongs to the queue as a whole (the "format-carrying header"),
// not to each packet.
type Queue struct {
	mu      sync.Mutex
	packets []*media.Packet
	format  *media.Format
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Queue appends a packet to the back of the FIFO.
func (q *Queue) Queue(p *media.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.packets = append(q.packets, p)
}

// Dequeue pops and returns the front packet, reporting whether one was
// available.
func (q *Queue) Dequeue() (*media.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil, false
	}
	p := q.packets[0]
	q.packets[0] = nil
	q.packets = q.packets[1:]
	return p, true
}

// HasBufferAvailable reports whether a packet is ready to dequeue and the
// current size of the queue, letting callers apply backpressure policy
// without a second lock round-trip.
func (q *Queue) HasBufferAvailable() (available bool, size int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets) > 0, len(q.packets)
}

// Clear drops all queued packets without releasing any external resource;
// callers owning packet buffers must do so themselves before calling Clear
// if they need release semantics.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.packets = nil
}

// SetFormat associates a new Format with the queue.
func (q *Queue) SetFormat(f *media.Format) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.format = f
}

// Format returns the queue's current Format, or nil if none has been set.
func (q *Queue) Format() *media.Format {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.format
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}
