package pq

import (
	"testing"

	"github.com/avplayer/avcore/media"
)

func TestQueueDequeuePreservesIdentity(t *testing.T) {
	t.Parallel()
	q := New()
	p1 := &media.Packet{PTS: 1}
	p2 := &media.Packet{PTS: 2}
	q.Queue(p1)
	q.Queue(p2)

	got1, ok := q.Dequeue()
	if !ok || got1 != p1 {
		t.Fatalf("Dequeue() = %v, %v, want %v, true", got1, ok, p1)
	}
	got2, ok := q.Dequeue()
	if !ok || got2 != p2 {
		t.Fatalf("Dequeue() = %v, %v, want %v, true", got2, ok, p2)
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue() on empty queue returned ok = true")
	}
}

func TestHasBufferAvailable(t *testing.T) {
	t.Parallel()
	q := New()
	if avail, size := q.HasBufferAvailable(); avail || size != 0 {
		t.Errorf("empty queue: avail=%v size=%d, want false 0", avail, size)
	}
	q.Queue(&media.Packet{})
	if avail, size := q.HasBufferAvailable(); !avail || size != 1 {
		t.Errorf("after queue: avail=%v size=%d, want true 1", avail, size)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	q := New()
	q.Queue(&media.Packet{})
	q.Queue(&media.Packet{})
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", q.Len())
	}
}

func TestSetFormat(t *testing.T) {
	t.Parallel()
	q := New()
	if q.Format() != nil {
		t.Error("new queue has non-nil format")
	}
	f := &media.Format{MIMEType: "video/avc"}
	q.SetFormat(f)
	if q.Format() != f {
		t.Error("Format() did not return the set format")
	}
}
