package srtsource

import (
	"testing"

	"github.com/avplayer/avcore/media"
)

func TestPacketQueueFIFOOrder(t *testing.T) {
	t.Parallel()
	var q packetQueue
	q.push(&media.Packet{PTS: 1})
	q.push(&media.Packet{PTS: 2})

	first, eof := q.pop()
	if eof || first == nil || first.PTS != 1 {
		t.Fatalf("first pop = %+v, eof=%v, want PTS 1", first, eof)
	}
	second, _ := q.pop()
	if second == nil || second.PTS != 2 {
		t.Fatalf("second pop = %+v, want PTS 2", second)
	}
}

func TestPacketQueueDropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	var q packetQueue
	for i := 0; i < maxQueuedPackets+10; i++ {
		q.push(&media.Packet{PTS: int64(i)})
	}

	first, _ := q.pop()
	if first == nil || first.PTS != 10 {
		t.Errorf("oldest surviving packet = %+v, want PTS 10", first)
	}
	if q.drops != 10 {
		t.Errorf("drops = %d, want 10", q.drops)
	}
}

func TestPacketQueueCloseThenPopReportsEOF(t *testing.T) {
	t.Parallel()
	var q packetQueue
	q.close()

	p, eof := q.pop()
	if p != nil || !eof {
		t.Errorf("pop on closed empty queue = %+v, eof=%v, want nil, true", p, eof)
	}
}

func TestPacketQueuePushAfterCloseIsDropped(t *testing.T) {
	t.Parallel()
	var q packetQueue
	q.close()
	q.push(&media.Packet{PTS: 1})

	if p, _ := q.pop(); p != nil {
		t.Error("push after close should be a no-op")
	}
}
