package bus

import (
	"testing"
	"time"
)

func TestQueueKeepsEveryEventInPublishOrder(t *testing.T) {
	b := New()
	q, unsub := b.SubscribeQueue("transport.", "message.send_")
	defer unsub()
	lossy, unsubLossy := b.Subscribe("transport.", 4)
	defer unsubLossy()

	const n = 3000
	for i := range n {
		kind := TransportMessage
		if i%3 == 0 {
			kind = MessageSendFailed
		}
		b.Emit(kind, i)
	}
	b.Emit(SessionStatusChanged, "ignored")

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("queue never signalled")
	}
	got := q.Drain()
	if len(got) != n {
		t.Fatalf("drained %d events, want %d", len(got), n)
	}
	for i, evt := range got {
		if evt.Payload != i {
			t.Fatalf("event %d carries %v, want publish order", i, evt.Payload)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after drain", q.Len())
	}
	if len(lossy) != 4 || b.Dropped() == 0 {
		t.Errorf("channel subscriber should still drop: buffered %d, dropped %d", len(lossy), b.Dropped())
	}
}

func TestQueueUnsubscribe(t *testing.T) {
	b := New()
	q, unsub := b.SubscribeQueue("feed.")
	b.Emit(FeedAppended, 1)
	unsub()
	b.Emit(FeedAppended, 2)

	if got := q.Drain(); len(got) != 1 || got[0].Payload != 1 {
		t.Errorf("drained %+v, want only the event before unsubscribe", got)
	}
}
