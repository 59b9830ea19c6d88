package pubsub

import (
	"testing"
)

func TestSubscribeDeliversLocal(t *testing.T) {
	b := New(nil)
	sub := NewSubscriber("conn1", 8, nil)

	if n := b.Subscribe("news", sub); n != 1 {
		t.Fatalf("Subscribe count = %d, want 1", n)
	}

	n := b.PublishLocal("news", []byte("hello"))
	if n != 1 {
		t.Fatalf("PublishLocal delivered = %d, want 1", n)
	}

	select {
	case msg := <-sub.Out:
		if len(msg.Elems) != 3 || string(msg.Elems[0].Bulk) != "message" ||
			string(msg.Elems[1].Bulk) != "news" || string(msg.Elems[2].Bulk) != "hello" {
			t.Fatalf("unexpected message %+v", msg)
		}
	default:
		t.Fatal("expected a message in the subscriber mailbox")
	}
}

func TestPublishLocalOnlyCountsActualSubscribers(t *testing.T) {
	b := New(nil)
	if n := b.PublishLocal("nobody-listening", []byte("x")); n != 0 {
		t.Fatalf("PublishLocal = %d, want 0", n)
	}
}

func TestUnsubscribeRemovesFromSet(t *testing.T) {
	b := New(nil)
	sub := NewSubscriber("conn1", 8, nil)
	b.Subscribe("a", sub)
	b.Subscribe("b", sub)

	if n := b.Unsubscribe("a", sub); n != 1 {
		t.Fatalf("Unsubscribe count = %d, want 1", n)
	}
	if n := b.PublishLocal("a", []byte("x")); n != 0 {
		t.Fatalf("still delivering to unsubscribed channel: %d", n)
	}
	if n := b.PublishLocal("b", []byte("x")); n != 1 {
		t.Fatalf("PublishLocal(b) = %d, want 1", n)
	}
}

func TestUnsubscribeAllClearsEveryChannel(t *testing.T) {
	b := New(nil)
	sub := NewSubscriber("conn1", 8, nil)
	b.Subscribe("a", sub)
	b.Subscribe("b", sub)

	b.UnsubscribeAll(sub)
	if sub.Count() != 0 {
		t.Fatalf("sub.Count() = %d, want 0", sub.Count())
	}
	if n := b.PublishLocal("a", []byte("x")) + b.PublishLocal("b", []byte("x")); n != 0 {
		t.Fatalf("expected no deliveries after UnsubscribeAll, got %d", n)
	}
}

func TestFullMailboxForcesDisconnect(t *testing.T) {
	b := New(nil)
	dropped := false
	sub := NewSubscriber("conn1", 1, func() { dropped = true })
	b.Subscribe("news", sub)

	b.PublishLocal("news", []byte("first"))  // fills the 1-slot buffer
	b.PublishLocal("news", []byte("second")) // mailbox full, should drop

	if !dropped {
		t.Fatal("expected Drop callback to fire when mailbox overflows")
	}
}

func TestPublishSumsLocalAndForwarded(t *testing.T) {
	b := New(nil)
	sub := NewSubscriber("conn1", 8, nil)
	b.Subscribe("news", sub)

	forward := func(channel string, message []byte) (int, error) {
		if channel != "news" || string(message) != "hi" {
			t.Fatalf("forward called with (%q, %q)", channel, message)
		}
		return 3, nil
	}

	total, err := b.Publish("news", []byte("hi"), forward)
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4 (1 local + 3 forwarded)", total)
	}
}

func TestSubscribeReplyShape(t *testing.T) {
	reply := SubscribeReply("news", 2)
	if string(reply.Elems[0].Bulk) != "subscribe" || string(reply.Elems[1].Bulk) != "news" || reply.Elems[2].Int != 2 {
		t.Fatalf("unexpected reply %+v", reply)
	}
}
