package memory

import (
	"context"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "chapter.published", map[string]string{"slug": "slime"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "cover.updated", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Event != "chapter.published" || msgs[1].Event != "cover.updated" {
		t.Fatalf("events not recorded correctly: %+v", msgs)
	}
	if got := pub.ByEvent("cover.updated"); len(got) != 1 || got[0].Payload != "payload" {
		t.Fatalf("unexpected ByEvent result: %+v", got)
	}

	msgs[0].Event = "modified"
	if pub.Messages()[0].Event == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}
