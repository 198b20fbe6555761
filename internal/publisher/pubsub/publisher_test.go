package pubsub

import (
	"context"
	"testing"
)

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	var p *Publisher
	if _, err := p.Publish(context.Background(), "chapter.published", map[string]string{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	p.Stop()

	if _, err := New(nil).Publish(context.Background(), "chapter.published", nil); err == nil {
		t.Fatal("expected error for missing topic")
	}
}
