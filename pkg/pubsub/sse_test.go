package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/sbom-resolver/pkg/resolver"
)

func publishN(t *testing.T, pub *SSEPublisher, topic string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		if err := pub.Publish(topic, "event", map[string]int{"num": i}); err != nil {
			t.Fatalf("Failed to publish event %d: %v", i, err)
		}
	}
}

func TestEventBuffer(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	pub.ConfigureTopic("test", TopicConfig{BufferSize: 3, ReplayAll: true})
	publishN(t, pub, "test", 5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub, err := pub.Subscribe(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	// Should receive the last 3 events (3, 4, 5)
	for want := 3; want <= 5; want++ {
		select {
		case event := <-sub.Events():
			if event.Version != want {
				t.Errorf("Expected version %d, got %d", want, event.Version)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for event %d", want)
		}
	}
}

func TestReplayLastOnly(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	pub.ConfigureTopic("test", TopicConfig{BufferSize: 5, ReplayAll: false})
	publishN(t, pub, "test", 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub, err := pub.Subscribe(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case event := <-sub.Events():
		if event.Version != 3 {
			t.Errorf("Expected version 3, got %d", event.Version)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}

	select {
	case event := <-sub.Events():
		t.Errorf("Received unexpected extra event version %d", event.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNoBuffer(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	publishN(t, pub, "test", 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub, err := pub.Subscribe(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case event := <-sub.Events():
		t.Errorf("Received unexpected replayed event version %d", event.Version)
	case <-time.After(50 * time.Millisecond):
	}

	if err := pub.Publish("test", "event", map[string]int{"num": 4}); err != nil {
		t.Fatalf("Failed to publish new event: %v", err)
	}

	select {
	case event := <-sub.Events():
		if event.Version != 4 {
			t.Errorf("Expected version 4, got %d", event.Version)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for new event")
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := pub.Subscribe(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if got := pub.Subscribers("test"); got != 1 {
		t.Fatalf("Subscribers = %d, want 1", got)
	}

	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("Expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("Subscription channel not closed after cancel")
	}
	if got := pub.Subscribers("test"); got != 0 {
		t.Errorf("Subscribers = %d after cancel, want 0", got)
	}

	// A second Close is a no-op
	sub.Close()
}

func TestPublisherClose(t *testing.T) {
	pub := NewSSEPublisher()

	sub, err := pub.Subscribe(context.Background(), "test")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	pub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("Expected closed channel")
	}
	if err := pub.Publish("test", "event", nil); err == nil {
		t.Error("Expected error publishing on a closed publisher")
	}
	if _, err := pub.Subscribe(context.Background(), "test"); err == nil {
		t.Error("Expected error subscribing to a closed publisher")
	}
}

func TestResolutionObserver(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	sub, err := pub.Subscribe(context.Background(), TopicResolutionStatus)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	observe := ResolutionObserver(pub)
	observe(resolver.Progress{Root: "zlib", Stage: resolver.StageFailed, Nodes: 3, Edges: 2, Err: errors.New("boom")})

	select {
	case event := <-sub.Events():
		if event.Type != "failed" {
			t.Errorf("Type = %q, want failed", event.Type)
		}
		var status ResolutionStatus
		if err := json.Unmarshal(event.Data, &status); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		want := ResolutionStatus{Root: "zlib", Stage: "failed", Nodes: 3, Edges: 2, Error: "boom"}
		if status != want {
			t.Errorf("status = %+v, want %+v", status, want)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for resolution status")
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	event := Event{Topic: "t", Type: "completed", Data: json.RawMessage(`{"a":1}`), Version: 7}

	if err := WriteSSE(&buf, event); err != nil {
		t.Fatalf("WriteSSE() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "event: completed\ndata: ") || !strings.HasSuffix(out, "\n\n") {
		t.Errorf("unexpected framing: %q", out)
	}
	if !strings.Contains(out, `"version":7`) {
		t.Errorf("missing version: %q", out)
	}
}
