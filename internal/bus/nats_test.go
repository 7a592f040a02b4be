package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// fakeJetStream records stream and publish activity without a server.
type fakeJetStream struct {
	mu        sync.Mutex
	streams   []*nats.StreamConfig
	published map[string][][]byte
}

func newFakeJetStream() *fakeJetStream {
	return &fakeJetStream{published: make(map[string][][]byte)}
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, cfg)
	return &nats.StreamInfo{}, nil
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subj] = append(f.published[subj], data)
	return &nats.PubAck{}, nil
}

func (f *fakeJetStream) count(subj string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[subj])
}

func (f *fakeJetStream) QueueSubscribe(string, string, nats.MsgHandler, ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nats.ErrConnectionClosed
}

func TestNATSBus_PublishCreatesStreamOnce(t *testing.T) {
	js := newFakeJetStream()
	b := &NATSBus{js: js, streams: make(map[string]bool)}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := b.Publish(ctx, "learning.skill.distill.entry", NewEnvelope("test", nil)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if len(js.streams) != 1 {
		t.Fatalf("expected a single AddStream call, got %d", len(js.streams))
	}
	cfg := js.streams[0]
	if cfg.Name != "LEARNING_SKILL_DISTILL_ENTRY" {
		t.Errorf("unexpected stream name: %s", cfg.Name)
	}
	if cfg.Retention != nats.WorkQueuePolicy {
		t.Errorf("expected work-queue retention, got %v", cfg.Retention)
	}
	if got := len(js.published["learning.skill.distill.entry"]); got != 3 {
		t.Errorf("expected 3 publishes, got %d", got)
	}
}

func TestNATSBus_EnvelopeWireFormat(t *testing.T) {
	js := newFakeJetStream()
	b := &NATSBus{js: js, streams: make(map[string]bool)}

	env := NewEnvelope("skill_learn_task", json.RawMessage(`{"task_id":"x"}`))
	env.Attempt = 3
	if err := b.Publish(context.Background(), "q.entry", env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(js.published["q.entry"][0], &decoded); err != nil {
		t.Fatalf("unmarshal published frame: %v", err)
	}
	if decoded.Kind != "skill_learn_task" || decoded.Attempt != 3 {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestNATSBus_PublishDelayedFiresLater(t *testing.T) {
	js := newFakeJetStream()
	b := &NATSBus{js: js, streams: make(map[string]bool)}

	if err := b.PublishDelayed(context.Background(), "q.retry", NewEnvelope("test", nil), 10*time.Millisecond); err != nil {
		t.Fatalf("PublishDelayed: %v", err)
	}
	if js.count("q.retry") != 0 {
		t.Fatal("delayed publish fired immediately")
	}

	deadline := time.After(time.Second)
	for js.count("q.retry") == 0 {
		select {
		case <-deadline:
			t.Fatal("delayed publish never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNATSBus_PublishCanceledContext(t *testing.T) {
	js := newFakeJetStream()
	b := &NATSBus{js: js, streams: make(map[string]bool)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Publish(ctx, "q.entry", NewEnvelope("test", nil)); err == nil {
		t.Error("expected error publishing with canceled context")
	}
}

func TestWorkerGroup(t *testing.T) {
	if got := workerGroup("learning.skill.agent.entry"); got != "LEARNING_SKILL_AGENT_ENTRY_WORKERS" {
		t.Errorf("unexpected worker group: %s", got)
	}
}
