package events

import (
	"sync"
	"testing"
	"time"
)

func TestNilBus(t *testing.T) {
	var b *Bus
	b.Publish(Event{Source: SourceAPI, Kind: KindAgentMessage})
	b.Emit(SourceAPI, KindAgentMessage, nil)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", got)
	}
	if got := b.Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0", got)
	}
}

func TestPublishFanOut(t *testing.T) {
	b := New()
	subs := make([]<-chan Event, 3)
	for i := range subs {
		subs[i] = b.Subscribe(4)
	}
	t.Cleanup(func() {
		for _, ch := range subs {
			b.Unsubscribe(ch)
		}
	})

	b.Emit(SourceReports, KindReportComplete, map[string]any{"report_id": "rep_1"})

	for i, ch := range subs {
		select {
		case got := <-ch:
			if got.Kind != KindReportComplete || got.Field("report_id") != "rep_1" {
				t.Errorf("subscriber %d got %+v", i, got)
			}
			if got.Timestamp.IsZero() {
				t.Errorf("subscriber %d: timestamp not set", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestPublishStampsZeroTimestamp(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	b.Publish(Event{Kind: KindTurnStart})
	if got := <-ch; got.Timestamp.IsZero() {
		t.Error("Publish left a zero timestamp")
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	b.Publish(Event{Kind: "first"})
	b.Publish(Event{Kind: "second"})

	if got := <-ch; got.Kind != "first" {
		t.Errorf("kind = %q, want first", got.Kind)
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected event %+v", e)
	default:
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	a := b.Subscribe(2)
	c := b.Subscribe(2)
	if got := b.SubscriberCount(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	b.Unsubscribe(a)
	b.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if got := b.SubscriberCount(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}

	// Publishing to the remaining subscriber still works.
	b.Emit(SourceMQTT, KindAgentMessage, nil)
	if e := <-c; e.Source != SourceMQTT {
		t.Errorf("source = %q", e.Source)
	}
	b.Unsubscribe(c)
}

func TestConcurrentPublish(t *testing.T) {
	b := New()
	ch := b.Subscribe(64)

	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		for range ch {
		}
	}()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				b.Emit(SourceAgent, KindTurnComplete, map[string]any{"worker": i, "seq": j})
			}
		}()
	}
	wg.Wait()
	b.Unsubscribe(ch)
	drained.Wait()
}

func TestEventField(t *testing.T) {
	e := Event{Data: map[string]any{"id": "x", "n": 3}}
	if e.Field("id") != "x" || e.Field("n") != "" || e.Field("missing") != "" {
		t.Errorf("Field lookups wrong: %q %q", e.Field("id"), e.Field("n"))
	}
}

func TestAgentMessage(t *testing.T) {
	e := AgentMessage(SourceReports, "report_ready_1", "done", "📊 Report Ready")
	if e.Kind != KindAgentMessage || e.Source != SourceReports {
		t.Errorf("event = %+v", e)
	}
	if e.Field("id") != "report_ready_1" || e.Field("content") != "done" || e.Field("title") != "📊 Report Ready" {
		t.Errorf("data = %+v", e.Data)
	}

	bare := AgentMessage(SourceAPI, "", "hi", "")
	if _, ok := bare.Data["id"]; ok {
		t.Error("empty id should be omitted")
	}
	if _, ok := bare.Data["title"]; ok {
		t.Error("empty title should be omitted")
	}
}
