package service

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return NewRegistry(nil, 50*time.Millisecond)
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := newTestRegistry()

	id := r.Create(StreamTypeChat, StreamMetadata{ConversationID: "c1", TopicID: "t1"})
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	s, ok := r.Get(id)
	if !ok {
		t.Fatal("Expected stream to exist after Create")
	}
	if s.State != StateIdle {
		t.Fatalf("Expected idle state, got %s", s.State)
	}
	if !s.ThinkingPhase || s.HasStartedContent {
		t.Fatal("Expected thinking phase on a fresh stream")
	}

	r.Start(id)
	s, _ = r.Get(id)
	if s.State != StateStreaming {
		t.Fatalf("Expected streaming state, got %s", s.State)
	}
	if s.StartTime.IsZero() {
		t.Fatal("Expected start time to be stamped")
	}

	r.AppendContent(id, "Hello", "")
	r.AppendContent(id, " world", "")
	s, _ = r.Get(id)
	if s.Content != "Hello world" {
		t.Fatalf("Expected 'Hello world', got %q", s.Content)
	}

	snap, ok := r.Complete(id)
	if !ok {
		t.Fatal("Complete failed on a streaming stream")
	}
	if snap.State != StateCompleted {
		t.Fatalf("Expected completed snapshot, got %s", snap.State)
	}
	if snap.Content != "Hello world" {
		t.Fatalf("Snapshot content mismatch: %q", snap.Content)
	}
	if snap.EndTime.IsZero() {
		t.Fatal("Expected end time to be stamped")
	}
}

func TestRegistry_ThinkingPhaseFlipsOnce(t *testing.T) {
	r := newTestRegistry()
	id := r.Create(StreamTypeChat, StreamMetadata{})
	r.Start(id)

	// Reasoning-only deltas keep the thinking phase alive.
	r.AppendContent(id, "", "pondering")
	s, _ := r.Get(id)
	if !s.ThinkingPhase {
		t.Fatal("Reasoning delta must not end the thinking phase")
	}

	r.AppendContent(id, "answer", "")
	s, _ = r.Get(id)
	if s.ThinkingPhase || !s.HasStartedContent {
		t.Fatal("First content delta must end the thinking phase")
	}

	// Never reverts.
	r.AppendContent(id, "", "more pondering")
	s, _ = r.Get(id)
	if s.ThinkingPhase {
		t.Fatal("Thinking phase must never revert to true")
	}
}

func TestRegistry_EmptyDeltaIsNoOp(t *testing.T) {
	r := newTestRegistry()
	id := r.Create(StreamTypeChat, StreamMetadata{})
	r.Start(id)

	before, _ := r.Get(id)
	r.AppendContent(id, "", "")
	after, _ := r.Get(id)

	if before.Content != after.Content || before.Reasoning != after.Reasoning {
		t.Fatal("Empty delta mutated buffers")
	}
	if before.ThinkingPhase != after.ThinkingPhase || before.HasStartedContent != after.HasStartedContent {
		t.Fatal("Empty delta toggled flags")
	}
}

func TestRegistry_BuffersFrozenAfterTerminal(t *testing.T) {
	r := newTestRegistry()
	id := r.Create(StreamTypeChat, StreamMetadata{})
	r.Start(id)
	r.AppendContent(id, "final", "thought")
	r.Complete(id)

	r.AppendContent(id, "late chunk", "late thought")
	first, ok := r.Get(id)
	if !ok {
		t.Fatal("Completed stream should stay visible during the grace window")
	}
	second, _ := r.Get(id)
	if first.Content != "final" || first.Reasoning != "thought" {
		t.Fatalf("Terminal buffers mutated: %q / %q", first.Content, first.Reasoning)
	}
	if first.Content != second.Content || first.Reasoning != second.Reasoning {
		t.Fatal("Two reads of a terminal stream differ")
	}

	// Start after terminal is a no-op too.
	r.Start(id)
	s, _ := r.Get(id)
	if s.State != StateCompleted {
		t.Fatalf("Start escaped a terminal state: %s", s.State)
	}
}

func TestRegistry_CompleteOnlyOnce(t *testing.T) {
	r := newTestRegistry()
	id := r.Create(StreamTypeChat, StreamMetadata{})
	r.Start(id)

	if _, ok := r.Complete(id); !ok {
		t.Fatal("First Complete should succeed")
	}
	if _, ok := r.Complete(id); ok {
		t.Fatal("Second Complete must be rejected")
	}
	if r.Stop(id) {
		t.Fatal("Stop after Complete must be a no-op")
	}
	if r.Fail(id, "boom") {
		t.Fatal("Fail after Complete must be a no-op")
	}
}

func TestRegistry_GraceRemoval(t *testing.T) {
	r := NewRegistry(nil, 20*time.Millisecond)
	id := r.Create(StreamTypeChat, StreamMetadata{})
	r.Start(id)
	r.Complete(id)

	if _, ok := r.Get(id); !ok {
		t.Fatal("Stream should survive until the grace delay passes")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := r.Get(id); ok {
		t.Fatal("Stream should be removed after the grace delay")
	}
}

func TestRegistry_StopRemovesImmediately(t *testing.T) {
	r := newTestRegistry()
	id := r.Create(StreamTypeChat, StreamMetadata{ConversationID: "c1"})
	r.Start(id)

	if !r.Stop(id) {
		t.Fatal("Stop on a streaming stream should succeed")
	}
	if _, ok := r.Get(id); ok {
		t.Fatal("Stopped stream must leave the registry immediately")
	}
	if r.HasActiveByConversation("c1") {
		t.Fatal("Stopped stream still counted as active")
	}

	// A late terminal event for the removed id is a silent no-op.
	if r.Fail(id, "late error") {
		t.Fatal("Fail on a removed stream must report nothing to do")
	}
	if _, ok := r.Complete(id); ok {
		t.Fatal("Complete on a removed stream must report nothing to do")
	}
}

func TestRegistry_ConcurrentCreateYieldsDistinctIDs(t *testing.T) {
	r := newTestRegistry()
	const n = 200

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.Create(StreamTypeChat, StreamMetadata{})
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate id: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("Expected %d ids, got %d", n, len(seen))
	}
}

func TestRegistry_ConcurrentAppendsOnDistinctStreams(t *testing.T) {
	r := newTestRegistry()
	const streams = 8
	const chunks = 50

	var ids []string
	for i := 0; i < streams; i++ {
		id := r.Create(StreamTypeChat, StreamMetadata{})
		r.Start(id)
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < chunks; j++ {
				r.AppendContent(id, "x", "")
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		s, _ := r.Get(id)
		if len(s.Content) != chunks {
			t.Fatalf("Stream %s lost chunks: %d != %d", id, len(s.Content), chunks)
		}
	}
}

func TestRegistry_Queries(t *testing.T) {
	r := newTestRegistry()

	chat := r.Create(StreamTypeChat, StreamMetadata{ConversationID: "c1", TopicID: "t1", AssistantID: "a1"})
	r.Start(chat)
	title := r.Create(StreamTypeConversationTitle, StreamMetadata{ConversationID: "c1", TopicID: "t1"})
	idle := r.Create(StreamTypeChat, StreamMetadata{TopicID: "t2", AssistantID: "a2"})
	_ = title
	_ = idle

	if got := len(r.ByType(StreamTypeChat)); got != 2 {
		t.Fatalf("ByType(chat) = %d, want 2", got)
	}
	if got := len(r.ByTopic("t1")); got != 2 {
		t.Fatalf("ByTopic(t1) = %d, want 2", got)
	}
	if got := len(r.ByConversation("c1")); got != 2 {
		t.Fatalf("ByConversation(c1) = %d, want 2", got)
	}
	if got := len(r.ByAssistant("a1")); got != 1 {
		t.Fatalf("ByAssistant(a1) = %d, want 1", got)
	}

	if !r.HasActiveByType(StreamTypeChat) {
		t.Fatal("Expected an active chat stream")
	}
	if r.HasActiveByType(StreamTypeConversationTitle) {
		t.Fatal("Idle title stream must not count as active")
	}
	if !r.HasActiveByTopic("t1") || r.HasActiveByTopic("t2") {
		t.Fatal("HasActiveByTopic mismatch")
	}
	if !r.HasActiveByConversation("c1") {
		t.Fatal("HasActiveByConversation mismatch")
	}
	if !r.HasActiveByAssistant("a1") || r.HasActiveByAssistant("a2") {
		t.Fatal("HasActiveByAssistant mismatch")
	}

	assistants := r.ActiveChatAssistantIDs()
	if len(assistants) != 1 || assistants[0] != "a1" {
		t.Fatalf("ActiveChatAssistantIDs = %v", assistants)
	}
	topics := r.ActiveChatTopicIDs()
	if len(topics) != 1 || topics[0] != "t1" {
		t.Fatalf("ActiveChatTopicIDs = %v", topics)
	}

	if r.Count() != 3 {
		t.Fatalf("Count = %d, want 3", r.Count())
	}
	if r.StreamingCount() != 1 {
		t.Fatalf("StreamingCount = %d, want 1", r.StreamingCount())
	}
	if len(r.List()) != 3 {
		t.Fatal("List should return every registered stream")
	}
}

func TestRegistry_StopAll(t *testing.T) {
	r := newTestRegistry()

	var streaming []string
	for i := 0; i < 3; i++ {
		id := r.Create(StreamTypeChat, StreamMetadata{ConversationID: fmt.Sprintf("c%d", i)})
		r.Start(id)
		streaming = append(streaming, id)
	}
	idle := r.Create(StreamTypeChat, StreamMetadata{})

	stopped := r.StopAll()
	if len(stopped) != 3 {
		t.Fatalf("StopAll stopped %d streams, want 3", len(stopped))
	}
	for _, id := range streaming {
		if _, ok := r.Get(id); ok {
			t.Fatalf("Stream %s survived StopAll", id)
		}
	}
	// Idle streams are left alone.
	if _, ok := r.Get(idle); !ok {
		t.Fatal("StopAll must not touch idle streams")
	}
}

func TestRegistry_SubscriberReceivesUpdates(t *testing.T) {
	r := newTestRegistry()
	ch := make(chan StreamNotify, 16)
	r.Subscribe(ch)
	defer r.Unsubscribe(ch)

	id := r.Create(StreamTypeChat, StreamMetadata{})
	r.Start(id)
	r.AppendContent(id, "hi", "hmm")
	r.Complete(id)

	want := []StreamStatus{StatusStarted, StatusData, StatusFinished}
	for _, status := range want {
		select {
		case n := <-ch:
			if n.Status != status {
				t.Fatalf("Got status %v, want %v", n.Status, status)
			}
			if n.StreamID != id {
				t.Fatalf("Notify for wrong stream: %s", n.StreamID)
			}
			if status == StatusData && (n.Data != "hi" || n.Reasoning != "hmm") {
				t.Fatalf("Data notify carried %q/%q", n.Data, n.Reasoning)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for %v", status)
		}
	}
}
