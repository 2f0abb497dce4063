package data

import (
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *TopicStore {
	t.Helper()
	return NewTopicStoreAt(t.TempDir())
}

func sampleTopic() *Topic {
	return &Topic{
		ID:    "t1",
		Title: "Go concurrency",
		Conversations: []Conversation{
			{
				ID:       "c1",
				Title:    "Goroutine leaks",
				Settings: `{"currentSendId":"m1"}`,
				Messages: []Message{
					{ID: "m1", Role: "user", Content: "Why does my goroutine leak?"},
					{ID: "m2", Role: "assistant", Content: ""},
				},
			},
		},
	}
}

func TestTopicStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(sampleTopic()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load("t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Title != "Go concurrency" || len(got.Conversations) != 1 {
		t.Fatalf("Loaded topic mismatch: %+v", got)
	}
	if got.Conversations[0].Messages[0].Content != "Why does my goroutine leak?" {
		t.Fatal("Message content lost in round trip")
	}
}

func TestTopicStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load("nope"); err == nil {
		t.Fatal("Expected error for unknown topic")
	}
	if store.Exists("nope") {
		t.Fatal("Exists reported a missing topic")
	}
}

func TestTopicStore_UpdateMessageAcrossTopics(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(sampleTopic()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(&Topic{ID: "t2", Title: "Other"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.UpdateMessage("m2", "Hello world", "thinking..."); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}

	topic, err := store.Load("t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	msg := topic.Conversations[0].Messages[1]
	if msg.Content != "Hello world" || msg.Reasoning != "thinking..." {
		t.Fatalf("Message not updated: %+v", msg)
	}

	if err := store.UpdateMessage("ghost", "x", ""); err == nil {
		t.Fatal("Expected error for unknown message id")
	}
}

func TestTopicStore_UpdateTitles(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(sampleTopic()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.UpdateConversationTitle("c1", "Leak patterns"); err != nil {
		t.Fatalf("UpdateConversationTitle failed: %v", err)
	}
	if err := store.UpdateTopicTitle("t1", "Concurrency pitfalls"); err != nil {
		t.Fatalf("UpdateTopicTitle failed: %v", err)
	}

	topic, err := store.Load("t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if topic.Title != "Concurrency pitfalls" {
		t.Fatalf("Topic title: %q", topic.Title)
	}
	if topic.Conversations[0].Title != "Leak patterns" {
		t.Fatalf("Conversation title: %q", topic.Conversations[0].Title)
	}

	if err := store.UpdateConversationTitle("ghost", "x"); err == nil {
		t.Fatal("Expected error for unknown conversation id")
	}
}

func TestTopicStore_AddConversationCreatesTopic(t *testing.T) {
	store := newTestStore(t)

	conv := Conversation{ID: "c9", Title: "New one"}
	if err := store.AddConversation("fresh", conv); err != nil {
		t.Fatalf("AddConversation failed: %v", err)
	}
	convs, err := store.GetConversations("fresh")
	if err != nil {
		t.Fatalf("GetConversations failed: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "c9" {
		t.Fatalf("Conversations: %+v", convs)
	}

	if err := store.AddMessage("fresh", "c9", Message{ID: "m9", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if err := store.AddMessage("fresh", "ghost", Message{ID: "mx"}); err == nil {
		t.Fatal("Expected error for unknown conversation")
	}
}

func TestTopicStore_SanitizedFileNames(t *testing.T) {
	store := newTestStore(t)
	id := `a/b\c:d*e?f"g<h>i|j`
	if err := store.Save(&Topic{ID: id, Title: "odd id"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !store.Exists(id) {
		t.Fatal("Sanitized topic should be loadable by its original id")
	}
	ids, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 1 || strings.ContainsAny(ids[0], `/\:*?"<>|`) {
		t.Fatalf("Listed ids: %v", ids)
	}
}

func TestCurrentSendID(t *testing.T) {
	cases := []struct {
		settings string
		want     string
	}{
		{`{"currentSendId":"m1"}`, "m1"},
		{`{"currentSendId":"m1","model":"gpt"}`, "m1"},
		{"", ""},
		{"not json", ""},
		{`{"other":"x"}`, ""},
	}
	for _, c := range cases {
		if got := CurrentSendID(c.settings); got != c.want {
			t.Fatalf("CurrentSendID(%q) = %q, want %q", c.settings, got, c.want)
		}
	}
}
