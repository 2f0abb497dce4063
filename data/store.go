package data

import (
	"encoding/json"
)

// Message is one chat message inside a conversation.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Conversation groups the messages of one exchange under a topic.
// Settings is an opaque JSON blob owned by the presentation layer; the
// engine only reads its currentSendId key.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Settings string    `json:"settings,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// Topic is the persisted unit: a titled group of conversations.
type Topic struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

// Store is the persistence contract the stream engine writes through.
// Failures are the caller's to log; the engine treats them as
// non-fatal.
type Store interface {
	// UpdateMessage replaces the content and reasoning of a message.
	UpdateMessage(messageID, content, reasoning string) error
	// UpdateConversationTitle replaces a conversation's title.
	UpdateConversationTitle(conversationID, title string) error
	// UpdateTopicTitle replaces a topic's title.
	UpdateTopicTitle(topicID, title string) error
	// GetConversations returns the conversations of a topic, messages
	// included.
	GetConversations(topicID string) ([]Conversation, error)
}

// CurrentSendID extracts the currentSendId key from a conversation's
// settings blob. Returns "" when settings are empty or malformed.
func CurrentSendID(settings string) string {
	if settings == "" {
		return ""
	}
	var parsed struct {
		CurrentSendID string `json:"currentSendId"`
	}
	if err := json.Unmarshal([]byte(settings), &parsed); err != nil {
		return ""
	}
	return parsed.CurrentSendID
}
