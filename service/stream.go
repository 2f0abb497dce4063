package service

import (
	"time"
)

// StreamType identifies what kind of generation a stream carries.
type StreamType string

const (
	StreamTypeChat              StreamType = "chat"
	StreamTypeConversationTitle StreamType = "conversation_title_generation"
	StreamTypeTopicTitle        StreamType = "topic_title_generation"
	StreamTypePromptOptimize    StreamType = "prompt_optimization"
	StreamTypeSystemPrompt      StreamType = "system_prompt"
)

// StreamState is the lifecycle state of a stream.
type StreamState string

const (
	StateIdle       StreamState = "idle"
	StateConnecting StreamState = "connecting"
	StateStreaming  StreamState = "streaming"
	StateCompleted  StreamState = "completed"
	StateError      StreamState = "error"
	StateStopped    StreamState = "stopped"
)

// Terminal reports whether the state admits no further transitions.
func (s StreamState) Terminal() bool {
	switch s {
	case StateCompleted, StateError, StateStopped:
		return true
	default:
		return false
	}
}

// StreamMetadata carries the caller-supplied correlation keys.
// It is set at creation and never changes for the life of the stream.
type StreamMetadata struct {
	ConversationID string
	TopicID        string
	AssistantID    string
	AIMessageID    string
}

// Stream is one in-flight (or just-finished) generation.
// The registry hands out copies; callers never share the live entry.
type Stream struct {
	ID        string
	Type      StreamType
	State     StreamState
	Content   string
	Reasoning string
	Metadata  StreamMetadata

	// ThinkingPhase stays true until the first non-empty content chunk,
	// then flips false for good. Reasoning-only models can run a long
	// time before that happens.
	ThinkingPhase     bool
	HasStartedContent bool

	StartTime time.Time
	EndTime   time.Time
	Err       string
}
