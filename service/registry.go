package service

import (
	"sync"
	"time"
)

const (
	// DefaultGraceDelay is how long a completed stream stays visible in
	// the registry so observers can read its final buffers.
	DefaultGraceDelay = 500 * time.Millisecond
)

// Registry is the authoritative table of in-flight and just-completed
// streams. It owns all state transitions; every read hands out a copy of
// the entry so callers never touch live state.
//
// One Registry is created per session and passed by reference to the
// ingestor, the cascade controller and the query consumers.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream
	ids     IDSource
	grace   time.Duration
	subs    []chan StreamNotify
}

// NewRegistry creates an empty registry. ids may be nil, in which case
// every stream gets a locally generated fallback id. grace <= 0 selects
// DefaultGraceDelay.
func NewRegistry(ids IDSource, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGraceDelay
	}
	return &Registry{
		streams: make(map[string]*Stream),
		ids:     ids,
		grace:   grace,
	}
}

// Subscribe registers ch to receive stream updates. Sends are
// non-blocking: a subscriber that falls behind misses updates rather than
// stalling the registry.
func (r *Registry) Subscribe(ch chan StreamNotify) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, ch)
}

// Unsubscribe removes ch from the subscriber list.
func (r *Registry) Unsubscribe(ch chan StreamNotify) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub == ch {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

// notifyLocked fans out an update to all subscribers. Caller holds r.mu.
func (r *Registry) notifyLocked(n StreamNotify) {
	for _, sub := range r.subs {
		select {
		case sub <- n:
		default:
			// Subscriber not keeping up; drop rather than block.
		}
	}
}

// Create allocates an id, inserts a new idle stream and returns its id.
// No side effects beyond the insertion.
func (r *Registry) Create(t StreamType, md StreamMetadata) string {
	id := NewStreamID(r.ids)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[id] = &Stream{
		ID:            id,
		Type:          t,
		State:         StateIdle,
		Metadata:      md,
		ThinkingPhase: true,
	}
	return id
}

// MarkConnecting moves an idle stream into the optional connecting
// substate while the transport handshake is pending.
func (r *Registry) MarkConnecting(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok || s.State != StateIdle {
		return
	}
	s.State = StateConnecting
}

// Start moves a stream into streaming, stamps its start time and clears
// the buffers. Unknown ids and streams already past idle/connecting are
// no-ops.
func (r *Registry) Start(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return
	}
	if s.State != StateIdle && s.State != StateConnecting {
		return
	}
	s.State = StateStreaming
	s.StartTime = time.Now()
	s.Content = ""
	s.Reasoning = ""
	s.Err = ""
	r.notifyLocked(StreamNotify{Status: StatusStarted, StreamID: id, Type: s.Type})
}

// AppendContent appends the deltas to the stream's buffers. Valid only
// while streaming; a call with both deltas empty changes nothing, not
// even the thinking flags.
func (r *Registry) AppendContent(id, content, reasoning string) {
	if content == "" && reasoning == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok || s.State != StateStreaming {
		return
	}
	if content != "" {
		s.Content += content
		if !s.HasStartedContent {
			s.HasStartedContent = true
			s.ThinkingPhase = false
		}
	}
	if reasoning != "" {
		s.Reasoning += reasoning
	}
	r.notifyLocked(StreamNotify{
		Status:    StatusData,
		StreamID:  id,
		Type:      s.Type,
		Data:      content,
		Reasoning: reasoning,
	})
}

// Complete moves a stream to completed and returns a snapshot of its
// terminal state. The entry stays visible for the grace delay so
// observers can still read the final buffers, then drops out of the
// registry. Returns false for unknown ids and streams already terminal,
// which guarantees the completion cascade fires at most once per stream.
func (r *Registry) Complete(id string) (Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok || s.State.Terminal() {
		return Stream{}, false
	}
	s.State = StateCompleted
	s.EndTime = time.Now()
	snapshot := *s
	r.notifyLocked(StreamNotify{Status: StatusFinished, StreamID: id, Type: s.Type})

	// Delayed removal; by then the entry may be gone already (Stop racing
	// in), which delete tolerates.
	time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.streams, id)
	})
	return snapshot, true
}

// Stop moves a non-terminal stream to stopped and removes it immediately.
// It never triggers the completion cascade. Returns false when there was
// nothing to stop, so a stop racing a terminal event is a harmless no-op.
func (r *Registry) Stop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(id)
}

func (r *Registry) stopLocked(id string) bool {
	s, ok := r.streams[id]
	if !ok || s.State.Terminal() {
		return false
	}
	s.State = StateStopped
	s.EndTime = time.Now()
	delete(r.streams, id)
	r.notifyLocked(StreamNotify{Status: StatusStopped, StreamID: id, Type: s.Type})
	return true
}

// Fail moves a non-terminal stream to error and removes it immediately.
// Like Stop it never triggers the cascade.
func (r *Registry) Fail(id, errMsg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok || s.State.Terminal() {
		return false
	}
	s.State = StateError
	s.Err = errMsg
	s.EndTime = time.Now()
	delete(r.streams, id)
	r.notifyLocked(StreamNotify{Status: StatusError, StreamID: id, Type: s.Type, Data: errMsg})
	return true
}

// StopAll stops every stream currently streaming and returns their ids.
func (r *Registry) StopAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stopped []string
	for id, s := range r.streams {
		if s.State == StateStreaming {
			if r.stopLocked(id) {
				stopped = append(stopped, id)
			}
		}
	}
	return stopped
}

// Get returns a copy of the stream, or false if the id is unknown.
func (r *Registry) Get(id string) (Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return Stream{}, false
	}
	return *s, true
}

// ByType returns copies of all registered streams of the given type.
func (r *Registry) ByType(t StreamType) []Stream {
	return r.filter(func(s *Stream) bool { return s.Type == t })
}

// ByTopic returns copies of all streams attributed to the topic.
func (r *Registry) ByTopic(topicID string) []Stream {
	return r.filter(func(s *Stream) bool { return s.Metadata.TopicID == topicID })
}

// ByConversation returns copies of all streams attributed to the conversation.
func (r *Registry) ByConversation(conversationID string) []Stream {
	return r.filter(func(s *Stream) bool { return s.Metadata.ConversationID == conversationID })
}

// ByAssistant returns copies of all streams attributed to the assistant.
func (r *Registry) ByAssistant(assistantID string) []Stream {
	return r.filter(func(s *Stream) bool { return s.Metadata.AssistantID == assistantID })
}

// List returns copies of every registered stream.
func (r *Registry) List() []Stream {
	return r.filter(func(*Stream) bool { return true })
}

func (r *Registry) filter(keep func(*Stream) bool) []Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Stream
	for _, s := range r.streams {
		if keep(s) {
			out = append(out, *s)
		}
	}
	return out
}

// HasActiveByType reports whether any stream of the type is streaming.
func (r *Registry) HasActiveByType(t StreamType) bool {
	return r.any(func(s *Stream) bool { return s.Type == t && s.State == StateStreaming })
}

// HasActiveByTopic reports whether any stream of the topic is streaming.
func (r *Registry) HasActiveByTopic(topicID string) bool {
	return r.any(func(s *Stream) bool {
		return s.Metadata.TopicID == topicID && s.State == StateStreaming
	})
}

// HasActiveByConversation reports whether any stream of the conversation
// is streaming. Navigation guards use this to decide whether to prompt
// before leaving a page.
func (r *Registry) HasActiveByConversation(conversationID string) bool {
	return r.any(func(s *Stream) bool {
		return s.Metadata.ConversationID == conversationID && s.State == StateStreaming
	})
}

// HasActiveByAssistant reports whether any stream of the assistant is streaming.
func (r *Registry) HasActiveByAssistant(assistantID string) bool {
	return r.any(func(s *Stream) bool {
		return s.Metadata.AssistantID == assistantID && s.State == StateStreaming
	})
}

func (r *Registry) any(match func(*Stream) bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.streams {
		if match(s) {
			return true
		}
	}
	return false
}

// ActiveChatAssistantIDs returns the distinct assistant ids with a chat
// stream currently streaming.
func (r *Registry) ActiveChatAssistantIDs() []string {
	return r.activeChatKeys(func(s *Stream) string { return s.Metadata.AssistantID })
}

// ActiveChatTopicIDs returns the distinct topic ids with a chat stream
// currently streaming.
func (r *Registry) ActiveChatTopicIDs() []string {
	return r.activeChatKeys(func(s *Stream) string { return s.Metadata.TopicID })
}

func (r *Registry) activeChatKeys(key func(*Stream) string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.streams {
		if s.Type != StreamTypeChat || s.State != StateStreaming {
			continue
		}
		k := key(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Count returns the number of registered streams.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// StreamingCount returns the number of streams currently streaming.
func (r *Registry) StreamingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.streams {
		if s.State == StateStreaming {
			n++
		}
	}
	return n
}
