package service

import (
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skymind/skymind/data"
)

const (
	// DefaultCascadeSpacing is the pause inserted before each backend
	// call a cascade makes, to stay under the backend's rate limiter.
	DefaultCascadeSpacing = 500 * time.Millisecond
)

// CascadeController reacts to completed streams: it persists their
// results and conditionally spawns the dependent title generations.
// All of its work runs off the caller's goroutine; every failure is
// caught here, logged, and never propagated back to the primary stream.
type CascadeController struct {
	registry  *Registry
	store     data.Store
	transport CompletionTransport
	spacing   time.Duration
}

// NewCascadeController wires the controller to its collaborators.
// spacing <= 0 selects DefaultCascadeSpacing.
func NewCascadeController(registry *Registry, store data.Store, transport CompletionTransport, spacing time.Duration) *CascadeController {
	if spacing <= 0 {
		spacing = DefaultCascadeSpacing
	}
	return &CascadeController{
		registry:  registry,
		store:     store,
		transport: transport,
		spacing:   spacing,
	}
}

// HandleCompletion dispatches on the completed stream's type. The
// snapshot is terminal: its buffers are frozen, so reads here are
// race-free.
func (c *CascadeController) HandleCompletion(s Stream) {
	switch s.Type {
	case StreamTypeChat:
		c.completeChat(s)
	case StreamTypeConversationTitle:
		c.completeConversationTitle(s)
	case StreamTypeTopicTitle:
		c.completeTopicTitle(s)
	case StreamTypePromptOptimize, StreamTypeSystemPrompt:
		// Output is consumed synchronously by the caller; nothing to
		// persist and nothing to chain.
		Debugf("%s stream %s completed", s.Type, s.ID)
	default:
		Warnf("Unknown stream type on completion: %s", s.Type)
	}
}

// completeChat persists the AI reply and chains conversation-title
// generation. Persistence failure is logged but does not block the title
// attempt: the title is best-effort enrichment either way.
func (c *CascadeController) completeChat(s Stream) {
	if s.Metadata.AIMessageID == "" || strings.TrimSpace(s.Content) == "" {
		return
	}
	if err := c.store.UpdateMessage(s.Metadata.AIMessageID, s.Content, s.Reasoning); err != nil {
		Errorf("Failed to persist message %s: %v", s.Metadata.AIMessageID, err)
	} else {
		Debugf("AI message content persisted: %s", s.Metadata.AIMessageID)
	}
	c.generateConversationTitle(s)
}

// completeConversationTitle persists a generated conversation title and
// chains topic-title generation. Empty or placeholder titles are skipped
// without persistence or further cascade.
func (c *CascadeController) completeConversationTitle(s Stream) {
	title := strings.TrimSpace(s.Content)
	if s.Metadata.ConversationID == "" || title == "" || title == DefaultConversationTitle {
		Debugf("Conversation title for %s empty or placeholder, skipping save", s.Metadata.ConversationID)
		return
	}
	if err := c.store.UpdateConversationTitle(s.Metadata.ConversationID, title); err != nil {
		Errorf("Failed to persist conversation title for %s: %v", s.Metadata.ConversationID, err)
		return
	}
	Debugf("Conversation title persisted: %s", title)
	c.generateTopicTitle(s)
}

// completeTopicTitle persists a generated topic title. End of the chain.
func (c *CascadeController) completeTopicTitle(s Stream) {
	title := strings.TrimSpace(s.Content)
	if s.Metadata.TopicID == "" || title == "" {
		return
	}
	if err := c.store.UpdateTopicTitle(s.Metadata.TopicID, title); err != nil {
		Errorf("Failed to persist topic title for %s: %v", s.Metadata.TopicID, err)
		return
	}
	Debugf("Topic title persisted: %s", title)
}

// generateConversationTitle mines the finished chat's conversation for
// the seed user message and spawns a conversation-title stream. Missing
// context is an expected outcome, not an error.
func (c *CascadeController) generateConversationTitle(s Stream) {
	time.Sleep(c.spacing)

	conversations, err := c.store.GetConversations(s.Metadata.TopicID)
	if err != nil {
		Errorf("Failed to fetch conversations for topic %s: %v", s.Metadata.TopicID, err)
		return
	}
	var target *data.Conversation
	for i := range conversations {
		if conversations[i].ID == s.Metadata.ConversationID {
			target = &conversations[i]
			break
		}
	}
	if target == nil {
		Warnf("Target conversation not found: %s", s.Metadata.ConversationID)
		return
	}

	// The conversation settings name the user message that seeded this
	// reply. A missing or unparsable reference just yields an empty seed.
	userMessage := ""
	if sendID := data.CurrentSendID(target.Settings); sendID != "" {
		for _, msg := range target.Messages {
			if msg.Role == "user" && msg.ID == sendID {
				userMessage = msg.Content
				break
			}
		}
	}

	prompt := BuildConversationTitlePrompt(userMessage, s.Content)
	c.spawnTitleStream(StreamTypeConversationTitle, StreamMetadata{
		ConversationID: s.Metadata.ConversationID,
		TopicID:        s.Metadata.TopicID,
	}, s.Metadata.ConversationID, prompt)
}

// generateTopicTitle gathers the sibling conversation titles of the topic
// and spawns a topic-title stream. No eligible siblings means no cascade.
func (c *CascadeController) generateTopicTitle(s Stream) {
	time.Sleep(c.spacing)

	conversations, err := c.store.GetConversations(s.Metadata.TopicID)
	if err != nil {
		Errorf("Failed to fetch conversations for topic %s: %v", s.Metadata.TopicID, err)
		return
	}
	if len(conversations) == 0 {
		Debugf("Topic %s has no conversations, skipping topic title", s.Metadata.TopicID)
		return
	}
	var titles []string
	for _, conv := range conversations {
		title := strings.TrimSpace(conv.Title)
		if title != "" && title != DefaultConversationTitle {
			titles = append(titles, conv.Title)
		}
	}
	if len(titles) == 0 {
		Debugf("Topic %s has no eligible conversation titles, skipping topic title", s.Metadata.TopicID)
		return
	}

	prompt := BuildTopicTitlePrompt(titles)
	c.spawnTitleStream(StreamTypeTopicTitle, StreamMetadata{
		TopicID: s.Metadata.TopicID,
	}, s.Metadata.TopicID, prompt)
}

// spawnTitleStream waits out the spacing interval, then creates, starts
// and dispatches a title-generation stream with the fast QoS hint.
// Dispatch failure quietly retires the spawned stream: rate limiting in
// particular is recognized and kept away from user-facing surfaces.
func (c *CascadeController) spawnTitleStream(t StreamType, md StreamMetadata, relatedID, prompt string) {
	// Second wait, decoupling the context fetch from the dispatch.
	time.Sleep(c.spacing)

	id := c.registry.Create(t, md)
	c.registry.Start(id)
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	if err := c.transport.Dispatch(id, t, relatedID, messages, QoSFast); err != nil {
		if IsRateLimitError(err) {
			Infof("Title generation hit the rate limit, skipping this round")
		} else {
			Errorf("Failed to dispatch %s stream: %v", t, err)
		}
		// Retire silently: no cascade, no error surfaced.
		c.registry.Stop(id)
	}
}
