package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skymind/skymind/data"
)

// Engine is the orchestration facade: one registry, one event feed, one
// transport and one cascade controller, wired together and injected into
// whatever surface consumes them. Construct one per session.
type Engine struct {
	registry  *Registry
	feed      EventFeed
	transport CompletionTransport
	cascade   *CascadeController
	ingestor  *Ingestor

	notifyCh chan StreamNotify
	mu       sync.Mutex
	waiters  map[string]chan Stream

	cancel context.CancelFunc
}

// NewEngine builds a production engine from configuration: snowflake ids,
// an in-process bus and the OpenAI transport.
func NewEngine(store data.Store, cfg *data.ConfigStore) *Engine {
	var ids IDSource
	if sf, err := NewSnowflake(cfg.GetMachineID()); err != nil {
		Warnf("Invalid snowflake machine id, using local fallback ids: %v", err)
	} else {
		ids = sf
	}
	bus := NewBus(0)
	registry := NewRegistry(ids, cfg.GetGraceDelay())
	transport := NewOpenAITransport(bus, cfg.GetDefaultModel(), cfg.GetFastModel())
	return NewEngineWith(registry, bus, store, transport, cfg.GetCascadeSpacing())
}

// NewEngineWith assembles an engine from explicit collaborators. Tests
// inject fake feeds and transports here.
func NewEngineWith(registry *Registry, feed EventFeed, store data.Store, transport CompletionTransport, spacing time.Duration) *Engine {
	e := &Engine{
		registry:  registry,
		feed:      feed,
		transport: transport,
		cascade:   NewCascadeController(registry, store, transport, spacing),
		notifyCh:  make(chan StreamNotify, 256),
		waiters:   make(map[string]chan Stream),
	}
	e.ingestor = NewIngestor(registry, feed, e.cascade)
	return e
}

// Start launches the ingestion loop and the waiter watch. It returns
// immediately; the engine runs until Close.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.registry.Subscribe(e.notifyCh)
	go e.ingestor.Run(ctx)
	go e.watch(ctx)
}

// Close shuts the engine down. In-flight persistence and cascade calls
// run to completion on their own goroutines.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
	}
	e.registry.Unsubscribe(e.notifyCh)
}

// Registry exposes the query facade to consumers (UI, routing guards).
func (e *Engine) Registry() *Registry {
	return e.registry
}

// HasActiveChat reports whether any chat stream is currently streaming.
// This single boolean is the contract a navigation guard uses to decide
// whether to intercept a page transition.
func (e *Engine) HasActiveChat() bool {
	return e.registry.HasActiveByType(StreamTypeChat)
}

// Chat creates, starts and dispatches a chat stream. Dispatch errors are
// the user's to see: the spawned stream is failed and the error returned.
func (e *Engine) Chat(md StreamMetadata, messages []openai.ChatCompletionMessage) (string, error) {
	return e.dispatch(StreamTypeChat, md, md.ConversationID, messages, QoSDefault)
}

// ChatPrompt is a convenience over Chat for a single user prompt.
func (e *Engine) ChatPrompt(md StreamMetadata, prompt string) (string, error) {
	return e.Chat(md, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
}

// OptimizePrompt runs a prompt-optimization generation and waits for its
// result. The stream's output is not persisted anywhere; it belongs to
// the caller.
func (e *Engine) OptimizePrompt(ctx context.Context, original string) (string, error) {
	prompt := BuildOptimizePromptRequest(original)
	return e.generateAndWait(ctx, StreamTypePromptOptimize, prompt)
}

// GenerateSystemPrompt runs a system-prompt generation and waits for its
// result.
func (e *Engine) GenerateSystemPrompt(ctx context.Context, name, description, userInput string) (string, error) {
	prompt := BuildSystemPromptRequest(name, description, userInput)
	return e.generateAndWait(ctx, StreamTypeSystemPrompt, prompt)
}

// Stop stops one stream: the transport request is canceled and the
// registry entry removed without triggering the cascade. Returns a
// StreamNotFoundError when the id is unknown or already terminal, which
// callers racing a natural completion may simply ignore.
func (e *Engine) Stop(id string) error {
	e.transport.Cancel(id)
	if !e.registry.Stop(id) {
		return &StreamNotFoundError{StreamID: id}
	}
	return nil
}

// StopAll stops every stream currently streaming.
func (e *Engine) StopAll() {
	for _, id := range e.registry.StopAll() {
		e.transport.Cancel(id)
	}
}

func (e *Engine) dispatch(t StreamType, md StreamMetadata, relatedID string, messages []openai.ChatCompletionMessage, qos string) (string, error) {
	id := e.registry.Create(t, md)
	e.registry.Start(id)
	if err := e.transport.Dispatch(id, t, relatedID, messages, qos); err != nil {
		e.registry.Fail(id, err.Error())
		return "", err
	}
	return id, nil
}

// generateAndWait dispatches a generation whose output the caller
// consumes synchronously, then blocks until the stream reaches a terminal
// state or ctx expires.
func (e *Engine) generateAndWait(ctx context.Context, t StreamType, prompt string) (string, error) {
	id := e.registry.Create(t, StreamMetadata{})
	done := e.addWaiter(id)
	e.registry.Start(id)
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	if err := e.transport.Dispatch(id, t, "", messages, QoSDefault); err != nil {
		e.removeWaiter(id)
		e.registry.Fail(id, err.Error())
		return "", err
	}

	select {
	case s := <-done:
		if s.State != StateCompleted {
			return "", fmt.Errorf("%s stream %s ended in %s: %s", t, id, s.State, s.Err)
		}
		return s.Content, nil
	case <-ctx.Done():
		e.removeWaiter(id)
		e.Stop(id)
		return "", ctx.Err()
	}
}

// watch resolves waiters as their streams reach terminal states.
func (e *Engine) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-e.notifyCh:
			switch n.Status {
			case StatusFinished:
				w := e.takeWaiter(n.StreamID)
				if w == nil {
					continue
				}
				// The entry is still visible during its grace window.
				if s, ok := e.registry.Get(n.StreamID); ok {
					w <- s
				} else {
					w <- Stream{ID: n.StreamID, Type: n.Type, State: StateCompleted}
				}
			case StatusError:
				if w := e.takeWaiter(n.StreamID); w != nil {
					w <- Stream{ID: n.StreamID, Type: n.Type, State: StateError, Err: n.Data}
				}
			case StatusStopped:
				if w := e.takeWaiter(n.StreamID); w != nil {
					w <- Stream{ID: n.StreamID, Type: n.Type, State: StateStopped}
				}
			}
		}
	}
}

func (e *Engine) addWaiter(id string) chan Stream {
	ch := make(chan Stream, 1)
	e.mu.Lock()
	e.waiters[id] = ch
	e.mu.Unlock()
	return ch
}

func (e *Engine) takeWaiter(id string) chan Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.waiters[id]
	if !ok {
		return nil
	}
	delete(e.waiters, id)
	return ch
}

func (e *Engine) removeWaiter(id string) {
	e.mu.Lock()
	delete(e.waiters, id)
	e.mu.Unlock()
}
