package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skymind/skymind/data"
)

// Quality-of-service hints for Dispatch. Fast selects the cheaper model
// configured for ancillary generations like titles.
const (
	QoSDefault = "default"
	QoSFast    = "fast"
)

// CompletionTransport dispatches generation requests to the model-serving
// backend. Dispatch is fire-and-forget: results come back over the event
// feed, not through the return value. The error return covers only local
// dispatch problems (missing configuration), which direct user requests
// want surfaced.
type CompletionTransport interface {
	Dispatch(streamID string, streamType StreamType, relatedID string, messages []openai.ChatCompletionMessage, qos string) error
	// Cancel aborts the in-flight request for the stream id, if any.
	Cancel(streamID string)
}

// OpenAITransport streams completions from an OpenAI-compatible endpoint
// and republishes every delivery on the bus keyed by stream id.
type OpenAITransport struct {
	bus          *Bus
	defaultModel data.Model
	fastModel    data.Model

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewOpenAITransport creates a transport publishing to bus.
func NewOpenAITransport(bus *Bus, defaultModel, fastModel data.Model) *OpenAITransport {
	return &OpenAITransport{
		bus:          bus,
		defaultModel: defaultModel,
		fastModel:    fastModel,
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Dispatch starts streaming the completion for streamID in the
// background. relatedID is carried for logging only; attribution lives in
// the stream's metadata.
func (t *OpenAITransport) Dispatch(streamID string, streamType StreamType, relatedID string, messages []openai.ChatCompletionMessage, qos string) error {
	model := t.defaultModel
	if qos == QoSFast {
		model = t.fastModel
	}
	if model.Model == "" {
		return fmt.Errorf("no model configured for qos %q", qos)
	}
	if len(messages) == 0 {
		return fmt.Errorf("no messages to dispatch for stream %s", streamID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancels[streamID] = cancel
	t.mu.Unlock()

	Debugf("Dispatching %s stream %s (related=%s, model=%s)", streamType, streamID, relatedID, model.Model)
	go t.run(ctx, streamID, model, messages)
	return nil
}

// Cancel aborts the in-flight request for the stream, releasing its HTTP
// stream. Safe to call for ids with nothing in flight.
func (t *OpenAITransport) Cancel(streamID string) {
	t.mu.Lock()
	cancel, ok := t.cancels[streamID]
	delete(t.cancels, streamID)
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

func (t *OpenAITransport) run(ctx context.Context, streamID string, model data.Model, messages []openai.ChatCompletionMessage) {
	defer t.Cancel(streamID)

	config := openai.DefaultConfig(model.Key)
	if model.Endpoint != "" {
		config.BaseURL = model.Endpoint
	}
	client := openai.NewClientWithConfig(config)

	request := openai.ChatCompletionRequest{
		Model:       model.Model,
		Messages:    messages,
		Temperature: model.Temp,
		Stream:      true, // CRITICAL: Enable streaming
	}

	stream, err := client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		t.bus.PublishError(streamID, fmt.Sprintf("failed to create chat completion stream: %v", err))
		return
	}
	// IMPORTANT: Always close the stream when done.
	defer stream.Close()

	for {
		response, err := stream.Recv()
		// Check for the end of the stream
		if errors.Is(err, io.EOF) {
			t.bus.PublishEnd(streamID)
			return
		}
		if err != nil {
			// A canceled context means the caller stopped the stream;
			// the registry entry is already gone.
			if errors.Is(err, context.Canceled) {
				return
			}
			t.bus.PublishError(streamID, fmt.Sprintf("error receiving stream response: %v", err))
			return
		}
		t.bus.PublishChunk(streamID, response)
	}
}
