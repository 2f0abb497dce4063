package service

import (
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// EventKind names the delivery channels the transport emits on.
type EventKind string

const (
	EventStreamData  EventKind = "stream-data"
	EventStreamEnd   EventKind = "stream-end"
	EventStreamError EventKind = "stream-error"
)

// StreamEvent is one asynchronous delivery from the completion transport,
// keyed by stream id. For EventStreamData, Chunk carries the raw OpenAI
// streaming payload; only the first choice's delta is consumed. For
// EventStreamError, Err carries the failure message.
type StreamEvent struct {
	Kind     EventKind
	StreamID string
	Chunk    *openai.ChatCompletionStreamResponse
	Err      string
}

// EventFeed is what ingestion subscribes to. Subscribe may fail when the
// transport is unavailable; the ingestor degrades instead of crashing.
type EventFeed interface {
	Subscribe() (<-chan StreamEvent, error)
}

// Bus is the in-process event feed connecting the transport to ingestion.
// A single buffered channel acts as the global sequencer: events come out
// in publish order, so chunks for a given stream id are applied in
// arrival order and an end event never overtakes the chunks before it.
type Bus struct {
	ch   chan StreamEvent
	done chan struct{}
	once sync.Once
}

// NewBus creates a bus with the given channel buffer size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		ch:   make(chan StreamEvent, buffer),
		done: make(chan struct{}),
	}
}

// Subscribe returns the ordered event feed. The bus is single-consumer.
func (b *Bus) Subscribe() (<-chan StreamEvent, error) {
	select {
	case <-b.done:
		return nil, fmt.Errorf("event bus is closed")
	default:
		return b.ch, nil
	}
}

// PublishChunk delivers one streaming payload for the stream id.
func (b *Bus) PublishChunk(streamID string, chunk openai.ChatCompletionStreamResponse) {
	b.publish(StreamEvent{Kind: EventStreamData, StreamID: streamID, Chunk: &chunk})
}

// PublishEnd signals normal end of stream.
func (b *Bus) PublishEnd(streamID string) {
	b.publish(StreamEvent{Kind: EventStreamEnd, StreamID: streamID})
}

// PublishError signals stream failure.
func (b *Bus) PublishError(streamID, errMsg string) {
	b.publish(StreamEvent{Kind: EventStreamError, StreamID: streamID, Err: errMsg})
}

func (b *Bus) publish(ev StreamEvent) {
	select {
	case b.ch <- ev:
	case <-b.done:
		// Bus shut down; late events are dropped.
	}
}

// Close shuts the feed down. Events published after Close are dropped and
// blocked publishers are released.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}
