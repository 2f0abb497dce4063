package service

import (
	"context"
)

// CompletionHandler receives the terminal snapshot of every stream that
// completed normally. Implementations must catch their own failures; the
// ingestor does not supervise them beyond spawning.
type CompletionHandler interface {
	HandleCompletion(s Stream)
}

// Ingestor consumes the transport event feed and routes deliveries into
// the registry by stream id. It is the only writer driven by the
// transport, so per-stream apply order equals feed order.
type Ingestor struct {
	registry *Registry
	feed     EventFeed
	cascade  CompletionHandler
}

// NewIngestor wires the feed to the registry. cascade may be nil when no
// completion chaining is wanted (tests, title-only tools).
func NewIngestor(registry *Registry, feed EventFeed, cascade CompletionHandler) *Ingestor {
	return &Ingestor{
		registry: registry,
		feed:     feed,
		cascade:  cascade,
	}
}

// Run subscribes to the feed and processes events until ctx is canceled
// or the feed closes. A failed subscription leaves the engine in a
// degraded state where no stream ever receives live updates; that is
// logged, never fatal.
func (in *Ingestor) Run(ctx context.Context) {
	ch, err := in.feed.Subscribe()
	if err != nil {
		Errorf("Failed to subscribe to stream events, live updates disabled: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			in.handle(ev)
		}
	}
}

func (in *Ingestor) handle(ev StreamEvent) {
	switch ev.Kind {
	case EventStreamData:
		// Events with no candidates or an empty payload are defined
		// no-ops, not errors.
		if ev.Chunk == nil || len(ev.Chunk.Choices) == 0 {
			return
		}
		delta := ev.Chunk.Choices[0].Delta
		if delta.Content == "" && delta.ReasoningContent == "" {
			return
		}
		// Unknown ids fall out inside AppendContent: late chunks after a
		// stop or removal are legitimate and silently dropped.
		in.registry.AppendContent(ev.StreamID, delta.Content, delta.ReasoningContent)

	case EventStreamEnd:
		snapshot, ok := in.registry.Complete(ev.StreamID)
		if !ok {
			// Already terminal or removed; the race with Stop is expected.
			return
		}
		if in.cascade != nil {
			// The cascade sleeps between its backend calls; keep it off
			// the ingest loop so other streams keep flowing.
			go in.cascade.HandleCompletion(snapshot)
		}

	case EventStreamError:
		in.registry.Fail(ev.StreamID, ev.Err)

	default:
		Warnf("Dropping stream event of unknown kind: %s", ev.Kind)
	}
}
