package service

// StreamStatus tags a StreamNotify delivered to registry subscribers.
type StreamStatus int

const (
	StatusUnknown StreamStatus = iota
	StatusStarted
	StatusData
	StatusFinished
	StatusStopped
	StatusError
)

// StreamNotify is one update pushed to a registry subscriber.
// For StatusData, Data and Reasoning carry the incremental deltas.
// For StatusError, Data carries the error message.
type StreamNotify struct {
	Status    StreamStatus
	StreamID  string
	Type      StreamType
	Data      string
	Reasoning string
}
