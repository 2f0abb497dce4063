package service

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDSource supplies unique stream identifiers.
// NextID may fail (clock rollback, remote source down); callers fall back
// to FallbackID which never fails.
type IDSource interface {
	NextID() (string, error)
}

// Bit layout of the short snowflake id:
// timestamp(41) | machine(5) | sequence(8), base36-encoded.
// With a recent epoch the encoded form stays under 12 characters.
const (
	machineIDBits = 5
	sequenceBits  = 8

	maxMachineID = -1 ^ (-1 << machineIDBits) // 31
	maxSequence  = -1 ^ (-1 << sequenceBits)  // 255

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

// Snowflake generates short, sortable ids from a millisecond timestamp,
// a machine id and a per-millisecond sequence counter.
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64 // last generation timestamp (ms)
	machineID int64
	sequence  int64
	epoch     int64
}

func NewSnowflake(machineID int64) (*Snowflake, error) {
	if machineID < 0 || machineID > maxMachineID {
		return nil, fmt.Errorf("machine ID must be between 0 and %d", maxMachineID)
	}
	epoch := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	return &Snowflake{
		machineID: machineID,
		epoch:     epoch,
	}, nil
}

// NextID returns the next id, waiting out the current millisecond if the
// sequence counter overflows.
func (s *Snowflake) NextID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.timestamp {
		// Clock moved backwards; refuse rather than risk a duplicate.
		return "", fmt.Errorf("clock moved backwards, refusing to generate id")
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			now = s.waitNextMillis(now)
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	id := ((now - s.epoch) << timestampShift) |
		(s.machineID << machineIDShift) |
		s.sequence
	return strconv.FormatInt(id, 36), nil
}

func (s *Snowflake) waitNextMillis(now int64) int64 {
	for now <= s.timestamp {
		time.Sleep(time.Millisecond)
		now = time.Now().UnixMilli()
	}
	return now
}

// FallbackID returns a locally generated unique id for when the primary
// source is unavailable. UUIDs are longer than snowflake ids but carry no
// collision risk.
func FallbackID() string {
	return uuid.NewString()
}

// NewStreamID draws an id from src, falling back to a local UUID if the
// source fails. It never returns an empty id.
func NewStreamID(src IDSource) string {
	if src != nil {
		id, err := src.NextID()
		if err == nil && id != "" {
			return id
		}
		if err != nil {
			Warnf("Failed to generate stream ID, falling back to local: %v", err)
		}
	}
	return FallbackID()
}
