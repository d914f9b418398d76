// Package statestore provides the key/value store with atomic
// compare-and-set, pub/sub, and sorted-set queue operations that the
// match runtime and matchmaker use for snapshots, presence, and pairing
// queues.
package statestore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("statestore: key not found")
	// ErrConflict is returned by CASSet when expectedVersion doesn't match
	// the stored version — the caller has lost ownership of the value.
	ErrConflict = errors.New("statestore: version conflict")
	// ErrUnavailable denotes a transient backend failure; no Store
	// implementation currently returns it.
	ErrUnavailable = errors.New("statestore: unavailable")
)

// Value pairs a stored payload with its CAS version.
type Value struct {
	Data    []byte
	Version uint64
}

// Event is a single pub/sub message.
type Event struct {
	Topic   string
	Payload []byte
}

// Subscription delivers events until Close is called.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// ZMember is one entry of a sorted-set queue: score is typically the
// enqueue timestamp (unix nanos) used for FIFO ordering.
type ZMember struct {
	Score  float64
	Member string
}

// Predicate decides whether a popped ZMember is acceptable; ZPopMinIf
// leaves rejected members in the set and returns ErrNotFound if none
// match.
type Predicate func(member string, score float64) bool

// Store is the interface MatchRuntime, Matchmaker and SessionHub depend
// on. All operations may fail transiently. Implementations return the
// backend error without retrying, and the current callers do not retry
// either; RetryBackoff is not called anywhere.
type Store interface {
	Get(ctx context.Context, key string) (Value, error)
	CASSet(ctx context.Context, key string, expectedVersion uint64, data []byte) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	ZAdd(ctx context.Context, queueKey string, score float64, member string) error
	ZRem(ctx context.Context, queueKey string, member string) error
	// ZPopMinIf atomically pops the lowest-score member satisfying pred.
	// Members that fail pred are left in the set. Returns ErrNotFound if
	// no member currently satisfies pred.
	ZPopMinIf(ctx context.Context, queueKey string, pred Predicate) (ZMember, error)
	ZCard(ctx context.Context, queueKey string) (int64, error)

	SAdd(ctx context.Context, setKey string, member string) error
	SRem(ctx context.Context, setKey string, member string) error
	SMembers(ctx context.Context, setKey string) ([]string, error)
}

// RetryBackoff computes a capped exponential backoff delay for the nth
// retry attempt (0-indexed), per spec §4.2's "bounded backoff" policy.
func RetryBackoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
