package statestore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests. Grounded on the
// mutex-guarded-map + copy-on-read/write shape used for in-memory state
// elsewhere in the example pack: every Get/CASSet copies the byte slice
// so callers can't mutate stored state through an aliased slice.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]Value
	queues map[string]map[string]float64
	sets   map[string]map[string]struct{}
	subs   map[string][]*memorySubscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]Value),
		queues: make(map[string]map[string]float64),
		sets:   make(map[string]map[string]struct{}),
		subs:   make(map[string][]*memorySubscription),
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (m *MemoryStore) Get(ctx context.Context, key string) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return Value{}, ErrNotFound
	}
	return Value{Data: cloneBytes(v.Data), Version: v.Version}, nil
}

func (m *MemoryStore) CASSet(ctx context.Context, key string, expectedVersion uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.values[key]
	if ok && cur.Version != expectedVersion {
		return ErrConflict
	}
	if !ok && expectedVersion != 0 {
		return ErrConflict
	}
	m.values[key] = Value{Data: cloneBytes(data), Version: expectedVersion + 1}
	return nil
}

func (m *MemoryStore) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	subs := append([]*memorySubscription(nil), m.subs[topic]...)
	m.mu.Unlock()
	for _, s := range subs {
		select {
		case s.out <- Event{Topic: topic, Payload: cloneBytes(payload)}:
		default:
		}
	}
	return nil
}

type memorySubscription struct {
	store *MemoryStore
	topic string
	out   chan Event
}

func (s *memorySubscription) Events() <-chan Event { return s.out }

func (s *memorySubscription) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	subs := s.store.subs[s.topic]
	for i, sub := range subs {
		if sub == s {
			s.store.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(s.out)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memorySubscription{store: m, topic: topic, out: make(chan Event, 32)}
	m.subs[topic] = append(m.subs[topic], sub)
	return sub, nil
}

func (m *MemoryStore) ZAdd(ctx context.Context, queueKey string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queueKey]
	if !ok {
		q = make(map[string]float64)
		m.queues[queueKey] = q
	}
	q[member] = score
	return nil
}

func (m *MemoryStore) ZRem(ctx context.Context, queueKey string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues[queueKey], member)
	return nil
}

func (m *MemoryStore) ZPopMinIf(ctx context.Context, queueKey string, pred Predicate) (ZMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[queueKey]
	if len(q) == 0 {
		return ZMember{}, ErrNotFound
	}
	members := make([]string, 0, len(q))
	for mem := range q {
		members = append(members, mem)
	}
	sort.Slice(members, func(i, j int) bool { return q[members[i]] < q[members[j]] })
	for _, mem := range members {
		score := q[mem]
		if !pred(mem, score) {
			continue
		}
		delete(q, mem)
		return ZMember{Score: score, Member: mem}, nil
	}
	return ZMember{}, ErrNotFound
}

func (m *MemoryStore) ZCard(ctx context.Context, queueKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[queueKey])), nil
}

func (m *MemoryStore) SAdd(ctx context.Context, setKey string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[setKey]
	if !ok {
		s = make(map[string]struct{})
		m.sets[setKey] = s
	}
	s[member] = struct{}{}
	return nil
}

func (m *MemoryStore) SRem(ctx context.Context, setKey string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[setKey], member)
	return nil
}

func (m *MemoryStore) SMembers(ctx context.Context, setKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sets[setKey]
	out := make([]string, 0, len(s))
	for mem := range s {
		out = append(out, mem)
	}
	return out, nil
}
