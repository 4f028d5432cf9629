package core

import (
	"encoding/json"
	"slices"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Reserved state keys maintained by the engine on every turn.
const (
	StateKeySessionID = "current_session_id"
	StateKeyUserID    = "current_user_id"
)

// StateBag is an ordered, concurrency-safe mapping of string keys to
// arbitrary values. Every agent and team owns one (possibly empty) bag and
// passes it by reference through delegation.
//
// The bag remembers which keys were written through Set since the last
// ResetWritten call; propagate-up uses that set to decide which child keys
// take precedence over the parent's.
type StateBag struct {
	mu      sync.RWMutex
	values  *orderedmap.OrderedMap[string, any]
	written map[string]struct{}
}

// NewStateBag returns an empty bag.
func NewStateBag() *StateBag {
	return &StateBag{
		values:  orderedmap.New[string, any](),
		written: map[string]struct{}{},
	}
}

// StateBagFromMap builds a bag from a plain map. Keys are inserted in sorted
// order so the result is deterministic.
func StateBagFromMap(m map[string]any) *StateBag {
	b := NewStateBag()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.values.Set(k, m[k])
	}
	return b
}

// Get returns the value stored under key.
func (b *StateBag) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values.Get(key)
}

// Set stores value under key and marks the key as written.
func (b *StateBag) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values.Set(key, value)
	b.written[key] = struct{}{}
}

// Delete removes key. It reports whether the key was present.
func (b *StateBag) Delete(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.values.Delete(key)
	delete(b.written, key)
	return ok
}

// Len returns the number of keys.
func (b *StateBag) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values.Len()
}

// Keys returns the keys in insertion order.
func (b *StateBag) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, b.values.Len())
	for p := b.values.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Range calls fn for every pair in insertion order until fn returns false.
// fn runs on a snapshot, so it may call back into the bag.
func (b *StateBag) Range(fn func(key string, value any) bool) {
	for _, p := range b.pairs() {
		if !fn(p.key, p.value) {
			return
		}
	}
}

// ToMap returns a plain map copy of the bag.
func (b *StateBag) ToMap() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, b.values.Len())
	for p := b.values.Oldest(); p != nil; p = p.Next() {
		out[p.Key] = p.Value
	}
	return out
}

// Clone returns an independent copy. The written-key set is not copied.
func (b *StateBag) Clone() *StateBag {
	c := NewStateBag()
	for _, p := range b.pairs() {
		c.values.Set(p.key, p.value)
	}
	return c
}

// WrittenKeys returns the keys written through Set since the last reset, in
// bag order.
func (b *StateBag) WrittenKeys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.written))
	for p := b.values.Oldest(); p != nil; p = p.Next() {
		if _, ok := b.written[p.Key]; ok {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// ResetWritten forgets which keys were written.
func (b *StateBag) ResetWritten() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written = map[string]struct{}{}
}

// ReplaceWith overwrites the content of b with a copy of other, keeping the
// identity of b so references held by agents stay valid. The written-key set
// is cleared.
func (b *StateBag) ReplaceWith(other *StateBag) {
	if b == other {
		return
	}
	snapshot := other.pairs()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = orderedmap.New[string, any]()
	for _, p := range snapshot {
		b.values.Set(p.key, p.value)
	}
	b.written = map[string]struct{}{}
}

// SetReserved stores an engine-maintained key without marking it written.
func (b *StateBag) SetReserved(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values.Set(key, value)
}

// SessionID returns the current_session_id value, if set.
func (b *StateBag) SessionID() string {
	v, _ := b.Get(StateKeySessionID)
	s, _ := v.(string)
	return s
}

// MarshalJSON encodes the bag as a JSON object preserving key order.
func (b *StateBag) MarshalJSON() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values.MarshalJSON()
}

// UnmarshalJSON replaces the bag with the decoded JSON object.
func (b *StateBag) UnmarshalJSON(data []byte) error {
	values := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, values); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = values
	b.written = map[string]struct{}{}
	return nil
}

type statePair struct {
	key   string
	value any
}

func (b *StateBag) pairs() []statePair {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]statePair, 0, b.values.Len())
	for p := b.values.Oldest(); p != nil; p = p.Next() {
		out = append(out, statePair{key: p.Key, value: p.Value})
	}
	return out
}
