package crdt

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

type counterMapEntry struct {
	key     *protocol.Any
	counter *Counter
}

// CounterMap is a replicated map of counters. Increments on the same key from
// different replicas merge by addition, so concurrent updates converge.
type CounterMap struct {
	as *anysupport.AnySupport

	// Logger is optional; set by the hosting entity for observable warnings.
	Logger Logger

	entries map[any]*counterMapEntry
	added   map[any]*counterMapEntry
	removed map[any]*protocol.Any
	cleared bool
}

// NewCounterMap creates an empty counter map.
func NewCounterMap(as *anysupport.AnySupport) *CounterMap {
	return &CounterMap{
		as:      as,
		entries: make(map[any]*counterMapEntry),
		added:   make(map[any]*counterMapEntry),
		removed: make(map[any]*protocol.Any),
	}
}

// Size returns the number of keys.
func (m *CounterMap) Size() int {
	return len(m.entries)
}

// Has reports whether a key is present.
func (m *CounterMap) Has(key *protocol.Any) (bool, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return false, err
	}
	_, ok := m.entries[ck]
	return ok, nil
}

// Keys returns the keys in unspecified order.
func (m *CounterMap) Keys() []*protocol.Any {
	out := make([]*protocol.Any, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.key)
	}
	return out
}

// Get returns the counter value for a key, zero when absent.
func (m *CounterMap) Get(key *protocol.Any) (int64, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return 0, err
	}
	e, ok := m.entries[ck]
	if !ok {
		return 0, nil
	}
	return e.counter.Value(), nil
}

// Increment adds n to a key's counter, inserting the key when absent.
func (m *CounterMap) Increment(key *protocol.Any, n int64) error {
	e, err := m.entry(key)
	if err != nil {
		return err
	}
	e.counter.Increment(n)
	return nil
}

// Decrement subtracts n from a key's counter, inserting the key when absent.
func (m *CounterMap) Decrement(key *protocol.Any, n int64) error {
	e, err := m.entry(key)
	if err != nil {
		return err
	}
	e.counter.Decrement(n)
	return nil
}

func (m *CounterMap) entry(key *protocol.Any) (*counterMapEntry, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return nil, err
	}
	if e, ok := m.entries[ck]; ok {
		return e, nil
	}
	e := &counterMapEntry{key: key, counter: NewCounter()}
	if _, wasRemoved := m.removed[ck]; wasRemoved {
		if m.Logger != nil {
			m.Logger.Warn("counter_map_readd_after_delete", "key", key.TypeUrl)
		}
	}
	m.entries[ck] = e
	m.added[ck] = e
	return e, nil
}

// Delete removes a key.
func (m *CounterMap) Delete(key *protocol.Any) error {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return err
	}
	e, ok := m.entries[ck]
	if !ok {
		return nil
	}
	delete(m.entries, ck)
	if _, wasAdded := m.added[ck]; wasAdded {
		delete(m.added, ck)
	} else {
		m.removed[ck] = e.key
	}
	return nil
}

// Clear removes every key.
func (m *CounterMap) Clear() {
	m.entries = make(map[any]*counterMapEntry)
	m.added = make(map[any]*counterMapEntry)
	m.removed = make(map[any]*protocol.Any)
	m.cleared = true
}

// GetAndResetDelta implements State.
func (m *CounterMap) GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta {
	delta := &protocol.CounterMapDelta{}
	if initial {
		for _, e := range m.entries {
			delta.Added = append(delta.Added, &protocol.CounterMapEntryDelta{
				Key:   e.key,
				Delta: &protocol.CounterDelta{Change: e.counter.Value()},
			})
			e.counter.GetAndResetDelta(false)
		}
		m.resetDelta()
		return &protocol.ReplicatedEntityDelta{CounterMap: delta}
	}

	delta.Cleared = m.cleared
	for _, key := range m.removed {
		delta.Removed = append(delta.Removed, key)
	}
	for ck, e := range m.entries {
		if _, wasAdded := m.added[ck]; wasAdded {
			delta.Added = append(delta.Added, &protocol.CounterMapEntryDelta{
				Key:   e.key,
				Delta: &protocol.CounterDelta{Change: e.counter.Value()},
			})
			e.counter.GetAndResetDelta(false)
			continue
		}
		if sub := e.counter.GetAndResetDelta(false); sub != nil {
			delta.Updated = append(delta.Updated, &protocol.CounterMapEntryDelta{
				Key:   e.key,
				Delta: sub.Counter,
			})
		}
	}
	if !delta.Cleared && len(delta.Removed) == 0 && len(delta.Added) == 0 && len(delta.Updated) == 0 {
		m.resetDelta()
		return nil
	}
	m.resetDelta()
	return &protocol.ReplicatedEntityDelta{CounterMap: delta}
}

func (m *CounterMap) resetDelta() {
	m.added = make(map[any]*counterMapEntry)
	m.removed = make(map[any]*protocol.Any)
	m.cleared = false
}

// ApplyDelta implements State.
func (m *CounterMap) ApplyDelta(delta *protocol.ReplicatedEntityDelta) error {
	if delta == nil || delta.CounterMap == nil {
		return fmt.Errorf("%w: counter map cannot apply %s", ErrIncompatibleDelta, deltaKind(delta))
	}
	d := delta.CounterMap
	if d.Cleared {
		m.entries = make(map[any]*counterMapEntry)
	}
	for _, key := range d.Removed {
		ck, err := m.as.Comparable(key)
		if err != nil {
			return err
		}
		if _, ok := m.entries[ck]; !ok {
			if m.Logger != nil {
				m.Logger.Debug("counter_map_redundant_remove", "key", key.TypeUrl)
			}
			continue
		}
		delete(m.entries, ck)
	}
	apply := func(entry *protocol.CounterMapEntryDelta) error {
		ck, err := m.as.Comparable(entry.Key)
		if err != nil {
			return err
		}
		e, ok := m.entries[ck]
		if !ok {
			e = &counterMapEntry{key: entry.Key, counter: NewCounter()}
			m.entries[ck] = e
		}
		if entry.Delta == nil {
			return fmt.Errorf("%w: counter map entry without counter delta", ErrIncompatibleDelta)
		}
		return e.counter.ApplyDelta(&protocol.ReplicatedEntityDelta{Counter: entry.Delta})
	}
	for _, entry := range d.Added {
		if err := apply(entry); err != nil {
			return err
		}
	}
	for _, entry := range d.Updated {
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}
