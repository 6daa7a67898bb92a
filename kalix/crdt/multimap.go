package crdt

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

type multiMapEntry struct {
	key    *protocol.Any
	values *Set
}

// MultiMap is a replicated map from keys to sets of values.
type MultiMap struct {
	as *anysupport.AnySupport

	// Logger is optional; set by the hosting entity for observable warnings.
	Logger Logger

	entries map[any]*multiMapEntry
	added   map[any]*multiMapEntry
	removed map[any]*protocol.Any
	cleared bool
}

// NewMultiMap creates an empty multimap.
func NewMultiMap(as *anysupport.AnySupport) *MultiMap {
	return &MultiMap{
		as:      as,
		entries: make(map[any]*multiMapEntry),
		added:   make(map[any]*multiMapEntry),
		removed: make(map[any]*protocol.Any),
	}
}

// Size returns the number of keys.
func (m *MultiMap) Size() int {
	return len(m.entries)
}

// Has reports whether a key has any values.
func (m *MultiMap) Has(key *protocol.Any) (bool, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return false, err
	}
	_, ok := m.entries[ck]
	return ok, nil
}

// HasValue reports whether a key currently holds a value.
func (m *MultiMap) HasValue(key, value *protocol.Any) (bool, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return false, err
	}
	e, ok := m.entries[ck]
	if !ok {
		return false, nil
	}
	return e.values.Has(value)
}

// Keys returns the keys in unspecified order.
func (m *MultiMap) Keys() []*protocol.Any {
	out := make([]*protocol.Any, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.key)
	}
	return out
}

// Get returns the values bound to a key, empty when absent.
func (m *MultiMap) Get(key *protocol.Any) ([]*protocol.Any, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return nil, err
	}
	e, ok := m.entries[ck]
	if !ok {
		return nil, nil
	}
	return e.values.Elements(), nil
}

// Put binds a value to a key, inserting the key when absent.
func (m *MultiMap) Put(key, value *protocol.Any) error {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return err
	}
	e, ok := m.entries[ck]
	if !ok {
		if _, wasRemoved := m.removed[ck]; wasRemoved {
			if m.Logger != nil {
				m.Logger.Warn("multimap_readd_after_delete", "key", key.TypeUrl)
			}
		}
		e = &multiMapEntry{key: key, values: NewSet(m.as)}
		m.entries[ck] = e
		m.added[ck] = e
	}
	return e.values.Add(value)
}

// Delete unbinds one value from a key, dropping the key when its set empties.
func (m *MultiMap) Delete(key, value *protocol.Any) error {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return err
	}
	e, ok := m.entries[ck]
	if !ok {
		return nil
	}
	if err := e.values.Delete(value); err != nil {
		return err
	}
	if e.values.Size() == 0 {
		return m.DeleteAll(key)
	}
	return nil
}

// DeleteAll removes a key and all its values.
func (m *MultiMap) DeleteAll(key *protocol.Any) error {
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
func (m *MultiMap) Clear() {
	m.entries = make(map[any]*multiMapEntry)
	m.added = make(map[any]*multiMapEntry)
	m.removed = make(map[any]*protocol.Any)
	m.cleared = true
}

func multiMapEntryDelta(e *multiMapEntry, initial bool) *protocol.SetDelta {
	sub := e.values.GetAndResetDelta(initial)
	if sub == nil {
		return nil
	}
	return sub.Set
}

// GetAndResetDelta implements State.
func (m *MultiMap) GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta {
	delta := &protocol.MultiMapDelta{}
	if initial {
		for _, e := range m.entries {
			delta.Added = append(delta.Added, &protocol.MultiMapEntryDelta{
				Key:   e.key,
				Delta: multiMapEntryDelta(e, true),
			})
		}
		m.resetDelta()
		return &protocol.ReplicatedEntityDelta{MultiMap: delta}
	}

	delta.Cleared = m.cleared
	for _, key := range m.removed {
		delta.Removed = append(delta.Removed, key)
	}
	for ck, e := range m.entries {
		if _, wasAdded := m.added[ck]; wasAdded {
			delta.Added = append(delta.Added, &protocol.MultiMapEntryDelta{
				Key:   e.key,
				Delta: multiMapEntryDelta(e, true),
			})
			continue
		}
		if sub := multiMapEntryDelta(e, false); sub != nil {
			delta.Updated = append(delta.Updated, &protocol.MultiMapEntryDelta{
				Key:   e.key,
				Delta: sub,
			})
		}
	}
	if !delta.Cleared && len(delta.Removed) == 0 && len(delta.Added) == 0 && len(delta.Updated) == 0 {
		m.resetDelta()
		return nil
	}
	m.resetDelta()
	return &protocol.ReplicatedEntityDelta{MultiMap: delta}
}

func (m *MultiMap) resetDelta() {
	m.added = make(map[any]*multiMapEntry)
	m.removed = make(map[any]*protocol.Any)
	m.cleared = false
}

// ApplyDelta implements State.
func (m *MultiMap) ApplyDelta(delta *protocol.ReplicatedEntityDelta) error {
	if delta == nil || delta.MultiMap == nil {
		return fmt.Errorf("%w: multimap cannot apply %s", ErrIncompatibleDelta, deltaKind(delta))
	}
	d := delta.MultiMap
	if d.Cleared {
		m.entries = make(map[any]*multiMapEntry)
	}
	for _, key := range d.Removed {
		ck, err := m.as.Comparable(key)
		if err != nil {
			return err
		}
		if _, ok := m.entries[ck]; !ok {
			if m.Logger != nil {
				m.Logger.Debug("multimap_redundant_remove", "key", key.TypeUrl)
			}
			continue
		}
		delete(m.entries, ck)
	}
	apply := func(entry *protocol.MultiMapEntryDelta) error {
		if entry.Delta == nil {
			return fmt.Errorf("%w: multimap entry without set delta", ErrIncompatibleDelta)
		}
		ck, err := m.as.Comparable(entry.Key)
		if err != nil {
			return err
		}
		e, ok := m.entries[ck]
		if !ok {
			e = &multiMapEntry{key: entry.Key, values: NewSet(m.as)}
			m.entries[ck] = e
		}
		return e.values.ApplyDelta(&protocol.ReplicatedEntityDelta{Set: entry.Delta})
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
