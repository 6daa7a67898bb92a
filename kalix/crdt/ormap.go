package crdt

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// ormapEntry pairs the original serialized key with its nested value.
type ormapEntry struct {
	key   *protocol.Any
	value State
}

// ORMap is a replicated map from opaque keys to nested replicated data types.
// Key identity is the comparable key derived by anysupport.
//
// Two windowed edge cases are handled explicitly:
//
//   - Re-adding a key deleted in the same flush window keeps the prior key in
//     the removed list so the outbound delta carries both operations. The
//     state is normalized after the flush.
//   - Setting a new value for an existing key is a remove-then-add: the new
//     instance replaces the old and the same flush carries both.
type ORMap struct {
	as *anysupport.AnySupport

	// Logger is optional; set by the hosting entity for observable warnings.
	Logger Logger

	entries map[any]*ormapEntry
	added   map[any]*ormapEntry
	removed map[any]*protocol.Any
	cleared bool

	// DefaultValue, when set, auto-inserts an entry on Get of an absent key.
	DefaultValue func(key *protocol.Any) State
}

// NewORMap creates an empty map.
func NewORMap(as *anysupport.AnySupport) *ORMap {
	return &ORMap{
		as:      as,
		entries: make(map[any]*ormapEntry),
		added:   make(map[any]*ormapEntry),
		removed: make(map[any]*protocol.Any),
	}
}

// Size returns the number of entries.
func (m *ORMap) Size() int {
	return len(m.entries)
}

// Has reports whether a key is present.
func (m *ORMap) Has(key *protocol.Any) (bool, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return false, err
	}
	_, ok := m.entries[ck]
	return ok, nil
}

// Keys returns the keys in unspecified order.
func (m *ORMap) Keys() []*protocol.Any {
	out := make([]*protocol.Any, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.key)
	}
	return out
}

// Values returns the nested values in unspecified order.
func (m *ORMap) Values() []State {
	out := make([]State, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.value)
	}
	return out
}

// ForEach invokes fn for every entry.
func (m *ORMap) ForEach(fn func(key *protocol.Any, value State)) {
	for _, e := range m.entries {
		fn(e.key, e.value)
	}
}

// Get returns the value for a key. When absent and a DefaultValue callback is
// configured, the callback's non-nil result is inserted as a tracked addition.
func (m *ORMap) Get(key *protocol.Any) (State, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return nil, err
	}
	if e, ok := m.entries[ck]; ok {
		return e.value, nil
	}
	if m.DefaultValue != nil {
		if v := m.DefaultValue(key); v != nil {
			m.setEntry(ck, key, v)
			return v, nil
		}
	}
	return nil, nil
}

// Set inserts or replaces the value for a key. The value must be a replicated
// data type; replacing an existing value is a remove-then-add.
func (m *ORMap) Set(key *protocol.Any, value State) error {
	if value == nil {
		return fmt.Errorf("ormap value must be a replicated data type, got nil")
	}
	ck, err := m.as.Comparable(key)
	if err != nil {
		return err
	}
	if _, ok := m.entries[ck]; ok {
		if m.Logger != nil {
			m.Logger.Warn("ormap_set_replaces_value", "key", key.TypeUrl)
		}
		m.deleteEntry(ck)
	}
	m.setEntry(ck, key, value)
	return nil
}

// setEntry records an addition, flagging a re-add after a same-window delete.
func (m *ORMap) setEntry(ck any, key *protocol.Any, value State) {
	if _, wasRemoved := m.removed[ck]; wasRemoved {
		// The prior serialized key stays in removed so the flushed delta
		// carries the remove and the add.
		if m.Logger != nil {
			m.Logger.Warn("ormap_readd_after_delete", "key", key.TypeUrl)
		}
	}
	m.entries[ck] = &ormapEntry{key: key, value: value}
	m.added[ck] = m.entries[ck]
}

// Delete removes a key.
func (m *ORMap) Delete(key *protocol.Any) error {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return err
	}
	if _, ok := m.entries[ck]; !ok {
		return nil
	}
	m.deleteEntry(ck)
	return nil
}

func (m *ORMap) deleteEntry(ck any) {
	e := m.entries[ck]
	delete(m.entries, ck)
	if _, wasAdded := m.added[ck]; wasAdded {
		delete(m.added, ck)
	} else {
		m.removed[ck] = e.key
	}
}

// Clear removes every entry.
func (m *ORMap) Clear() {
	m.entries = make(map[any]*ormapEntry)
	m.added = make(map[any]*ormapEntry)
	m.removed = make(map[any]*protocol.Any)
	m.cleared = true
}

// GetAndResetDelta implements State.
func (m *ORMap) GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta {
	if initial {
		delta := &protocol.ORMapDelta{}
		for _, e := range m.entries {
			delta.Added = append(delta.Added, &protocol.ORMapEntryDelta{
				Key:   e.key,
				Delta: e.value.GetAndResetDelta(true),
			})
		}
		m.resetDelta()
		return &protocol.ReplicatedEntityDelta{Ormap: delta}
	}

	delta := &protocol.ORMapDelta{Cleared: m.cleared}
	for _, key := range m.removed {
		delta.Removed = append(delta.Removed, key)
	}
	for ck, e := range m.entries {
		if _, wasAdded := m.added[ck]; wasAdded {
			delta.Added = append(delta.Added, &protocol.ORMapEntryDelta{
				Key:   e.key,
				Delta: e.value.GetAndResetDelta(true),
			})
			continue
		}
		if sub := e.value.GetAndResetDelta(false); sub != nil {
			delta.Updated = append(delta.Updated, &protocol.ORMapEntryDelta{
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
	return &protocol.ReplicatedEntityDelta{Ormap: delta}
}

func (m *ORMap) resetDelta() {
	m.added = make(map[any]*ormapEntry)
	m.removed = make(map[any]*protocol.Any)
	m.cleared = false
}

// ApplyDelta implements State.
func (m *ORMap) ApplyDelta(delta *protocol.ReplicatedEntityDelta) error {
	if delta == nil || delta.Ormap == nil {
		return fmt.Errorf("%w: ormap cannot apply %s", ErrIncompatibleDelta, deltaKind(delta))
	}
	d := delta.Ormap
	if d.Cleared {
		m.entries = make(map[any]*ormapEntry)
	}
	for _, key := range d.Removed {
		ck, err := m.as.Comparable(key)
		if err != nil {
			return err
		}
		if _, ok := m.entries[ck]; !ok {
			if m.Logger != nil {
				m.Logger.Debug("ormap_redundant_remove", "key", key.TypeUrl)
			}
			continue
		}
		delete(m.entries, ck)
	}
	for _, entry := range d.Added {
		ck, err := m.as.Comparable(entry.Key)
		if err != nil {
			return err
		}
		if _, ok := m.entries[ck]; ok {
			if m.Logger != nil {
				m.Logger.Debug("ormap_readded_entry_replaced", "key", entry.Key.TypeUrl)
			}
		}
		value, err := NewStateFromDelta(entry.Delta, m.as)
		if err != nil {
			return err
		}
		if err := value.ApplyDelta(entry.Delta); err != nil {
			return err
		}
		m.entries[ck] = &ormapEntry{key: entry.Key, value: value}
	}
	for _, entry := range d.Updated {
		ck, err := m.as.Comparable(entry.Key)
		if err != nil {
			return err
		}
		e, ok := m.entries[ck]
		if !ok {
			if m.Logger != nil {
				m.Logger.Warn("ormap_update_for_missing_entry", "key", entry.Key.TypeUrl)
			}
			value, err := NewStateFromDelta(entry.Delta, m.as)
			if err != nil {
				return err
			}
			if err := value.ApplyDelta(entry.Delta); err != nil {
				return err
			}
			m.entries[ck] = &ormapEntry{key: entry.Key, value: value}
			continue
		}
		if err := e.value.ApplyDelta(entry.Delta); err != nil {
			return err
		}
	}
	return nil
}
