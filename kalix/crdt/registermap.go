package crdt

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

type registerMapEntry struct {
	key      *protocol.Any
	register *Register
}

// RegisterMap is a replicated map of last-writer-wins registers.
type RegisterMap struct {
	as *anysupport.AnySupport

	// Logger is optional; set by the hosting entity for observable warnings.
	Logger Logger

	entries map[any]*registerMapEntry
	added   map[any]*registerMapEntry
	removed map[any]*protocol.Any
	cleared bool
}

// NewRegisterMap creates an empty register map.
func NewRegisterMap(as *anysupport.AnySupport) *RegisterMap {
	return &RegisterMap{
		as:      as,
		entries: make(map[any]*registerMapEntry),
		added:   make(map[any]*registerMapEntry),
		removed: make(map[any]*protocol.Any),
	}
}

// Size returns the number of keys.
func (m *RegisterMap) Size() int {
	return len(m.entries)
}

// Has reports whether a key is present.
func (m *RegisterMap) Has(key *protocol.Any) (bool, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return false, err
	}
	_, ok := m.entries[ck]
	return ok, nil
}

// Keys returns the keys in unspecified order.
func (m *RegisterMap) Keys() []*protocol.Any {
	out := make([]*protocol.Any, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.key)
	}
	return out
}

// Get returns the register value for a key, nil when absent.
func (m *RegisterMap) Get(key *protocol.Any) (*protocol.Any, error) {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return nil, err
	}
	e, ok := m.entries[ck]
	if !ok {
		return nil, nil
	}
	return e.register.Value(), nil
}

// SetValue assigns a value under the default clock, inserting the key when
// absent.
func (m *RegisterMap) SetValue(key, value *protocol.Any) error {
	return m.SetValueWithClock(key, value, ClockDefault, 0)
}

// SetValueWithClock assigns a value under an explicit clock.
func (m *RegisterMap) SetValueWithClock(key, value *protocol.Any, clock Clock, customClockValue int64) error {
	ck, err := m.as.Comparable(key)
	if err != nil {
		return err
	}
	if e, ok := m.entries[ck]; ok {
		return e.register.SetValueWithClock(value, clock, customClockValue)
	}
	if _, wasRemoved := m.removed[ck]; wasRemoved {
		if m.Logger != nil {
			m.Logger.Warn("register_map_readd_after_delete", "key", key.TypeUrl)
		}
	}
	e := &registerMapEntry{key: key, register: &Register{}}
	if err := e.register.SetValueWithClock(value, clock, customClockValue); err != nil {
		return err
	}
	m.entries[ck] = e
	m.added[ck] = e
	return nil
}

// Delete removes a key.
func (m *RegisterMap) Delete(key *protocol.Any) error {
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
func (m *RegisterMap) Clear() {
	m.entries = make(map[any]*registerMapEntry)
	m.added = make(map[any]*registerMapEntry)
	m.removed = make(map[any]*protocol.Any)
	m.cleared = true
}

func registerEntryDelta(e *registerMapEntry, initial bool) *protocol.RegisterDelta {
	sub := e.register.GetAndResetDelta(initial)
	if sub == nil {
		return nil
	}
	return sub.Register
}

// GetAndResetDelta implements State.
func (m *RegisterMap) GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta {
	delta := &protocol.RegisterMapDelta{}
	if initial {
		for _, e := range m.entries {
			delta.Added = append(delta.Added, &protocol.RegisterMapEntryDelta{
				Key:   e.key,
				Delta: registerEntryDelta(e, true),
			})
		}
		m.resetDelta()
		return &protocol.ReplicatedEntityDelta{RegisterMap: delta}
	}

	delta.Cleared = m.cleared
	for _, key := range m.removed {
		delta.Removed = append(delta.Removed, key)
	}
	for ck, e := range m.entries {
		if _, wasAdded := m.added[ck]; wasAdded {
			delta.Added = append(delta.Added, &protocol.RegisterMapEntryDelta{
				Key:   e.key,
				Delta: registerEntryDelta(e, true),
			})
			continue
		}
		if sub := registerEntryDelta(e, false); sub != nil {
			delta.Updated = append(delta.Updated, &protocol.RegisterMapEntryDelta{
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
	return &protocol.ReplicatedEntityDelta{RegisterMap: delta}
}

func (m *RegisterMap) resetDelta() {
	m.added = make(map[any]*registerMapEntry)
	m.removed = make(map[any]*protocol.Any)
	m.cleared = false
}

// ApplyDelta implements State.
func (m *RegisterMap) ApplyDelta(delta *protocol.ReplicatedEntityDelta) error {
	if delta == nil || delta.RegisterMap == nil {
		return fmt.Errorf("%w: register map cannot apply %s", ErrIncompatibleDelta, deltaKind(delta))
	}
	d := delta.RegisterMap
	if d.Cleared {
		m.entries = make(map[any]*registerMapEntry)
	}
	for _, key := range d.Removed {
		ck, err := m.as.Comparable(key)
		if err != nil {
			return err
		}
		if _, ok := m.entries[ck]; !ok {
			if m.Logger != nil {
				m.Logger.Debug("register_map_redundant_remove", "key", key.TypeUrl)
			}
			continue
		}
		delete(m.entries, ck)
	}
	apply := func(entry *protocol.RegisterMapEntryDelta) error {
		if entry.Delta == nil {
			return fmt.Errorf("%w: register map entry without register delta", ErrIncompatibleDelta)
		}
		ck, err := m.as.Comparable(entry.Key)
		if err != nil {
			return err
		}
		e, ok := m.entries[ck]
		if !ok {
			e = &registerMapEntry{key: entry.Key, register: &Register{}}
			m.entries[ck] = e
		}
		return e.register.ApplyDelta(&protocol.ReplicatedEntityDelta{Register: entry.Delta})
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
