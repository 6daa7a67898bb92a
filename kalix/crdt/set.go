package crdt

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Set is a replicated membership set over opaque elements. Element identity is
// the comparable key derived by anysupport, so equal values are equal members
// regardless of the serialization they arrived in.
type Set struct {
	as      *anysupport.AnySupport
	value   map[any]*protocol.Any
	added   map[any]*protocol.Any
	removed map[any]*protocol.Any
	cleared bool
}

// NewSet creates an empty set.
func NewSet(as *anysupport.AnySupport) *Set {
	return &Set{
		as:      as,
		value:   make(map[any]*protocol.Any),
		added:   make(map[any]*protocol.Any),
		removed: make(map[any]*protocol.Any),
	}
}

// Size returns the number of elements.
func (s *Set) Size() int {
	return len(s.value)
}

// Has reports whether an element is a member.
func (s *Set) Has(element *protocol.Any) (bool, error) {
	key, err := s.as.Comparable(element)
	if err != nil {
		return false, err
	}
	_, ok := s.value[key]
	return ok, nil
}

// Elements returns the members in unspecified order.
func (s *Set) Elements() []*protocol.Any {
	out := make([]*protocol.Any, 0, len(s.value))
	for _, e := range s.value {
		out = append(out, e)
	}
	return out
}

// ForEach invokes fn for every member.
func (s *Set) ForEach(fn func(element *protocol.Any)) {
	for _, e := range s.value {
		fn(e)
	}
}

// Add inserts an element. Adding an existing member is a no-op.
func (s *Set) Add(element *protocol.Any) error {
	key, err := s.as.Comparable(element)
	if err != nil {
		return err
	}
	if _, ok := s.value[key]; ok {
		return nil
	}
	s.value[key] = element
	if _, wasRemoved := s.removed[key]; wasRemoved {
		delete(s.removed, key)
	} else {
		s.added[key] = element
	}
	return nil
}

// AddAll inserts every element.
func (s *Set) AddAll(elements ...*protocol.Any) error {
	for _, e := range elements {
		if err := s.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an element. Removing the last member collapses to a clear,
// which the proxy reconciles the same way.
func (s *Set) Delete(element *protocol.Any) error {
	key, err := s.as.Comparable(element)
	if err != nil {
		return err
	}
	if _, ok := s.value[key]; !ok {
		return nil
	}
	delete(s.value, key)
	if len(s.value) == 0 {
		s.Clear()
		return nil
	}
	if _, wasAdded := s.added[key]; wasAdded {
		delete(s.added, key)
	} else {
		s.removed[key] = element
	}
	return nil
}

// Clear removes every element.
func (s *Set) Clear() {
	s.value = make(map[any]*protocol.Any)
	s.added = make(map[any]*protocol.Any)
	s.removed = make(map[any]*protocol.Any)
	s.cleared = true
}

// GetAndResetDelta implements State.
func (s *Set) GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta {
	if initial {
		delta := &protocol.SetDelta{}
		for _, e := range s.value {
			delta.Added = append(delta.Added, e)
		}
		s.resetDelta()
		return &protocol.ReplicatedEntityDelta{Set: delta}
	}
	if !s.cleared && len(s.added) == 0 && len(s.removed) == 0 {
		return nil
	}
	delta := &protocol.SetDelta{Cleared: s.cleared}
	for _, e := range s.removed {
		delta.Removed = append(delta.Removed, e)
	}
	for _, e := range s.added {
		delta.Added = append(delta.Added, e)
	}
	s.resetDelta()
	return &protocol.ReplicatedEntityDelta{Set: delta}
}

func (s *Set) resetDelta() {
	s.added = make(map[any]*protocol.Any)
	s.removed = make(map[any]*protocol.Any)
	s.cleared = false
}

// ApplyDelta implements State.
func (s *Set) ApplyDelta(delta *protocol.ReplicatedEntityDelta) error {
	if delta == nil || delta.Set == nil {
		return fmt.Errorf("%w: set cannot apply %s", ErrIncompatibleDelta, deltaKind(delta))
	}
	d := delta.Set
	if d.Cleared {
		s.value = make(map[any]*protocol.Any)
	}
	for _, e := range d.Removed {
		key, err := s.as.Comparable(e)
		if err != nil {
			return err
		}
		// A remove for an element never observed locally is redundant.
		delete(s.value, key)
	}
	for _, e := range d.Added {
		key, err := s.as.Comparable(e)
		if err != nil {
			return err
		}
		s.value[key] = e
	}
	return nil
}
