package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/testutil"
)

func TestORMap_SetGetDelete(t *testing.T) {
	as := newTestAnySupport(t)
	m := NewORMap(as)

	counter := NewCounter()
	counter.Increment(5)
	require.NoError(t, m.Set(mustEncode(t, as, "k"), counter))

	got, err := m.Get(mustEncode(t, as, "k"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.(*Counter).Value())
	assert.Equal(t, 1, m.Size())

	require.NoError(t, m.Delete(mustEncode(t, as, "k")))
	got, err = m.Get(mustEncode(t, as, "k"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestORMap_DefaultValueAutoInserts(t *testing.T) {
	as := newTestAnySupport(t)
	m := NewORMap(as)
	m.DefaultValue = func(key *protocol.Any) State { return NewCounter() }

	got, err := m.Get(mustEncode(t, as, "auto"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, m.Size())

	// The auto-inserted entry is a tracked addition.
	delta := m.GetAndResetDelta(false)
	require.NotNil(t, delta)
	require.NotNil(t, delta.Ormap)
	assert.Len(t, delta.Ormap.Added, 1)
}

func TestORMap_DeltaSeparatesAddedAndUpdated(t *testing.T) {
	as := newTestAnySupport(t)
	m := NewORMap(as)

	existing := NewCounter()
	require.NoError(t, m.Set(mustEncode(t, as, "old"), existing))
	m.GetAndResetDelta(false)

	existing.Increment(3)
	require.NoError(t, m.Set(mustEncode(t, as, "new"), NewCounter()))

	delta := m.GetAndResetDelta(false)
	require.NotNil(t, delta)
	assert.Len(t, delta.Ormap.Added, 1)
	assert.Len(t, delta.Ormap.Updated, 1)
	require.NotNil(t, delta.Ormap.Updated[0].Delta.Counter)
	assert.Equal(t, int64(3), delta.Ormap.Updated[0].Delta.Counter.Change)
}

func TestORMap_ReaddAfterDeleteCarriesBoth(t *testing.T) {
	as := newTestAnySupport(t)
	logger := &testutil.TestLogger{}
	m := NewORMap(as)
	m.Logger = logger

	require.NoError(t, m.Set(mustEncode(t, as, "k"), NewCounter()))
	m.GetAndResetDelta(false)

	require.NoError(t, m.Delete(mustEncode(t, as, "k")))
	replacement := NewCounter()
	replacement.Increment(9)
	require.NoError(t, m.Set(mustEncode(t, as, "k"), replacement))

	assert.True(t, logger.Has("WARN", "ormap_readd_after_delete"))

	delta := m.GetAndResetDelta(false)
	require.NotNil(t, delta)
	assert.Len(t, delta.Ormap.Removed, 1)
	assert.Len(t, delta.Ormap.Added, 1)

	// State is normalized after the flush.
	assert.Nil(t, m.GetAndResetDelta(false))
}

func TestORMap_SetExistingKeyIsRemoveThenAdd(t *testing.T) {
	as := newTestAnySupport(t)
	logger := &testutil.TestLogger{}
	m := NewORMap(as)
	m.Logger = logger

	require.NoError(t, m.Set(mustEncode(t, as, "k"), NewCounter()))
	m.GetAndResetDelta(false)

	require.NoError(t, m.Set(mustEncode(t, as, "k"), NewCounter()))
	assert.True(t, logger.Has("WARN", "ormap_set_replaces_value"))

	delta := m.GetAndResetDelta(false)
	require.NotNil(t, delta)
	assert.Len(t, delta.Ormap.Removed, 1)
	assert.Len(t, delta.Ormap.Added, 1)
}

func TestORMap_RejectsNilValue(t *testing.T) {
	as := newTestAnySupport(t)
	m := NewORMap(as)
	assert.Error(t, m.Set(mustEncode(t, as, "k"), nil))
}

func TestORMap_ApplyDelta(t *testing.T) {
	as := newTestAnySupport(t)

	source := NewORMap(as)
	counter := NewCounter()
	counter.Increment(7)
	require.NoError(t, source.Set(mustEncode(t, as, "k"), counter))
	delta := source.GetAndResetDelta(false)
	require.NotNil(t, delta)

	target := NewORMap(as)
	require.NoError(t, target.ApplyDelta(delta))
	got, err := target.Get(mustEncode(t, as, "k"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.(*Counter).Value())

	// Sub-delta updates flow into the nested value.
	counter.Increment(3)
	update := source.GetAndResetDelta(false)
	require.NotNil(t, update)
	require.NoError(t, target.ApplyDelta(update))
	got, err = target.Get(mustEncode(t, as, "k"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.(*Counter).Value())
}

func TestORMap_InitialDeltaReproducesState(t *testing.T) {
	as := newTestAnySupport(t)
	m := NewORMap(as)

	c := NewCounter()
	c.Increment(11)
	require.NoError(t, m.Set(mustEncode(t, as, "a"), c))
	require.NoError(t, m.Set(mustEncode(t, as, "b"), NewRegister(mustEncode(t, as, "v"))))
	m.GetAndResetDelta(false)

	initial := m.GetAndResetDelta(true)
	require.NotNil(t, initial)

	fresh, err := NewStateFromDelta(initial, as)
	require.NoError(t, err)
	require.NoError(t, fresh.ApplyDelta(initial))

	freshMap := fresh.(*ORMap)
	assert.Equal(t, 2, freshMap.Size())
	got, err := freshMap.Get(mustEncode(t, as, "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.(*Counter).Value())
}

func TestORMap_Clear(t *testing.T) {
	as := newTestAnySupport(t)
	m := NewORMap(as)
	require.NoError(t, m.Set(mustEncode(t, as, "k"), NewCounter()))
	m.GetAndResetDelta(false)

	m.Clear()
	delta := m.GetAndResetDelta(false)
	require.NotNil(t, delta)
	assert.True(t, delta.Ormap.Cleared)
	assert.Equal(t, 0, m.Size())
}
