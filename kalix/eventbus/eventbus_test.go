package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	bus.Subscribe((&CommandCompleted{}).EventType(), func(e Event) {
		got = append(got, e.(*CommandCompleted).CommandName)
	})

	bus.Publish(&CommandCompleted{CommandName: "Do", Status: "success"})
	bus.Publish(&CommandCompleted{CommandName: "Other", Status: "failure"})
	assert.Equal(t, []string{"Do", "Other"}, got)
}

func TestBus_SubscribersAreTypeScoped(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	bus.Subscribe((&StreamStarted{}).EventType(), func(Event) { calls++ })

	bus.Publish(&StreamEnded{})
	assert.Equal(t, 0, calls)
	bus.Publish(&StreamStarted{})
	assert.Equal(t, 1, calls)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	id := bus.Subscribe((&EntityActivated{}).EventType(), func(Event) { calls++ })
	require.Equal(t, 1, bus.SubscriberCount((&EntityActivated{}).EventType()))

	assert.True(t, bus.Unsubscribe((&EntityActivated{}).EventType(), id))
	bus.Publish(&EntityActivated{})
	assert.Equal(t, 0, calls)

	assert.False(t, bus.Unsubscribe((&EntityActivated{}).EventType(), id))
}

func TestBus_NilBusDiscards(t *testing.T) {
	var bus *Bus
	bus.Publish(&StreamStarted{})
}

func TestBus_MultipleSubscribersInOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.Subscribe((&StreamStarted{}).EventType(), func(Event) { order = append(order, "first") })
	bus.Subscribe((&StreamStarted{}).EventType(), func(Event) { order = append(order, "second") })

	bus.Publish(&StreamStarted{})
	assert.Equal(t, []string{"first", "second"}, order)
}
