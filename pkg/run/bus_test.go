package run

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neodify/neodify/pkg/store"
)

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []int
	unsubscribe := bus.Subscribe("run_1", func(event store.RunEvent) {
		got = append(got, event.Seq)
	})
	defer unsubscribe()

	for seq := 1; seq <= 5; seq++ {
		bus.Publish(store.RunEvent{RunID: "run_1", Seq: seq, Type: "run.started"})
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestBusIsolatesRuns(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []string
	unsubscribe := bus.Subscribe("run_1", func(event store.RunEvent) {
		got = append(got, event.RunID)
	})
	defer unsubscribe()

	bus.Publish(store.RunEvent{RunID: "run_2", Seq: 1})
	bus.Publish(store.RunEvent{RunID: "run_1", Seq: 1})

	assert.Equal(t, []string{"run_1"}, got)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	unsubscribe := bus.Subscribe("run_1", func(store.RunEvent) { count++ })

	bus.Publish(store.RunEvent{RunID: "run_1", Seq: 1})
	unsubscribe()
	unsubscribe() // second call is a no-op
	bus.Publish(store.RunEvent{RunID: "run_1", Seq: 2})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.SubscriberCount("run_1"))
}

func TestBusListenerPanicIsIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	received := 0
	stop1 := bus.Subscribe("run_1", func(store.RunEvent) { panic("boom") })
	stop2 := bus.Subscribe("run_1", func(store.RunEvent) { received++ })
	defer stop1()
	defer stop2()

	require.NotPanics(t, func() {
		bus.Publish(store.RunEvent{RunID: "run_1", Seq: 1})
	})
	assert.Equal(t, 1, received)
}

func TestBusSubscriberCount(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	stop1 := bus.Subscribe("run_1", func(store.RunEvent) {})
	stop2 := bus.Subscribe("run_1", func(store.RunEvent) {})
	assert.Equal(t, 2, bus.SubscriberCount("run_1"))

	stop1()
	assert.Equal(t, 1, bus.SubscriberCount("run_1"))
	stop2()
	assert.Equal(t, 0, bus.SubscriberCount("run_1"))
}
