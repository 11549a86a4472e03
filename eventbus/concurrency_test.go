package eventbus_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"mcpruntime/eventbus"
)

// TestConcurrentProducersOnlyPublish simulates the background-I/O
// discipline the runtime requires (spec §5 "background I/O is not
// permitted to mutate core state directly — it must publish events"):
// several simulated ISR-like goroutines call nothing but Publish,
// supervised by an errgroup, while the bus's own tables are only ever
// touched from this single test goroutine's Process call.
func TestConcurrentProducersOnlyPublish(t *testing.T) {
	const producers = 8
	const perProducer = 20

	b := eventbus.New(4, producers*perProducer, nil)

	var received int64
	_, err := b.Subscribe(eventbus.TypeSensor, eventbus.SourceAll, func(_ context.Context, _ eventbus.Event, _ any) {
		atomic.AddInt64(&received, 1)
	}, nil)
	require.NoError(t, err)

	var g errgroup.Group
	for p := 0; p < producers; p++ {
		source := "sensor"
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				if err := b.Publish(eventbus.Event{Type: eventbus.TypeSensor, Source: source, TimestampMs: int64(i)}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	dispatched := b.Process(context.Background(), 0)
	assert.Equal(t, producers*perProducer, dispatched)
	assert.EqualValues(t, producers*perProducer, received)
}
