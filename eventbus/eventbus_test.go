package eventbus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpruntime/eventbus"
)

func TestPublishDeepCopiesData(t *testing.T) {
	b := eventbus.New(4, 4, nil)
	data := []byte{1, 2, 3}
	require.NoError(t, b.Publish(eventbus.Event{Type: eventbus.TypeSensor, Source: "temp1", Data: data}))
	data[0] = 99 // mutate after publish

	var seen []byte
	_, err := b.Subscribe(eventbus.TypeSensor, eventbus.SourceAll, func(_ context.Context, evt eventbus.Event, _ any) {
		seen = evt.Data
	}, nil)
	require.NoError(t, err)

	b.Process(context.Background(), 0)
	require.Len(t, seen, 3)
	assert.EqualValues(t, 1, seen[0], "queue must deep-copy the publisher's buffer")
}

func TestPublishRejectsOnQueueFull(t *testing.T) {
	b := eventbus.New(4, 1, nil)
	require.NoError(t, b.Publish(eventbus.Event{Type: eventbus.TypeSensor}))
	err := b.Publish(eventbus.Event{Type: eventbus.TypeSensor})
	assert.ErrorIs(t, err, eventbus.ErrQueueFull)
}

func TestFilterMatchesTypeAndSource(t *testing.T) {
	b := eventbus.New(8, 8, nil)
	var h1, h2, h3 int
	_, _ = b.Subscribe(eventbus.TypeSensor, "temp1", func(context.Context, eventbus.Event, any) { h1++ }, nil)
	_, _ = b.Subscribe(eventbus.TypeSensor, eventbus.SourceAll, func(context.Context, eventbus.Event, any) { h2++ }, nil)
	_, _ = b.Subscribe(eventbus.TypeActuator, eventbus.SourceAll, func(context.Context, eventbus.Event, any) { h3++ }, nil)

	require.NoError(t, b.Publish(eventbus.Event{Type: eventbus.TypeSensor, Source: "temp1"}))
	b.Process(context.Background(), 0)

	assert.Equal(t, 1, h1)
	assert.Equal(t, 1, h2)
	assert.Equal(t, 0, h3)
}

func TestProcessIsFIFOAndCountsEventOnce(t *testing.T) {
	b := eventbus.New(8, 8, nil)
	var order []string
	_, _ = b.Subscribe(eventbus.TypeAll, eventbus.SourceAll, func(_ context.Context, evt eventbus.Event, _ any) {
		order = append(order, evt.ID)
	}, nil)
	_, _ = b.Subscribe(eventbus.TypeAll, eventbus.SourceAll, func(_ context.Context, evt eventbus.Event, _ any) {
		order = append(order, evt.ID)
	}, nil)

	require.NoError(t, b.Publish(eventbus.Event{Type: eventbus.TypeSensor, ID: "a"}))
	require.NoError(t, b.Publish(eventbus.Event{Type: eventbus.TypeSensor, ID: "b"}))

	n := b.Process(context.Background(), 1)
	assert.Equal(t, 1, n, "one event dispatched to two subscribers still counts once")
	assert.Equal(t, []string{"a", "a"}, order)
	assert.Equal(t, 1, b.Pending())
}
