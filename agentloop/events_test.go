package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEmitter(t *testing.T) {
	e := NewEventEmitter(4)
	e.Emit(EventRunStart, "run-1", map[string]any{"task": "halo"})
	e.Emit(EventRunEnd, "run-1", nil)
	e.Close()

	var kinds []EventKind
	for ev := range e.Events() {
		assert.Equal(t, "run-1", ev.RunID)
		assert.False(t, ev.Timestamp.IsZero())
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventRunStart, EventRunEnd}, kinds)
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(EventIterationStart, "r", nil)
	e.Emit(EventIterationStart, "r", nil)
	e.Close()

	n := 0
	for range e.Events() {
		n++
	}
	assert.Equal(t, 1, n)
}

func TestEventEmitterClosed(t *testing.T) {
	e := NewEventEmitter(0)
	e.Close()
	e.Close()
	require.NotPanics(t, func() { e.Emit(EventError, "r", nil) })
}

func TestNilEventEmitter(t *testing.T) {
	var e *EventEmitter
	require.NotPanics(t, func() {
		e.Emit(EventRunStart, "r", nil)
		e.Close()
	})
}
