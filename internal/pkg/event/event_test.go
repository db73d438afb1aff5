package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitInRegistrationOrder(t *testing.T) {
	var e Event[int]
	var got []string

	e.AddListener(func(v int) { got = append(got, "a") })
	remove := e.AddListener(func(v int) { got = append(got, "b") })
	e.AddListener(func(v int) { got = append(got, "c") })

	e.Emit(1)
	require.Equal(t, []string{"a", "b", "c"}, got)

	remove()
	got = nil
	e.Emit(2)
	require.Equal(t, []string{"a", "c"}, got)
	require.Equal(t, 2, e.Len())
}

func TestListenerMayRemoveItselfDuringEmit(t *testing.T) {
	var e Event[string]
	calls := 0
	var remove func()
	remove = e.AddListener(func(string) {
		calls++
		remove()
	})

	e.Emit("x")
	e.Emit("y")
	require.Equal(t, 1, calls)
}
