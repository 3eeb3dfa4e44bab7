package concurrent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailbox_Fifo(t *testing.T) {
	t.Parallel()

	box := NewMailbox[int]()
	_, ok := box.TryTake()
	require.False(t, ok)

	for i := range 5 {
		box.Post(i)
	}
	require.Equal(t, 5, box.Len())

	<-box.Ready()

	first, ok := box.TryTake()
	require.True(t, ok)
	require.Equal(t, 0, first)
	require.Equal(t, []int{1, 2, 3, 4}, box.Drain())
	require.Zero(t, box.Len())
}

func TestMailbox_PostFromConsumer(t *testing.T) {
	t.Parallel()

	box := NewMailbox[func()]()
	var order []int
	box.Post(func() {
		order = append(order, 1)
		box.Post(func() { order = append(order, 2) })
	})

	for {
		task, ok := box.TryTake()
		if !ok {
			break
		}
		task()
	}
	require.Equal(t, []int{1, 2}, order)
}
