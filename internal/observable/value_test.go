package observable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueGetSet(t *testing.T) {
	v := New(1)
	assert.Equal(t, 1, v.Get())
	v.Set(2)
	assert.Equal(t, 2, v.Get())
}

func TestSubscribeOrderAndVisibility(t *testing.T) {
	v := New("")
	var got []string

	v.Subscribe(func(s string) {
		got = append(got, "a:"+s)
		assert.Equal(t, s, v.Get(), "new value must be visible to subscribers")
	})
	v.Subscribe(func(s string) { got = append(got, "b:"+s) })

	v.Set("x")
	v.Set("y")

	assert.Equal(t, []string{"a:x", "b:x", "a:y", "b:y"}, got)
}

func TestUnsubscribe(t *testing.T) {
	v := New(0)
	calls := 0
	unsub := v.Subscribe(func(int) { calls++ })

	v.Set(1)
	unsub()
	unsub()
	v.Set(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, v.Subscribers())
}

func TestWatchCoalesces(t *testing.T) {
	v := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := v.Watch(ctx)
	assert.Equal(t, 0, <-ch)

	v.Set(1)
	v.Set(2)
	v.Set(3)

	select {
	case got := <-ch:
		assert.Equal(t, 3, got)
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	v := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	ch := v.Watch(ctx)
	<-ch
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	v.Set(1)
}
