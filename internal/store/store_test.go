package store

import (
	"maps"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue(t *testing.T) {
	t.Run("Get Returns Initial", func(t *testing.T) {
		v := NewValue(map[string]string{"c1": "waiting"})
		assert.Equal(t, "waiting", v.Get()["c1"])
	})

	t.Run("Set Notifies Synchronously", func(t *testing.T) {
		v := NewValue(0)
		var seen []int
		v.Subscribe(func(n int) { seen = append(seen, n) })

		v.Set(1)
		assert.Equal(t, []int{1}, seen, "subscriber runs before Set returns")
		v.Set(2)
		assert.Equal(t, []int{1, 2}, seen)
		assert.Equal(t, 2, v.Get())
	})

	t.Run("Subscriber Sees Stored Value", func(t *testing.T) {
		v := NewValue("")
		v.Subscribe(func(s string) {
			assert.Equal(t, s, v.Get())
		})
		v.Set("processing")
	})

	t.Run("Whole Value Swap", func(t *testing.T) {
		first := map[string]string{"a": "waiting"}
		v := NewValue(first)

		next := maps.Clone(first)
		next["b"] = "processing"
		v.Set(next)

		assert.Len(t, first, 1, "previous snapshot is untouched")
		assert.Len(t, v.Get(), 2)
	})

	t.Run("Unsubscribe Is Idempotent", func(t *testing.T) {
		v := NewValue(0)
		var a, b int
		unsubA := v.Subscribe(func(n int) { a = n })
		v.Subscribe(func(n int) { b = n })

		unsubA()
		unsubA()
		v.Set(5)

		assert.Equal(t, 0, a)
		assert.Equal(t, 5, b)
		assert.Equal(t, 1, v.Subscribers())
	})

	t.Run("Unsubscribe From Callback", func(t *testing.T) {
		v := NewValue(0)
		calls := 0
		var unsub func()
		unsub = v.Subscribe(func(int) {
			calls++
			unsub()
		})

		v.Set(1)
		v.Set(2)
		assert.Equal(t, 1, calls)
	})

	t.Run("Update Is Serialized", func(t *testing.T) {
		v := NewValue(0)
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v.Update(func(n int) int { return n + 1 })
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, v.Get())
	})
}

func TestDerive(t *testing.T) {
	src := NewValue(map[string]string{"a": "waiting"})
	count := Derive(src, func(m map[string]string) int { return len(m) })
	assert.Equal(t, 1, count.Get())

	var notified []int
	count.Subscribe(func(n int) { notified = append(notified, n) })

	src.Set(map[string]string{"a": "waiting", "b": "processing"})
	assert.Equal(t, 2, count.Get())
	assert.Equal(t, []int{2}, notified)

	count.Close()
	count.Close()
	src.Set(map[string]string{})
	assert.Equal(t, 2, count.Get(), "closed derived keeps its last value")
	assert.Equal(t, 0, src.Subscribers())
}
