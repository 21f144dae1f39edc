package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedValues(t *testing.T) {
	s := New[int]()

	var got []int
	sub := s.Subscribe(func(v int) { got = append(got, v) })
	defer sub.Unsubscribe()

	s.Publish(1)
	s.Publish(2)

	assert.Equal(t, []int{1, 2}, got)
}

func TestSubscribeReplaysCurrentValue(t *testing.T) {
	s := New[string]()
	s.Publish("signed-in")

	var got []string
	s.Subscribe(func(v string) { got = append(got, v) })

	assert.Equal(t, []string{"signed-in"}, got)

	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "signed-in", current)
}

func TestNoReplayBeforeFirstPublish(t *testing.T) {
	s := New[int]()

	calls := 0
	s.Subscribe(func(int) { calls++ })

	assert.Zero(t, calls)
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New[int]()

	calls := 0
	sub := s.Subscribe(func(int) { calls++ })
	s.Publish(1)

	sub.Unsubscribe()
	sub.Unsubscribe()
	s.Publish(2)

	assert.Equal(t, 1, calls)
	assert.True(t, sub.Closed())
	assert.Zero(t, s.Len())
}

func TestUnsubscribeFromInsideCallback(t *testing.T) {
	s := New[int]()

	var sub *Subscription
	calls := 0
	sub = s.Subscribe(func(int) {
		calls++
		sub.Unsubscribe()
	})

	s.Publish(1)
	s.Publish(2)

	assert.Equal(t, 1, calls)
}

func TestConcurrentPublishIsSerialized(t *testing.T) {
	s := New[int]()

	var (
		inFlight int
		maxSeen  int
		mu       sync.Mutex
		total    int
	)
	s.Subscribe(func(int) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		mu.Lock()
		inFlight--
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			s.Publish(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 50, total)
}
