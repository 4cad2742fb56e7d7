package pubsub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBroker()

	var got1, got2 []Event
	b.Subscribe(func(ev Event) {
		got1 = append(got1, ev)
	})
	b.Subscribe(func(ev Event) {
		got2 = append(got2, ev)
	})

	b.Publish(Event{Type: "order", ID: "o1", Version: 3})

	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	assert.Equal(t, "order", got1[0].Type)
	assert.Equal(t, "o1", got1[0].ID)
	assert.Equal(t, 3, got1[0].Version)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()

	count := 0
	unsub := b.Subscribe(func(ev Event) {
		count++
	})

	b.Publish(Event{Type: "order", ID: "o1"})
	unsub()
	b.Publish(Event{Type: "order", ID: "o2"})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestUnsubscribeTwiceIsHarmless(t *testing.T) {
	b := NewBroker()

	unsub := b.Subscribe(func(ev Event) {})
	b.Subscribe(func(ev Event) {})

	unsub()
	unsub()

	assert.Equal(t, 1, b.SubscriberCount())
}

func TestHandlerMayUnsubscribeItselfDuringDelivery(t *testing.T) {
	b := NewBroker()

	count := 0
	var unsub func()
	unsub = b.Subscribe(func(ev Event) {
		count++
		unsub()
	})

	b.Publish(Event{Type: "order", ID: "o1"})
	b.Publish(Event{Type: "order", ID: "o2"})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBroker()

	// Must not panic or block
	b.Publish(Event{Type: "order", ID: "o1", Deleted: true})
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBroker()

	var mutex sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := b.Subscribe(func(ev Event) {
				mutex.Lock()
				total++
				mutex.Unlock()
			})
			defer unsub()

			for j := 0; j < 20; j++ {
				b.Publish(Event{Type: "order", ID: "o1"})
			}
		}()
	}
	wg.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	assert.GreaterOrEqual(t, total, 200)
	assert.Equal(t, 0, b.SubscriberCount())
}
