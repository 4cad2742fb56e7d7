// Package pubsub provides in-process fan-out of entity change events. The
// producer packages publish on local writes and the sync engine publishes
// on sync state transitions, so presentation layers can refresh without
// polling the database.
package pubsub

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Event describes a change to a locally stored entity
type Event struct {
	Type    string `json:"dataType"`
	ID      string `json:"dataId"`
	Deleted bool   `json:"deleted"`
	Version int    `json:"version"`
}

// Handler receives published events. Handlers must not block, they are
// invoked inline by the publisher.
type Handler func(ev Event)

// Broker fans out events to subscribed handlers
type Broker struct {
	mutex    sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewBroker initializes a new broker
func NewBroker() (b *Broker) {
	return &Broker{
		handlers: map[int]Handler{},
	}
}

// Subscribe registers the handler for all subsequent events. The returned
// function removes the subscription.
func (b *Broker) Subscribe(h Handler) (unsubscribe func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	return func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()
		delete(b.handlers, id)
	}
}

// SubscriberCount returns the number of active subscriptions
func (b *Broker) SubscriberCount() (count int) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.handlers)
}

// Publish delivers the event to every subscribed handler. The handler list
// is snapshotted first so a handler may unsubscribe itself during delivery.
func (b *Broker) Publish(ev Event) {
	b.mutex.RLock()
	hList := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hList = append(hList, h)
	}
	b.mutex.RUnlock()

	if len(hList) == 0 {
		return
	}

	log.Debug().Msgf("publish '%s' id: %s, version: %v, deleted: %v",
		ev.Type, ev.ID, ev.Version, ev.Deleted)

	for _, h := range hList {
		h(ev)
	}
}
