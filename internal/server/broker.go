package server

import (
	"context"
	"sync"
)

// CollectionSessions is the channel key the dashboard subscribes to; every
// committed session document is republished there alongside its own channel.
const CollectionSessions = "sessions"

// Publisher delivers committed session documents to subscribers. The store
// publishes after every confirmed write, in commit order per session.
type Publisher interface {
	PublishSession(ctx context.Context, id string, doc []byte)
}

// Broker is an in-process pub/sub for session documents, keyed by session id
// (or CollectionSessions for the firehose). Slow subscribers lose events
// rather than block a commit; the next snapshot supersedes anyway.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON session documents for key.
func (b *Broker) Subscribe(key string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[chan []byte]struct{})
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the key's subscribers.
func (b *Broker) Unsubscribe(key string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[key], ch)
	if len(b.subs[key]) == 0 {
		delete(b.subs, key)
	}
	b.mu.Unlock()
}

// PublishSession fans the document out to the session's subscribers and the
// collection firehose.
func (b *Broker) PublishSession(_ context.Context, id string, doc []byte) {
	b.publish(id, doc)
	b.publish(CollectionSessions, doc)
}

func (b *Broker) publish(key string, doc []byte) {
	b.mu.RLock()
	for ch := range b.subs[key] {
		select {
		case ch <- doc:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}
