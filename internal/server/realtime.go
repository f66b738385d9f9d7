package server

import (
	"context"
	"sync"
	"time"

	"github.com/dividis/backend/internal/declarations"
)

const (
	RealtimeEventDeclarationChanged = "declaration-change"
	realtimeEventHeartbeat          = "heartbeat"
	realtimeSourceBackend           = "dividis-backend"
	defaultRealtimeBufferSize       = 16
)

// RealtimeMessage is one committed declaration change as seen by subscribers.
type RealtimeMessage struct {
	EventType   string
	Change      declarations.Change
	Timestamp   time.Time
	Subscribers int
}

// SubscriberObserver tracks the number of open feed subscriptions.
type SubscriberObserver interface {
	SubscriberOpened()
	SubscriberClosed()
}

// RealtimeDispatcher fans committed declaration changes out to every open
// feed stream. Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	observer    SubscriberObserver
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	userID string
	stream chan RealtimeMessage
	once   sync.Once
}

var _ declarations.ChangePublisher = (*RealtimeDispatcher)(nil)

// NewRealtimeDispatcher builds a dispatcher. The observer may be nil.
func NewRealtimeDispatcher(observer SubscriberObserver) *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  defaultRealtimeBufferSize,
		observer:    observer,
		clock:       time.Now,
	}
}

// Subscribe registers a stream for userID that lives until ctx ends or the
// returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		userID: userID,
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	done := make(chan struct{})
	cleanup := func() {
		subscriber.once.Do(func() {
			close(done)
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()
	return subscriber.stream, cleanup
}

// PublishDeclarationChange broadcasts change to every subscriber.
func (d *RealtimeDispatcher) PublishDeclarationChange(change declarations.Change) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventDeclarationChanged,
		Change:    change,
		Timestamp: d.clock().UTC(),
	})
}

// Publish delivers message to every subscriber without blocking.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	message.Subscribers = len(copies)
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// Subscribers reports the number of open streams.
func (d *RealtimeDispatcher) Subscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()
	if d.observer != nil {
		d.observer.SubscriberOpened()
	}
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	_, existed := d.subscribers[subscriberID]
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
	if existed && d.observer != nil {
		d.observer.SubscriberClosed()
	}
}
