package event_bus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type EventType string

// Event carries an untyped payload and the context it was published with.
type Event struct {
	ctx       context.Context
	Type      EventType
	Timestamp time.Time
	Data      any
}

func NewEvent(ctx context.Context, eventType EventType, data any) Event {
	return Event{ctx: ctx, Type: eventType, Timestamp: time.Now(), Data: data}
}

// Context carries suppression marks set with Suppress.
func (e Event) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// EventT is an Event whose payload has been asserted to T.
type EventT[T any] struct {
	ctx       context.Context
	Type      EventType
	Timestamp time.Time
	Data      T
}

func (e EventT[T]) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

type subscriber struct {
	id   uint64
	name string
	fn   func(Event) error
}

// EventBus dispatches events synchronously, in subscription order.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscriber
	lastId      uint64
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[EventType][]subscriber)}
}

// Subscribe adds h under name for eventType. The name is what Suppress refers to.
func (eb *EventBus) Subscribe(eventType EventType, name string, h func(Event) error) (unsubscribe func()) {
	eb.mu.Lock()
	eb.lastId++
	id := eb.lastId
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber{id: id, name: name, fn: h})
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		remaining := slices.DeleteFunc(eb.subscribers[eventType], func(s subscriber) bool { return s.id == id })
		if len(remaining) == 0 {
			delete(eb.subscribers, eventType)
		} else {
			eb.subscribers[eventType] = remaining
		}
	}
}

// SubscribeTyped subscribes h for payloads of type T. Events with a nil or
// differently typed payload are skipped.
func SubscribeTyped[T any](eb *EventBus, eventType EventType, name string, h func(EventT[T]) error) (unsubscribe func()) {
	return eb.Subscribe(eventType, name, func(e Event) error {
		payload, ok := e.Data.(T)
		if !ok {
			log.Debugf("skipping %s for %s: payload is %T", name, eventType, e.Data)
			return nil
		}
		return h(EventT[T]{ctx: e.ctx, Type: e.Type, Timestamp: e.Timestamp, Data: payload})
	})
}

// Publish runs every subscriber of e.Type that is not suppressed in the
// event's context. A failing or panicking subscriber does not stop the others;
// their errors are joined. A cancelled context stops the dispatch.
func (eb *EventBus) Publish(e Event) error {
	ctx := e.Context()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("event %s not published: %w", e.Type, err)
	}

	eb.mu.RLock()
	subscribers := slices.Clone(eb.subscribers[e.Type])
	eb.mu.RUnlock()

	var failed []error
	for _, s := range subscribers {
		if err := ctx.Err(); err != nil {
			failed = append(failed, fmt.Errorf("dispatch of %s interrupted: %w", e.Type, err))
			break
		}
		if IsSuppressed(ctx, s.name) {
			log.Debugf("%s suppressed for %s", s.name, e.Type)
			continue
		}
		if err := s.call(e); err != nil {
			log.Errorf("%s failed on %s: %v", s.name, e.Type, err)
			failed = append(failed, err)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("event %s: %d handler(s) failed: %w", e.Type, len(failed), errors.Join(failed...))
	}
	return nil
}

func (s subscriber) call(e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", s.name, r)
		}
	}()
	return s.fn(e)
}
