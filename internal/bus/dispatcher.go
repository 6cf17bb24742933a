package bus

import (
	"context"
	"sync"
	"time"

	"spendlog/internal/log"
)

// Publisher forwards events to an external broker. A nil Publisher on
// the dispatcher means events stay in-process only.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Dispatcher fans settings events out to in-process subscribers and,
// when configured, to an external publisher. Posts can be delayed so
// that rapid successive changes settle before consumers react.
type Dispatcher struct {
	mu        sync.Mutex
	subs      []chan Event
	timers    map[string]*time.Timer
	publisher Publisher
	logger    *log.Logger
	closed    bool
}

func NewDispatcher(publisher Publisher, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		timers:    make(map[string]*time.Timer),
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentBus),
	}
}

// Subscribe returns a channel that receives every dispatched event.
// The channel holds a single slot; if the subscriber lags, the stale
// event is dropped in favor of the newest one.
func (d *Dispatcher) Subscribe() <-chan Event {
	ch := make(chan Event, 1)
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

// Post dispatches an event immediately.
func (d *Dispatcher) Post(event Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	subs := make([]chan Event, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}

	if d.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error("publish event", log.FieldError, err, "event", event.Name)
		}
	}

	d.logger.Debug("event dispatched", "event", event.Name, "value", event.Value)
}

// PostAfter schedules an event after the given delay. A later call for
// the same event name cancels the pending one, so only the final value
// of a burst of changes is delivered.
func (d *Dispatcher) PostAfter(delay time.Duration, event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t, ok := d.timers[event.Name]; ok {
		t.Stop()
	}
	d.timers[event.Name] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, event.Name)
		d.mu.Unlock()
		d.Post(event)
	})
}

// Close cancels pending timers and stops dispatching. Subscriber
// channels are left open so a racing Post never sends on a closed
// channel; they simply stop receiving.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for name, t := range d.timers {
		t.Stop()
		delete(d.timers, name)
	}
	d.subs = nil
}
