// Package eventbus decouples event producers (sensors, actuators, timers,
// protocol handlers) from consumers (automation rules, session observers)
// via a bounded ring queue and a filtered subscriber table (spec §4.6).
package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"mcpruntime/corelog"
)

// Type identifies the category of an Event. The zero value TypeAll is only
// meaningful as a subscription filter, never as a published event's type.
type Type int

const (
	// TypeAll matches every event type; only valid as a subscription filter.
	TypeAll Type = iota
	TypeSensor
	TypeActuator
	TypeTimer
	TypeProtocol
	TypeSystem
)

// SourceAll matches any event source when used as a subscription filter.
const SourceAll = ""

// Event is the bus's wire shape (spec §4.6 "Event shape"). Data is deep-copied
// into the queue at Publish time (spec §9 clarified open question), removing
// the borrowed-buffer ambiguity the original source left unresolved.
type Event struct {
	Type        Type
	ID          string
	Source      string
	TimestampMs int64
	Data        []byte
}

// ErrQueueFull is returned by Publish when the ring queue has no free slot.
// Publish never drops silently (spec §4.6).
var ErrQueueFull = errors.New("eventbus: queue full")

// Handler receives dispatched events. ctx carries no cancellation semantics
// in the cooperative single-tick model (spec §5); it exists so handlers can
// thread it through to logging or downstream calls uniformly.
type Handler func(ctx context.Context, evt Event, userData any)

type subscriber struct {
	id       string
	typ      Type
	source   string
	handler  Handler
	userData any
}

// Bus is the bounded queue plus subscriber table. Subscribe, Unsubscribe
// and Process are called from the single main tick (spec §5); Publish is
// the one method background HAL goroutines may call directly. Every method
// takes the mutex, since the host test platform allows background I/O
// goroutines to publish concurrently with the tick.
type Bus struct {
	mu          sync.Mutex
	queue       []Event
	queueSize   int
	subscribers []subscriber
	maxHandlers int
	log         corelog.Logger
}

// New creates a Bus with bounded subscriber and queue capacity (spec §4.6
// init). queueSize and maxHandlers must both be positive.
func New(maxHandlers, queueSize int, log corelog.Logger) *Bus {
	if log == nil {
		log = corelog.NewNopLogger()
	}
	return &Bus{
		queueSize:   queueSize,
		maxHandlers: maxHandlers,
		log:         log,
	}
}

// Subscribe registers handler for events matching typ and source (use
// TypeAll / SourceAll as wildcards). Returns a subscription id usable with
// Unsubscribe, or an error if the subscriber table is full.
func (b *Bus) Subscribe(typ Type, source string, handler Handler, userData any) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subscribers) >= b.maxHandlers {
		return "", errors.New("eventbus: subscriber table full")
	}
	id := uuid.NewString()
	b.subscribers = append(b.subscribers, subscriber{
		id: id, typ: typ, source: source, handler: handler, userData: userData,
	})
	return id, nil
}

// Unsubscribe removes the subscription with the given id, if present.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish enqueues evt, deep-copying its Data buffer. Fails with
// ErrQueueFull on overflow rather than dropping the event (spec §4.6).
func (b *Bus) Publish(evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= b.queueSize {
		return ErrQueueFull
	}
	cp := evt
	if evt.Data != nil {
		cp.Data = make([]byte, len(evt.Data))
		copy(cp.Data, evt.Data)
	}
	b.queue = append(b.queue, cp)
	return nil
}

// Process drains up to maxEvents from the queue (0 = drain all), dispatching
// each to every matching subscriber in registration order. An event
// dispatched to N subscribers counts once toward maxEvents (spec §4.6
// Ordering). Process is called only from the main tick.
func (b *Bus) Process(ctx context.Context, maxEvents int) int {
	b.mu.Lock()
	n := len(b.queue)
	if maxEvents > 0 && maxEvents < n {
		n = maxEvents
	}
	batch := make([]Event, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, evt := range batch {
		for _, s := range subs {
			if !matches(s, evt) {
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						b.log.Error(ctx, nil, "eventbus: subscriber panicked", "subscriber", s.id, "recover", r)
					}
				}()
				s.handler(ctx, evt, s.userData)
			}()
		}
	}
	return len(batch)
}

func matches(s subscriber, evt Event) bool {
	if s.typ != TypeAll && s.typ != evt.Type {
		return false
	}
	if s.source != SourceAll && s.source != evt.Source {
		return false
	}
	return true
}

// Pending reports how many events are currently queued, awaiting Process.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
