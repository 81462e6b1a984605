package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one observable moment of a wash cycle.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	CycleID   string    `json:"cycle_id,omitempty"`

	// Step is set on step events, e.g. "pump.pour".
	Step string `json:"step,omitempty"`

	Message string                 `json:"message"`
	Level   string                 `json:"level"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

const (
	EventTypeCycleStarted   = "cycle.started"
	EventTypeCycleCompleted = "cycle.completed"
	EventTypeCycleFailed    = "cycle.failed"
	EventTypeStepCompleted  = "step.completed"
	EventTypeStepFailed     = "step.failed"
)

const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

var eventLevelRank = map[string]int{
	EventLevelInfo:    0,
	EventLevelWarning: 1,
	EventLevelError:   2,
}

var errPublisherStopped = errors.New("event publisher stopped")

// EventSubscriber receives events. It must not block for long in sync mode,
// since it runs inside the wash cycle.
type EventSubscriber func(event Event)

// EventFilter reports whether an event should be delivered.
type EventFilter func(event Event) bool

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// EventPublisher fans cycle events out to subscribers, either inline or
// from a single background goroutine that preserves publish order.
type EventPublisher struct {
	config EventsConfig

	mu          sync.RWMutex
	subscribers []subscriberEntry
	filters     []EventFilter

	queue    chan Event
	stop     chan struct{}
	stopOnce sync.Once
	drained  chan struct{}
}

// NewEventPublisher returns a publisher; a disabled config yields one that drops everything.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{config: cfg}
	if !cfg.Enabled {
		return ep, nil
	}
	if cfg.MaxBatchSize <= 0 {
		ep.config.MaxBatchSize = 1
	}
	ep.stop = make(chan struct{})

	if cfg.EnableAsync {
		if cfg.BufferSize <= 0 {
			return nil, fmt.Errorf("async events need a positive buffer size, got %d", cfg.BufferSize)
		}
		ep.queue = make(chan Event, cfg.BufferSize)
		ep.drained = make(chan struct{})
		go ep.run()
	}
	return ep, nil
}

// Publish stamps the event and hands it to matching subscribers.
// Events rejected by a global filter are dropped silently.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if !ep.accepts(event) {
		return nil
	}

	if ep.queue == nil {
		ep.deliver(event)
		return nil
	}

	select {
	case <-ep.stop:
		return errPublisherStopped
	default:
	}
	select {
	case ep.queue <- event:
		return nil
	default:
		return fmt.Errorf("event queue full, dropped %s", event.Type)
	}
}

func (ep *EventPublisher) accepts(event Event) bool {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, keep := range ep.filters {
		if !keep(event) {
			return false
		}
	}
	return true
}

func cycleEvent(typ, level, cycleID, msg string, data map[string]interface{}) Event {
	return Event{Type: typ, Level: level, CycleID: cycleID, Message: msg, Data: data}
}

func (ep *EventPublisher) PublishCycleStarted(cycleID, program string) error {
	return ep.Publish(cycleEvent(EventTypeCycleStarted, EventLevelInfo, cycleID,
		fmt.Sprintf("Wash cycle %s started on program %s", cycleID, program),
		map[string]interface{}{"program": program}))
}

func (ep *EventPublisher) PublishCycleCompleted(cycleID, status string, runMinutes int) error {
	return ep.Publish(cycleEvent(EventTypeCycleCompleted, EventLevelInfo, cycleID,
		fmt.Sprintf("Wash cycle %s finished: %s, %d minutes", cycleID, status, runMinutes),
		map[string]interface{}{"status": status, "run_minutes": runMinutes}))
}

// PublishCycleFailed reports a terminal failure. reason is the device error, if any.
func (ep *EventPublisher) PublishCycleFailed(cycleID, status, reason string) error {
	msg := fmt.Sprintf("Wash cycle %s stopped: %s", cycleID, status)
	if reason != "" {
		msg += ": " + reason
	}
	return ep.Publish(cycleEvent(EventTypeCycleFailed, EventLevelError, cycleID, msg,
		map[string]interface{}{"status": status, "reason": reason}))
}

func (ep *EventPublisher) PublishStepCompleted(cycleID, step string, duration time.Duration) error {
	e := cycleEvent(EventTypeStepCompleted, EventLevelInfo, cycleID, "Step "+step+" done",
		map[string]interface{}{"duration": duration.Seconds()})
	e.Step = step
	return ep.Publish(e)
}

func (ep *EventPublisher) PublishStepFailed(cycleID, step, reason string) error {
	e := cycleEvent(EventTypeStepFailed, EventLevelError, cycleID, "Step "+step+" failed: "+reason,
		map[string]interface{}{"reason": reason})
	e.Step = step
	return ep.Publish(e)
}

// Subscribe registers a subscriber. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
}

// AddFilter registers a filter applied before any subscriber sees the event.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.filters = append(ep.filters, filter)
}

// run delivers queued events until stop, then drains what is left.
func (ep *EventPublisher) run() {
	defer close(ep.drained)

	for {
		select {
		case event := <-ep.queue:
			ep.deliver(event)
			for n := 1; n < ep.config.MaxBatchSize && len(ep.queue) > 0; n++ {
				ep.deliver(<-ep.queue)
			}
		case <-ep.stop:
			for {
				select {
				case event := <-ep.queue:
					ep.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter == nil || entry.filter(event) {
			entry.subscriber(event)
		}
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}
	ep.stopOnce.Do(func() { close(ep.stop) })

	if ep.drained == nil {
		return nil
	}
	select {
	case <-ep.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

// FilterByLevel keeps events at minLevel or more severe.
func FilterByLevel(minLevel string) EventFilter {
	floor := eventLevelRank[minLevel]
	return func(event Event) bool {
		return eventLevelRank[event.Level] >= floor
	}
}

// FilterByType keeps events whose type is one of types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(event Event) bool {
		_, ok := set[event.Type]
		return ok
	}
}

// FilterByCycleID keeps events of a single cycle.
func FilterByCycleID(cycleID string) EventFilter {
	return func(event Event) bool {
		return event.CycleID == cycleID
	}
}
