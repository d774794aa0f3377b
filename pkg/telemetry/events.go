package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notification about something that happened to a resource or
// to the process managing resources.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Resource is the resource name, if applicable.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]any `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeResourceDirty      = "resource.dirty"
	EventTypeResourceRegistered = "resource.registered"
	EventTypeConfigReloaded     = "config.reloaded"
	EventTypeConfigReloadFailed = "config.reload_failed"
	EventTypeAccessDenied       = "authz.denied"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles published events.
type EventSubscriber func(event Event)

// EventFilter reports whether an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. Synchronous publishers
// deliver on the caller's goroutine in subscription order.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	mu          sync.RWMutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep
}

// Publish delivers event to all subscribers whose filter accepts it.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if ep.buffer == nil {
		ep.deliver(event)
		return nil
	}

	select {
	case ep.buffer <- event:
		return nil
	case <-ep.ctx.Done():
		return fmt.Errorf("event publisher stopped")
	default:
		return fmt.Errorf("event buffer full, event %s dropped", event.Type)
	}
}

// PublishResourceDirty publishes a resource.dirty event.
func (ep *EventPublisher) PublishResourceDirty(resource string, at time.Time) error {
	return ep.Publish(Event{
		Type:      EventTypeResourceDirty,
		Resource:  resource,
		Timestamp: at,
		Message:   fmt.Sprintf("resource %s changed", resource),
	})
}

// PublishResourceRegistered publishes a resource.registered event.
func (ep *EventPublisher) PublishResourceRegistered(resource, path string) error {
	return ep.Publish(Event{
		Type:     EventTypeResourceRegistered,
		Resource: resource,
		Message:  fmt.Sprintf("resource %s registered", resource),
		Data:     map[string]any{"path": path},
	})
}

// PublishConfigReloaded publishes the outcome of a definitions reload.
func (ep *EventPublisher) PublishConfigReloaded(source string, count int, err error) error {
	if err != nil {
		return ep.Publish(Event{
			Type:    EventTypeConfigReloadFailed,
			Level:   EventLevelError,
			Message: fmt.Sprintf("reload of %s failed: %v", source, err),
			Data:    map[string]any{"source": source},
		})
	}
	return ep.Publish(Event{
		Type:    EventTypeConfigReloaded,
		Message: fmt.Sprintf("reloaded %d resources from %s", count, source),
		Data:    map[string]any{"source": source, "count": count},
	})
}

// PublishAccessDenied publishes an authz.denied event.
func (ep *EventPublisher) PublishAccessDenied(user, action, subject string) error {
	return ep.Publish(Event{
		Type:     EventTypeAccessDenied,
		Level:    EventLevelWarning,
		Resource: subject,
		Message:  fmt.Sprintf("%s may not %s %s", user, action, subject),
		Data:     map[string]any{"user": user, "action": action},
	})
}

// DirtyListener returns a function suitable as a resource listener that
// publishes a resource.dirty event for resource on every notification.
func (ep *EventPublisher) DirtyListener(resource string) func(time.Time) {
	return func(at time.Time) {
		_ = ep.PublishResourceDirty(resource, at)
	}
}

// Subscribe registers subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliver(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
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
	subs := make([]subscriberEntry, len(ep.subscribers))
	copy(subs, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range subs {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after draining buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType accepts only events of the given types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event Event) bool {
		return set[event.Type]
	}
}

// FilterByResource accepts only events about resource.
func FilterByResource(resource string) EventFilter {
	return func(event Event) bool {
		return event.Resource == resource
	}
}
