package core

import (
	"context"
	"sort"
	"strings"
	"sync"
)

const DefaultNotificationProjectorName = "notification-log"

type EventProjectorRegistry struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	order    []string
}

func NewEventProjectorRegistry() *EventProjectorRegistry {
	return &EventProjectorRegistry{
		handlers: make(map[string]EventHandler),
		order:    make([]string, 0),
	}
}

func (r *EventProjectorRegistry) Register(name string, handler EventHandler) {
	if r == nil || handler == nil {
		return
	}
	key := strings.TrimSpace(name)
	if key == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]EventHandler)
	}
	if _, exists := r.handlers[key]; !exists {
		r.order = append(r.order, key)
		sort.Strings(r.order)
	}
	r.handlers[key] = handler
}

func (r *EventProjectorRegistry) Handlers() []EventHandler {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventHandler, 0, len(r.order))
	for _, key := range r.order {
		handler := r.handlers[key]
		if handler != nil {
			out = append(out, handler)
		}
	}
	return out
}

// NotificationLogProjector writes every delivered event to the logger. It is
// the default sink when no notification transport is wired.
type NotificationLogProjector struct {
	logger Logger
}

func NewNotificationLogProjector(logger Logger) *NotificationLogProjector {
	return &NotificationLogProjector{logger: logger}
}

func (p *NotificationLogProjector) Handle(ctx context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	fields := cloneFields(event.Payload)
	for key, value := range event.Metadata {
		if strings.HasPrefix(key, "_") {
			continue
		}
		fields[key] = value
	}
	fields["event_id"] = event.ID
	fields["aggregate_id"] = event.AggregateID
	logWithLevel(ctx, p.logger, "info", "notification "+event.Name, fields)
	return nil
}

var (
	_ ProjectorRegistry = (*EventProjectorRegistry)(nil)
	_ EventHandler      = (*NotificationLogProjector)(nil)
)
