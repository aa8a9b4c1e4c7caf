package automation

import (
	"context"
	"sync"
	"time"

	"plutus/internal/logger"
	"plutus/pkg/errors"
	"plutus/pkg/metrics"
)

// Listener receives one emitted event. Panics are contained per listener.
type Listener func(ctx context.Context, evt Event)

// Emitter is the in-process event bus decoupling producing services from rule
// engines. It holds no persistence and delivers only within this process.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[string]map[int]Listener // keyed by entityType:event
	wildcards map[string]map[int]Listener // keyed by entityType
	logger    logger.Logger
}

func NewEmitter(log logger.Logger) *Emitter {
	return &Emitter{
		listeners: make(map[string]map[int]Listener),
		wildcards: make(map[string]map[int]Listener),
		logger:    log,
	}
}

// On registers a listener for one (entityType, event) pair and returns its
// unsubscribe func. Unsubscribing twice is a no-op.
func (e *Emitter) On(entityType, event string, fn Listener) func() {
	key := entityType + ":" + event
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners[key] == nil {
		e.listeners[key] = make(map[int]Listener)
	}
	id := e.nextID
	e.nextID++
	e.listeners[key][id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners[key], id)
	}
}

// OnAll registers a wildcard listener receiving every event for an entity
// type.
func (e *Emitter) OnAll(entityType string, fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wildcards[entityType] == nil {
		e.wildcards[entityType] = make(map[int]Listener)
	}
	id := e.nextID
	e.nextID++
	e.wildcards[entityType][id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.wildcards[entityType], id)
	}
}

// Emit fans the event out to every matching specific and wildcard listener
// concurrently and returns after all of them have settled. A panicking
// listener is recovered and logged; it never affects other listeners or the
// caller.
func (e *Emitter) Emit(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	e.mu.RLock()
	targets := make([]Listener, 0)
	for _, fn := range e.listeners[evt.EntityType+":"+evt.Event] {
		targets = append(targets, fn)
	}
	for _, fn := range e.wildcards[evt.EntityType] {
		targets = append(targets, fn)
	}
	e.mu.RUnlock()

	var wg sync.WaitGroup
	for _, fn := range targets {
		wg.Add(1)
		go func(listener Listener) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					metrics.AutomationListenerPanicsTotal.WithLabelValues(evt.EntityType, evt.Event).Inc()
					e.logger.ErrorwCtx(ctx, "Event listener panicked",
						"entity_type", evt.EntityType,
						"event", evt.Event,
						"error", errors.RecoverPanic(r),
					)
				}
			}()
			listener(ctx, evt)
		}(fn)
	}
	wg.Wait()
}
