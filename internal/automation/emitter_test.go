package automation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"plutus/internal/logger"
)

func TestEmitterDeliversToSpecificAndWildcardListeners(t *testing.T) {
	e := NewEmitter(logger.NopLogger())

	var mu sync.Mutex
	var got []string

	e.On(EntityTransaction, EventCreated, func(ctx context.Context, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "specific")
	})
	e.OnAll(EntityTransaction, func(ctx context.Context, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "wildcard")
	})
	e.On(EntityAccount, EventCreated, func(ctx context.Context, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "other-entity")
	})

	e.Emit(context.Background(), Event{EntityType: EntityTransaction, Event: EventCreated})

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"specific", "wildcard"}, got)
}

func TestEmitterSetsTimestamp(t *testing.T) {
	e := NewEmitter(logger.NopLogger())

	var mu sync.Mutex
	stamped := false
	e.On(EntityPayee, EventUpdated, func(ctx context.Context, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		stamped = !evt.Timestamp.IsZero()
	})

	e.Emit(context.Background(), Event{EntityType: EntityPayee, Event: EventUpdated})

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, stamped)
}

func TestEmitterUnsubscribe(t *testing.T) {
	e := NewEmitter(logger.NopLogger())

	var mu sync.Mutex
	calls := 0
	unsubscribe := e.On(EntityTransaction, EventCreated, func(ctx context.Context, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	e.Emit(context.Background(), Event{EntityType: EntityTransaction, Event: EventCreated})
	unsubscribe()
	unsubscribe() // second call is a no-op
	e.Emit(context.Background(), Event{EntityType: EntityTransaction, Event: EventCreated})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestEmitterIsolatesPanickingListener(t *testing.T) {
	e := NewEmitter(logger.NopLogger())

	var mu sync.Mutex
	survived := false

	e.On(EntityTransaction, EventCreated, func(ctx context.Context, evt Event) {
		panic("bad listener")
	})
	e.On(EntityTransaction, EventCreated, func(ctx context.Context, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		survived = true
	})

	// Emit must return normally and the healthy listener's effect must be
	// observed once it does.
	e.Emit(context.Background(), Event{EntityType: EntityTransaction, Event: EventCreated})

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, survived)
}
