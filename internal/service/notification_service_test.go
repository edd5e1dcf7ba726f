package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-dispatch/internal/config"
	"github.com/spec-kit/ticket-dispatch/internal/events"
)

type recordingQueue struct {
	mu     sync.Mutex
	events []events.Event
	full   bool
}

func (q *recordingQueue) Enqueue(event events.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.events = append(q.events, event)
	return true
}

func publishAll(t *testing.T, dispatcher events.Dispatcher) {
	t.Helper()
	for _, typ := range []events.EventType{
		events.EventTicketAssigned,
		events.EventTicketAssignmentFailed,
		events.EventMissionAnalyzed,
		events.EventMissionAssignmentCompleted,
	} {
		require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: string(typ), Type: typ, MissionID: "m-1"}))
	}
}

func TestNotificationsForwardDispatchEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	queue := &recordingQueue{}
	NewNotificationService(dispatcher, nil, config.NotificationConfig{WebhookURL: "https://hooks.example.com/x"}, queue).RegisterHandlers()

	publishAll(t, dispatcher)

	types := make([]events.EventType, 0, len(queue.events))
	for _, e := range queue.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventTicketAssigned,
		events.EventTicketAssignmentFailed,
		events.EventMissionAssignmentCompleted,
	}, types)
}

func TestNotificationsWithoutWebhookURL(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	queue := &recordingQueue{}
	NewNotificationService(dispatcher, nil, config.NotificationConfig{}, queue).RegisterHandlers()

	publishAll(t, dispatcher)

	assert.Empty(t, queue.events)
}

func TestNotificationsFullQueueDoesNotFailPublish(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, nil, config.NotificationConfig{WebhookURL: "https://hooks.example.com/x"}, &recordingQueue{full: true}).RegisterHandlers()

	publishAll(t, dispatcher)
}
