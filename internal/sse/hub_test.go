package sse

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prepmind/prepmind-backend/internal/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubDeliversInOrderAndSurvivesReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	first := SSEMessage{Channel: channel, Event: SSEEventGenerationProgress, Data: map[string]any{"produced_count": 5}}
	second := SSEMessage{Channel: channel, Event: SSEEventGenerationProgress, Data: map[string]any{"produced_count": 10}}
	hub.Broadcast(first)
	hub.Broadcast(second)

	gotFirst := recvMessage(t, clientA.Outbound, time.Second)
	gotSecond := recvMessage(t, clientA.Outbound, time.Second)
	if gotFirst.Event != SSEEventGenerationProgress || gotSecond.Event != SSEEventGenerationProgress {
		t.Fatalf("unexpected events: %s then %s", gotFirst.Event, gotSecond.Event)
	}

	hub.CloseClient(clientA)
	select {
	case _, ok := <-clientA.Outbound:
		if ok {
			t.Fatalf("clientA outbound should be closed after disconnect")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for clientA channel close")
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventGenerationCompleted, Data: map[string]any{"produced_count": 12}})
	gotReconnect := recvMessage(t, clientB.Outbound, time.Second)
	if gotReconnect.Event != SSEEventGenerationCompleted {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventGenerationCompleted, gotReconnect.Event)
	}
}

func TestSSEHubScopesBroadcastToChannel(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))

	userA := uuid.New()
	userB := uuid.New()
	clientA := hub.NewSSEClient(userA)
	clientB := hub.NewSSEClient(userB)
	hub.AddChannel(clientA, userA.String())
	hub.AddChannel(clientB, userB.String())

	hub.Broadcast(SSEMessage{Channel: userA.String(), Event: SSEEventGenerationFailed, Data: map[string]any{"error": "boom"}})

	got := recvMessage(t, clientA.Outbound, time.Second)
	if got.Event != SSEEventGenerationFailed {
		t.Fatalf("unexpected event %s", got.Event)
	}
	select {
	case msg := <-clientB.Outbound:
		t.Fatalf("clientB should not receive another user's event, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHubDropsWhenOutboundFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	// Outbound buffers 10 messages; the rest is dropped instead of blocking.
	for i := 0; i < 25; i++ {
		hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventGenerationProgress, Data: map[string]any{"seq": i}})
	}
	if got := len(client.Outbound); got != 10 {
		t.Fatalf("expected a full buffer of 10, got %d", got)
	}
}
