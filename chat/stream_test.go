package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/domain"
)

// drainEvents collects every event until the channel closes, guarding against
// a stuck relay with a timeout.
func drainEvents(t *testing.T, events <-chan TurnEvent) []TurnEvent {
	t.Helper()
	var out []TurnEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close, collected %d events", len(out))
		}
	}
}

func TestStreamCompletionHappyPath(t *testing.T) {
	llm := &fakeLLM{deltas: []string{"Hello", " World"}}
	svc, st := newTestService(t, llm, 10)

	events, err := svc.StreamCompletion(context.Background(), "u1", domain.ChatCompletionRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}

	got := drainEvents(t, events)
	if assert.Len(t, got, 3) {
		assert.Equal(t, TurnEventToken, got[0].Type)
		assert.Equal(t, "Hello", got[0].Text)
		assert.Equal(t, TurnEventToken, got[1].Type)
		assert.Equal(t, " World", got[1].Text)
		assert.Equal(t, TurnEventDone, got[2].Type)
		assert.NotEmpty(t, got[2].ConversationID)
	}

	// The relay persists before closing the channel, so the assistant turn is
	// visible once the drain completes.
	messages, err := st.GetMessages(context.Background(), got[0].ConversationID)
	assert.NoError(t, err)
	if assert.Len(t, messages, 2) {
		assert.Equal(t, domain.RoleUser, messages[0].Role)
		assert.Equal(t, domain.RoleAssistant, messages[1].Role)
		assert.Equal(t, "Hello World", messages[1].Content)
	}
}

func TestStreamCompletionUpstreamErrorMidStream(t *testing.T) {
	llm := &fakeLLM{deltas: []string{"partial"}, tailErr: errors.New("connection reset")}
	svc, st := newTestService(t, llm, 10)

	events, err := svc.StreamCompletion(context.Background(), "u1", domain.ChatCompletionRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}

	got := drainEvents(t, events)
	if assert.Len(t, got, 2) {
		assert.Equal(t, TurnEventToken, got[0].Type)
		assert.Equal(t, TurnEventError, got[1].Type)
		assert.Error(t, got[1].Err)
	}

	// Partial output is discarded; only the user turn survives.
	messages, err := st.GetMessages(context.Background(), got[0].ConversationID)
	assert.NoError(t, err)
	if assert.Len(t, messages, 1) {
		assert.Equal(t, domain.RoleUser, messages[0].Role)
	}
}

func TestStreamCompletionEmptyStream(t *testing.T) {
	llm := &fakeLLM{}
	svc, st := newTestService(t, llm, 10)

	events, err := svc.StreamCompletion(context.Background(), "u1", domain.ChatCompletionRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}

	got := drainEvents(t, events)
	if assert.Len(t, got, 1) {
		assert.Equal(t, TurnEventDone, got[0].Type)
	}

	messages, err := st.GetMessages(context.Background(), got[0].ConversationID)
	assert.NoError(t, err)
	if assert.Len(t, messages, 1) {
		assert.Equal(t, domain.RoleUser, messages[0].Role)
	}
}

func TestStreamCompletionValidationBeforeAnyEvent(t *testing.T) {
	llm := &fakeLLM{deltas: []string{"hi"}}
	svc, _ := newTestService(t, llm, 10)

	events, err := svc.StreamCompletion(context.Background(), "u1", domain.ChatCompletionRequest{Message: ""})
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	assert.Nil(t, events)
	assert.Equal(t, 0, llm.streamCalls)
}

func TestStreamCompletionClientDisconnect(t *testing.T) {
	llm := &fakeLLM{deltas: []string{"Hello", " World"}}
	svc, st := newTestService(t, llm, 10)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.StreamCompletion(ctx, "u1", domain.ChatCompletionRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}

	first := <-events
	assert.Equal(t, TurnEventToken, first.Type)
	cancel()

	got := drainEvents(t, events)
	for _, ev := range got {
		if ev.Type == TurnEventDone {
			t.Fatal("done event delivered after disconnect")
		}
	}

	// The channel is closed, so the relay has finished. Nothing the client
	// did not fully receive is persisted.
	messages, err := st.GetMessages(context.Background(), first.ConversationID)
	assert.NoError(t, err)
	for _, m := range messages {
		if m.Role == domain.RoleAssistant {
			t.Fatal("assistant turn persisted after disconnect")
		}
	}
}
