package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/chatbot/domain"
	"github.com/example/chatbot/logger"
	"github.com/example/chatbot/openai"
)

// TurnEventType distinguishes the client-visible events of a streamed turn.
type TurnEventType string

const (
	TurnEventToken TurnEventType = "token"
	TurnEventDone  TurnEventType = "done"
	TurnEventError TurnEventType = "error"
)

// TurnEvent is one client-visible event of a streamed turn: a text fragment,
// the terminal done signal, or a terminal error.
type TurnEvent struct {
	Type           TurnEventType
	Text           string
	ConversationID string
	Err            error
}

// StreamCompletion runs one streamed chat turn. Conversation resolution and
// user-turn persistence happen synchronously, so their errors surface before
// any event is produced. Fragments are then relayed on the returned channel
// in exactly upstream order while the full reply accumulates; after the
// terminal done event the accumulated text is persisted as a single
// assistant turn. On upstream error or caller cancellation no assistant turn
// is persisted. The channel is closed when the turn ends.
func (s *Service) StreamCompletion(ctx context.Context, userID string, req domain.ChatCompletionRequest) (<-chan TurnEvent, error) {
	t := newTurn()

	conv, err := s.resolveConversation(ctx, userID, req)
	if err != nil {
		t.fail()
		return nil, err
	}

	userMsg := newMessage(conv.ConversationID, domain.RoleUser, req.Message)
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		t.fail()
		return nil, fmt.Errorf("failed to persist user turn: %w", err)
	}

	prompt, err := s.buildContext(ctx, conv.ConversationID)
	if err != nil {
		t.fail()
		return nil, err
	}
	t.advance(triggerContextAssembled)

	t.advance(triggerInvoke)
	upstream, err := s.llm.Stream(ctx, prompt)
	if err != nil {
		t.fail()
		return nil, err
	}

	events := make(chan TurnEvent)
	go s.relayStream(ctx, t, conv, upstream, events)
	return events, nil
}

// relayStream forwards fragments to the caller in arrival order while
// accumulating the full reply, then persists one assistant turn once the
// client-visible stream has ended. Persistence is off the stream's critical
// path: the done event goes out first.
func (s *Service) relayStream(ctx context.Context, t *turn, conv *domain.Conversation, upstream <-chan openai.StreamEvent, events chan<- TurnEvent) {
	defer close(events)

	var reply strings.Builder
	for ev := range upstream {
		if ev.Err != nil {
			t.fail()
			logger.L.Error("chat stream failed upstream", "conversation_id", conv.ConversationID, "error", ev.Err)
			select {
			case events <- TurnEvent{Type: TurnEventError, ConversationID: conv.ConversationID, Err: ev.Err}:
			case <-ctx.Done():
			}
			return
		}

		reply.WriteString(ev.Delta)
		select {
		case events <- TurnEvent{Type: TurnEventToken, Text: ev.Delta, ConversationID: conv.ConversationID}:
		case <-ctx.Done():
			t.fail()
			return
		}
	}

	// Caller went away before the stream finished: generated text the client
	// never received in full is not persisted.
	if ctx.Err() != nil {
		t.fail()
		return
	}

	select {
	case events <- TurnEvent{Type: TurnEventDone, ConversationID: conv.ConversationID}:
	case <-ctx.Done():
		t.fail()
		return
	}
	t.advance(triggerUpstreamReplied)

	if reply.Len() == 0 {
		t.advance(triggerPersisted)
		return
	}

	// The done event is already delivered; a disconnect from here on must not
	// drop the reply.
	assistantMsg := newMessage(conv.ConversationID, domain.RoleAssistant, reply.String())
	if err := s.store.CreateMessage(context.WithoutCancel(ctx), assistantMsg); err != nil {
		t.fail()
		logger.L.Error("failed to persist assistant turn after stream",
			"conversation_id", conv.ConversationID, "error", err)
		return
	}
	t.advance(triggerPersisted)

	logger.L.Info("chat stream completed",
		"conversation_id", conv.ConversationID,
		"message_id", assistantMsg.MessageID,
		"content_length", reply.Len())
}
