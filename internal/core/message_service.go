package core

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gwi.com/chat-threads/internal/apperr"
	"gwi.com/chat-threads/internal/store"
)

type MessageStore interface {
	AppendMessage(ctx context.Context, chatID, role, content string) (*store.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]store.Message, error)
}

type MessageService struct {
	dbStore MessageStore
	logger  *zap.Logger
}

func NewMessageService(db MessageStore, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{dbStore: db, logger: logger.Named("messages")}
}

type addMessageInput struct {
	Role    string `validate:"required,oneof=user assistant system"`
	Content string `validate:"required"`
}

var addMessageRules = []rule{
	{"required", "role and content are required"},
	{"oneof", "role must be one of: user, assistant, system"},
}

// AddMessage appends to the chat and moves it to the top of its owner's list.
// Both writes commit together or not at all.
func (s *MessageService) AddMessage(ctx context.Context, chatID, role, content string) (*store.Message, error) {
	if err := checkInput(addMessageInput{Role: role, Content: content}, addMessageRules...); err != nil {
		return nil, err
	}
	id, ok := parseID(chatID)
	if !ok {
		return nil, errChatNotFound
	}

	msg, err := s.dbStore.AppendMessage(ctx, id, role, content)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), store.ViolationOf(err) == store.ViolationForeignKey:
			return nil, errChatNotFound
		case store.ViolationOf(err) == store.ViolationCheck:
			return nil, apperr.Validation(addMessageRules[1].message)
		}
		return nil, storeError(err)
	}
	s.logger.Debug("message appended",
		zap.String("chat_id", id),
		zap.String("message_id", msg.ID),
		zap.String("role", msg.Role))
	return msg, nil
}

// ListMessages returns the chat's messages oldest first. An unknown chat has
// no messages.
func (s *MessageService) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	id, ok := parseID(chatID)
	if !ok {
		return []store.Message{}, nil
	}

	messages, err := s.dbStore.ListMessages(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return messages, nil
}
