package core

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gwi.com/chat-threads/internal/apperr"
	"gwi.com/chat-threads/internal/store"
)

type ChatStore interface {
	CreateChat(ctx context.Context, userID, title string) (*store.Chat, error)
	ListChatsByUser(ctx context.Context, userID string) ([]store.Chat, error)
	GetChatWithMessages(ctx context.Context, id string) (*store.Chat, []store.Message, error)
	UpdateChatTitle(ctx context.Context, id, title string) (*store.Chat, error)
	DeleteChat(ctx context.Context, id string) error
}

type ChatService struct {
	dbStore ChatStore
	logger  *zap.Logger
}

func NewChatService(db ChatStore, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{dbStore: db, logger: logger.Named("chats")}
}

type chatOwnerInput struct {
	UserID string `validate:"required"`
}

type chatTitleInput struct {
	Title string `validate:"required"`
}

var errChatNotFound = apperr.NotFound("Chat not found")

// CreateChat opens a thread for an existing user. A blank title becomes "New Chat".
func (s *ChatService) CreateChat(ctx context.Context, userID, title string) (*store.Chat, error) {
	if err := checkInput(chatOwnerInput{UserID: userID}, rule{"required", "user_id is required"}); err != nil {
		return nil, err
	}
	ownerID, ok := parseID(userID)
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	if strings.TrimSpace(title) == "" {
		title = store.DefaultChatTitle
	}

	chat, err := s.dbStore.CreateChat(ctx, ownerID, title)
	if err != nil {
		if store.ViolationOf(err) == store.ViolationForeignKey {
			return nil, apperr.NotFound("User not found")
		}
		return nil, storeError(err)
	}
	s.logger.Info("chat created", zap.String("chat_id", chat.ID), zap.String("user_id", chat.UserID))
	return chat, nil
}

// ListChatsForUser returns the user's chats, most recently active first.
func (s *ChatService) ListChatsForUser(ctx context.Context, userID string) ([]store.Chat, error) {
	if err := checkInput(chatOwnerInput{UserID: userID}, rule{"required", "user_id query parameter is required"}); err != nil {
		return nil, err
	}
	ownerID, ok := parseID(userID)
	if !ok {
		return []store.Chat{}, nil
	}

	chats, err := s.dbStore.ListChatsByUser(ctx, ownerID)
	if err != nil {
		return nil, storeError(err)
	}
	return chats, nil
}

func (s *ChatService) GetChatWithMessages(ctx context.Context, id string) (*store.Chat, []store.Message, error) {
	chatID, ok := parseID(id)
	if !ok {
		return nil, nil, errChatNotFound
	}

	chat, messages, err := s.dbStore.GetChatWithMessages(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errChatNotFound
		}
		return nil, nil, storeError(err)
	}
	return chat, messages, nil
}

// UpdateChatTitle renames the chat. Activity ordering is not affected.
func (s *ChatService) UpdateChatTitle(ctx context.Context, id, title string) (*store.Chat, error) {
	if err := checkInput(chatTitleInput{Title: title}, rule{"required", "title is required"}); err != nil {
		return nil, err
	}
	chatID, ok := parseID(id)
	if !ok {
		return nil, errChatNotFound
	}

	chat, err := s.dbStore.UpdateChatTitle(ctx, chatID, title)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errChatNotFound
		}
		return nil, storeError(err)
	}
	return chat, nil
}

// DeleteChat removes the chat together with all of its messages and returns
// the deleted id.
func (s *ChatService) DeleteChat(ctx context.Context, id string) (string, error) {
	chatID, ok := parseID(id)
	if !ok {
		return "", errChatNotFound
	}

	if err := s.dbStore.DeleteChat(ctx, chatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", errChatNotFound
		}
		return "", storeError(err)
	}
	s.logger.Info("chat deleted", zap.String("chat_id", chatID))
	return chatID, nil
}
