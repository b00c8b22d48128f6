package core

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gwi.com/chat-threads/internal/apperr"
	"gwi.com/chat-threads/internal/store"
)

type UserStore interface {
	CreateUser(ctx context.Context, username, email string) (*store.User, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
}

type UserService struct {
	dbStore UserStore
	logger  *zap.Logger
}

func NewUserService(db UserStore, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{dbStore: db, logger: logger.Named("users")}
}

type createUserInput struct {
	Username string `validate:"required"`
	Email    string `validate:"required"`
}

func (s *UserService) CreateUser(ctx context.Context, username, email string) (*store.User, error) {
	if err := checkInput(createUserInput{Username: username, Email: email},
		rule{"required", "username and email are required"}); err != nil {
		return nil, err
	}

	user, err := s.dbStore.CreateUser(ctx, username, email)
	if err != nil {
		if store.ViolationOf(err) == store.ViolationUnique {
			return nil, apperr.Conflict("Username or email already exists", err)
		}
		return nil, storeError(err)
	}
	s.logger.Info("user created", zap.String("user_id", user.ID))
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*store.User, error) {
	userID, ok := parseID(id)
	if !ok {
		return nil, apperr.NotFound("User not found")
	}

	user, err := s.dbStore.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, storeError(err)
	}
	return user, nil
}
