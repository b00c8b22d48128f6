package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gwi.com/chat-threads/internal/store"
)

type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type services struct {
	users    *UserService
	chats    *ChatService
	messages *MessageService
}

func newTestServices(t *testing.T) services {
	t.Helper()
	pool := store.DefaultPoolConfig()
	pool.ConnectRetry = 0
	clock := &tickingClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chats.db"),
		store.Options{Pool: pool, Clock: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return services{
		users:    NewUserService(db, nil),
		chats:    NewChatService(db, nil),
		messages: NewMessageService(db, nil),
	}
}

func (s services) mustUser(t *testing.T, name string) *store.User {
	t.Helper()
	u, err := s.users.CreateUser(context.Background(), name, name+"@example.com")
	require.NoError(t, err)
	return u
}

func (s services) mustChat(t *testing.T, userID, title string) *store.Chat {
	t.Helper()
	c, err := s.chats.CreateChat(context.Background(), userID, title)
	require.NoError(t, err)
	return c
}

// unavailableStore fails every call the way a store does when its pool is
// exhausted or the database is unreachable.
type unavailableStore struct{}

var errUnavailable = &store.Error{Violation: store.ViolationUnavailable, Err: context.DeadlineExceeded}

func (unavailableStore) CreateUser(context.Context, string, string) (*store.User, error) {
	return nil, errUnavailable
}

func (unavailableStore) GetUser(context.Context, string) (*store.User, error) {
	return nil, errUnavailable
}

func (unavailableStore) CreateChat(context.Context, string, string) (*store.Chat, error) {
	return nil, errUnavailable
}

func (unavailableStore) ListChatsByUser(context.Context, string) ([]store.Chat, error) {
	return nil, errUnavailable
}

func (unavailableStore) GetChatWithMessages(context.Context, string) (*store.Chat, []store.Message, error) {
	return nil, nil, errUnavailable
}

func (unavailableStore) UpdateChatTitle(context.Context, string, string) (*store.Chat, error) {
	return nil, errUnavailable
}

func (unavailableStore) DeleteChat(context.Context, string) error {
	return errUnavailable
}

func (unavailableStore) AppendMessage(context.Context, string, string, string) (*store.Message, error) {
	return nil, errUnavailable
}

func (unavailableStore) ListMessages(context.Context, string) ([]store.Message, error) {
	return nil, errUnavailable
}
