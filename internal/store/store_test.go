package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by one millisecond on every reading so that ordering by
// timestamp is deterministic.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func testOptions() Options {
	pool := DefaultPoolConfig()
	pool.ConnectRetry = 0
	return Options{Pool: pool, Clock: newStepClock().Now}
}

func newSQLiteTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chats.db"), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newPostgresTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteTestStore)
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, newPostgresTestStore)
}

func uniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func createUser(t *testing.T, s *SQLStore) *User {
	t.Helper()
	name := uniqueName("user")
	u, err := s.CreateUser(context.Background(), name, name+"@x.com")
	require.NoError(t, err)
	return u
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) *SQLStore) {
	ctx := context.Background()

	t.Run("user round trip", func(t *testing.T) {
		s := newStore(t)
		created := createUser(t, s)

		got, err := s.GetUser(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Username, got.Username)
		assert.Equal(t, created.Email, got.Email)
		assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

		_, err = s.GetUser(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate username or email is a unique violation", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s)

		_, err := s.CreateUser(ctx, u.Username, uniqueName("other")+"@x.com")
		assert.Equal(t, ViolationUnique, ViolationOf(err))

		_, err = s.CreateUser(ctx, uniqueName("other"), u.Email)
		assert.Equal(t, ViolationUnique, ViolationOf(err))
	})

	t.Run("chat for unknown user is a foreign key violation", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateChat(ctx, uuid.NewString(), DefaultChatTitle)
		assert.Equal(t, ViolationForeignKey, ViolationOf(err))
	})

	t.Run("appending a message resurfaces the chat", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s)
		oldest, err := s.CreateChat(ctx, u.ID, "first")
		require.NoError(t, err)
		newest, err := s.CreateChat(ctx, u.ID, "second")
		require.NoError(t, err)

		chats, err := s.ListChatsByUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, newest.ID, chats[0].ID)

		msg, err := s.AppendMessage(ctx, oldest.ID, RoleUser, "hi")
		require.NoError(t, err)

		chats, err = s.ListChatsByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, oldest.ID, chats[0].ID)
		assert.True(t, chats[0].UpdatedAt.Equal(msg.CreatedAt))
		assert.True(t, chats[0].CreatedAt.Equal(oldest.CreatedAt))
	})

	t.Run("messages come back in insertion order", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s)
		chat, err := s.CreateChat(ctx, u.ID, DefaultChatTitle)
		require.NoError(t, err)

		contents := []string{"one", "two", "three", "four"}
		roles := []string{RoleSystem, RoleUser, RoleAssistant, RoleUser}
		for i := range contents {
			_, err := s.AppendMessage(ctx, chat.ID, roles[i], contents[i])
			require.NoError(t, err)
		}

		got, messages, err := s.GetChatWithMessages(ctx, chat.ID)
		require.NoError(t, err)
		assert.Equal(t, chat.ID, got.ID)
		require.Len(t, messages, len(contents))
		for i, m := range messages {
			assert.Equal(t, contents[i], m.Content)
			assert.Equal(t, roles[i], m.Role)
		}
	})

	t.Run("append to unknown chat writes nothing", func(t *testing.T) {
		s := newStore(t)
		missing := uuid.NewString()

		_, err := s.AppendMessage(ctx, missing, RoleUser, "hi")
		assert.ErrorIs(t, err, ErrNotFound)

		messages, err := s.ListMessages(ctx, missing)
		require.NoError(t, err)
		assert.Empty(t, messages)
		assert.NotNil(t, messages)
	})

	t.Run("rejected insert leaves the chat untouched", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s)
		chat, err := s.CreateChat(ctx, u.ID, DefaultChatTitle)
		require.NoError(t, err)

		_, err = s.AppendMessage(ctx, chat.ID, "tool", "x")
		assert.Equal(t, ViolationCheck, ViolationOf(err))

		after, err := s.GetChat(ctx, chat.ID)
		require.NoError(t, err)
		assert.True(t, chat.UpdatedAt.Equal(after.UpdatedAt))
	})

	t.Run("title edit leaves updated_at alone", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s)
		chat, err := s.CreateChat(ctx, u.ID, DefaultChatTitle)
		require.NoError(t, err)

		updated, err := s.UpdateChatTitle(ctx, chat.ID, "Renamed")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Title)
		assert.True(t, chat.UpdatedAt.Equal(updated.UpdatedAt))

		_, err = s.UpdateChatTitle(ctx, uuid.NewString(), "Renamed")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete cascades to messages", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s)
		chat, err := s.CreateChat(ctx, u.ID, DefaultChatTitle)
		require.NoError(t, err)
		for _, content := range []string{"a", "b"} {
			_, err := s.AppendMessage(ctx, chat.ID, RoleUser, content)
			require.NoError(t, err)
		}

		require.NoError(t, s.DeleteChat(ctx, chat.ID))

		messages, err := s.ListMessages(ctx, chat.ID)
		require.NoError(t, err)
		assert.Empty(t, messages)

		_, err = s.GetChat(ctx, chat.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteChat(ctx, chat.ID), ErrNotFound)
	})

	t.Run("concurrent appends to different chats", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s)
		var chatIDs []string
		for i := 0; i < 4; i++ {
			chat, err := s.CreateChat(ctx, u.ID, DefaultChatTitle)
			require.NoError(t, err)
			chatIDs = append(chatIDs, chat.ID)
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(chatIDs)*5)
		for _, id := range chatIDs {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					if _, err := s.AppendMessage(ctx, id, RoleUser, "hello"); err != nil {
						errs <- err
					}
				}
			}(id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		for _, id := range chatIDs {
			messages, err := s.ListMessages(ctx, id)
			require.NoError(t, err)
			assert.Len(t, messages, 5)
		}
	})
}

func TestAcquireTimeoutIsUnavailable(t *testing.T) {
	opts := testOptions()
	opts.Pool.MaxConns = 1
	opts.Pool.AcquireTimeout = 50 * time.Millisecond
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chats.db"), opts)
	require.NoError(t, err)
	defer s.Close()

	held, err := s.db.Conn(context.Background())
	require.NoError(t, err)

	_, err = s.GetUser(context.Background(), uuid.NewString())
	assert.Equal(t, ViolationUnavailable, ViolationOf(err))

	require.NoError(t, held.Close())
	_, err = s.GetUser(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendRollsBackWhenTouchFails(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteTestStore(t)
	u := createUser(t, s)
	chat, err := s.CreateChat(ctx, u.ID, DefaultChatTitle)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `CREATE TRIGGER fail_touch BEFORE UPDATE OF updated_at ON chats
BEGIN SELECT RAISE(ABORT, 'touch failed'); END`)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, chat.ID, RoleUser, "lost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "touch failed")

	messages, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	after, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, chat.UpdatedAt.Equal(after.UpdatedAt))
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t,
		"UPDATE chats SET updated_at = $1 WHERE id = $2",
		rebindDollar("UPDATE chats SET updated_at = ? WHERE id = ?"))
	assert.Equal(t, "SELECT 1", rebindDollar("SELECT 1"))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"chats.db?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		sqliteDSN("chats.db"))
	assert.Equal(t,
		"file:chats.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		sqliteDSN("file:chats.db?cache=shared&_foreign_keys=on"))
}
