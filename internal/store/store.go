package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DBTX abstracts *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type dialect struct {
	name         string
	driverName   string
	schema       string
	rebind       func(string) string
	classify     classifier
	prepareDSN   func(string) string
	messageOrder string
	rowLock      string
}

type PoolConfig struct {
	MaxConns       int           // upper bound on simultaneous connections
	IdleTimeout    time.Duration // idle connections are closed after this long
	AcquireTimeout time.Duration // how long a call may wait for a free connection
	ConnectRetry   time.Duration // total time spent probing the store at startup
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:       20,
		IdleTimeout:    30 * time.Second,
		AcquireTimeout: 5 * time.Second,
		ConnectRetry:   15 * time.Second,
	}
}

type Options struct {
	Pool   PoolConfig
	Clock  func() time.Time
	Logger *zap.Logger
}

// SQLStore persists users, chats and messages in Postgres or SQLite.
type SQLStore struct {
	db             *sql.DB
	dialect        dialect
	acquireTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

func open(ctx context.Context, d dialect, dataSourceName string, opts Options) (*SQLStore, error) {
	if opts.Pool == (PoolConfig{}) {
		opts.Pool = DefaultPoolConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	db, err := sql.Open(d.driverName, d.prepareDSN(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(opts.Pool.MaxConns)
	db.SetMaxIdleConns(opts.Pool.MaxConns)
	db.SetConnMaxIdleTime(opts.Pool.IdleTimeout)

	clock := opts.Clock
	s := &SQLStore{
		db:             db,
		dialect:        d,
		acquireTimeout: opts.Pool.AcquireTimeout,
		// Postgres keeps microseconds; truncating keeps returned values equal to stored ones.
		now:    func() time.Time { return clock().UTC().Truncate(time.Microsecond) },
		logger: opts.Logger.With(zap.String("store", d.name)),
	}

	if err = s.waitReady(ctx, opts.Pool.ConnectRetry); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err = s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.logger.Info("database ready", zap.Int("max_conns", opts.Pool.MaxConns))
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// waitReady probes the store with exponential backoff until it answers or
// maxElapsed runs out.
func (s *SQLStore) waitReady(ctx context.Context, maxElapsed time.Duration) error {
	probe := func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
		defer cancel()
		return struct{}{}, s.db.PingContext(pingCtx)
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("database not reachable yet", zap.Error(err), zap.Duration("retry_in", next))
		}),
	}
	if maxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(maxElapsed))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}
	_, err := backoff.Retry(ctx, probe, opts...)
	return s.translate(err)
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.dialect.schema)
		return err
	})
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

func (s *SQLStore) translate(err error) error {
	return translate(s.dialect.classify, err)
}

// withConn runs fn on a single pooled connection. Waiting for the connection
// is bounded by the acquire timeout; the connection goes back to the pool on
// every return path.
func (s *SQLStore) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	conn, err := s.db.Conn(acquireCtx)
	cancel()
	if err != nil {
		return &Error{Violation: ViolationUnavailable, Err: fmt.Errorf("failed to acquire connection: %w", err)}
	}
	defer conn.Close()

	return s.translate(fn(conn))
}

// withTx executes fn inside a transaction on one pooled connection.
// Any error from fn rolls back every statement fn issued.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx DBTX) error) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("tx error: %w (rollback error: %v)", err, rbErr)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	return &u, nil
}

func scanChat(row rowScanner) (*Chat, error) {
	var c Chat
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return &c, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// User methods
func (s *SQLStore) CreateUser(ctx context.Context, username, email string) (*User, error) {
	now := s.now()
	user := &User{ID: uuid.NewString(), Username: username, Email: email, CreatedAt: now, UpdatedAt: now}

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			s.q("INSERT INTO users (id, username, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"),
			user.ID, user.Username, user.Email, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*User, error) {
	var user *User
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		row := conn.QueryRowContext(ctx, s.q("SELECT id, username, email, created_at, updated_at FROM users WHERE id = ?"), id)
		user, err = scanUser(row)
		return notFound(err)
	})
	return user, err
}

// Chat methods
func (s *SQLStore) CreateChat(ctx context.Context, userID, title string) (*Chat, error) {
	now := s.now()
	chat := &Chat{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			s.q("INSERT INTO chats (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"),
			chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// ListChatsByUser returns the user's chats, most recently active first.
func (s *SQLStore) ListChatsByUser(ctx context.Context, userID string) ([]Chat, error) {
	chats := make([]Chat, 0)
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx,
			s.q("SELECT id, user_id, title, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC, created_at DESC"),
			userID)
		if err != nil {
			return fmt.Errorf("failed to query chats: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			chat, err := scanChat(rows)
			if err != nil {
				return fmt.Errorf("failed to scan chat row: %w", err)
			}
			chats = append(chats, *chat)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *SQLStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	var chat *Chat
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		chat, err = s.getChat(ctx, conn, id)
		return err
	})
	return chat, err
}

// GetChatWithMessages loads the chat and its thread over one connection.
func (s *SQLStore) GetChatWithMessages(ctx context.Context, id string) (*Chat, []Message, error) {
	var (
		chat     *Chat
		messages []Message
	)
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		if chat, err = s.getChat(ctx, conn, id); err != nil {
			return err
		}
		messages, err = s.listMessages(ctx, conn, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return chat, messages, nil
}

// UpdateChatTitle changes the title only; updated_at tracks message activity.
func (s *SQLStore) UpdateChatTitle(ctx context.Context, id, title string) (*Chat, error) {
	var chat *Chat
	err := s.withTx(ctx, func(tx DBTX) error {
		res, err := tx.ExecContext(ctx, s.q("UPDATE chats SET title = ? WHERE id = ?"), title, id)
		if err != nil {
			return fmt.Errorf("failed to update chat title: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return ErrNotFound
		}
		chat, err = s.getChat(ctx, tx, id)
		return err
	})
	return chat, err
}

// DeleteChat removes the chat; its messages go with it through ON DELETE CASCADE.
func (s *SQLStore) DeleteChat(ctx context.Context, id string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, s.q("DELETE FROM chats WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLStore) getChat(ctx context.Context, q DBTX, id string) (*Chat, error) {
	row := q.QueryRowContext(ctx, s.q("SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = ?"), id)
	chat, err := scanChat(row)
	if err != nil {
		return nil, notFound(err)
	}
	return chat, nil
}

// Message methods

// AppendMessage inserts the message and moves the parent chat's updated_at
// to the message's created_at in one transaction. ErrNotFound is returned
// before any write when the chat does not exist.
func (s *SQLStore) AppendMessage(ctx context.Context, chatID, role, content string) (*Message, error) {
	msg := &Message{ID: uuid.NewString(), ChatID: chatID, Role: role, Content: content}

	err := s.withTx(ctx, func(tx DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, s.q("SELECT 1 FROM chats WHERE id = ?"+s.dialect.rowLock), chatID).Scan(&one)
		if err != nil {
			return notFound(err)
		}
		// Read the clock only once the chat is locked so that concurrent
		// appends commit in timestamp order.
		msg.CreatedAt = s.now()

		_, err = tx.ExecContext(ctx,
			s.q("INSERT INTO messages (id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)"),
			msg.ID, msg.ChatID, msg.Role, msg.Content, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		res, err := tx.ExecContext(ctx, s.q("UPDATE chats SET updated_at = ? WHERE id = ?"), msg.CreatedAt, chatID)
		if err != nil {
			return fmt.Errorf("failed to touch chat: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the chat's messages oldest first. An unknown chat
// yields an empty slice.
func (s *SQLStore) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var messages []Message
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		messages, err = s.listMessages(ctx, conn, chatID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *SQLStore) listMessages(ctx context.Context, q DBTX, chatID string) ([]Message, error) {
	rows, err := q.QueryContext(ctx,
		s.q("SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY "+s.dialect.messageOrder),
		chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
