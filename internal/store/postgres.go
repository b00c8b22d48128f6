package store

import (
	"context"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

const postgresSchema = `
    CREATE TABLE IF NOT EXISTS users (
        id UUID PRIMARY KEY,
        username TEXT NOT NULL UNIQUE,
        email TEXT NOT NULL UNIQUE,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chats (
        id UUID PRIMARY KEY,
        user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        title TEXT NOT NULL DEFAULT 'New Chat',
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_chats_user_updated ON chats (user_id, updated_at DESC);

    CREATE TABLE IF NOT EXISTS messages (
        id UUID PRIMARY KEY,
        seq BIGINT GENERATED ALWAYS AS IDENTITY,
        chat_id UUID NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
        content TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages (chat_id, created_at, seq);
    `

var postgresDialect = dialect{
	name:         "postgres",
	driverName:   "pgx",
	schema:       postgresSchema,
	rebind:       rebindDollar,
	classify:     classifyPostgres,
	prepareDSN:   func(dsn string) string { return dsn },
	messageOrder: "created_at ASC, seq ASC",
	rowLock:      " FOR UPDATE",
}

// NewPostgresStore connects to Postgres using a pgx connection string or URL.
func NewPostgresStore(ctx context.Context, dataSourceName string, opts Options) (*SQLStore, error) {
	return open(ctx, postgresDialect, dataSourceName, opts)
}

// rebindDollar rewrites ? placeholders into Postgres $n placeholders.
// Queries in this package never contain a literal question mark.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
