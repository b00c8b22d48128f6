package store

import (
	"context"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const sqliteSchema = `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        username TEXT NOT NULL UNIQUE,
        email TEXT NOT NULL UNIQUE,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        title TEXT NOT NULL DEFAULT 'New Chat',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_chats_user_updated ON chats (user_id, updated_at DESC);

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        chat_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (chat_id) REFERENCES chats (id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages (chat_id, created_at);
    `

// sqliteParams are appended to the DSN unless the caller already set them.
// Foreign keys are off by default in SQLite and cascades depend on them.
var sqliteParams = []string{
	"_foreign_keys=on",
	"_busy_timeout=5000",
	"_txlock=immediate",
}

var sqliteDialect = dialect{
	name:       "sqlite",
	driverName: "sqlite3",
	schema:     sqliteSchema,
	rebind:     func(query string) string { return query },
	classify:   classifySQLite,
	prepareDSN: sqliteDSN,
	// rowid follows insertion order for equal timestamps
	messageOrder: "created_at ASC, rowid ASC",
	rowLock:      "",
}

// NewSQLiteStore opens (or creates) the SQLite database at dataSourceName.
func NewSQLiteStore(ctx context.Context, dataSourceName string, opts Options) (*SQLStore, error) {
	return open(ctx, sqliteDialect, dataSourceName, opts)
}

func sqliteDSN(dsn string) string {
	var missing []string
	for _, param := range sqliteParams {
		key := param[:strings.IndexByte(param, '=')]
		if !strings.Contains(dsn, key+"=") {
			missing = append(missing, param)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}
