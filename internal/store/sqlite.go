package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/streamcart/streamcart/internal/models"
)

// SQLiteStore handles SQLite database operations. Used as the
// development fallback when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/streamcart.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/streamcart.db"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'buyer',
		shop_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		user_id TEXT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		content TEXT NOT NULL,
		ts INTEGER NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS streams (
		id TEXT PRIMARY KEY,
		streamer_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'scheduled',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		ended_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_members_user ON conversation_members(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_undelivered ON messages(recipient_id, delivered, ts);
	CREATE INDEX IF NOT EXISTS idx_streams_status ON streams(status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser records or refreshes a user's display data.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *models.User) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, avatar, role, shop_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, avatar = excluded.avatar,
		    role = excluded.role, shop_name = excluded.shop_name,
		    updated_at = excluded.updated_at
	`, u.ID, u.Name, u.Avatar, u.Role, u.ShopName, now, now)
	return err
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, avatar, role, shop_name, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &u.Avatar, &u.Role, &u.ShopName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// GetConversation retrieves a conversation and its member set.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM conversation_members WHERE conversation_id = ? ORDER BY user_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		c.Members = append(c.Members, m)
	}
	return c, rows.Err()
}

// FindOrCreateConversation returns the direct conversation between two
// users, creating it if none exists. The ID is derived from the sorted
// member pair, so concurrent first messages from both sides converge
// on the same row.
func (s *SQLiteStore) FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	id := directConversationID(userA, userB)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, created_at) VALUES (?, ?)
	`, id, time.Now()); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversation_members (conversation_id, user_id) VALUES (?, ?), (?, ?)
	`, id, userA, id, userB); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

// AppendMessage persists a new message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, content, ts, delivered)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.RecipientID, msg.Content, msg.Timestamp, msg.Delivered)
	return err
}

// ConversationMessages returns a conversation's messages ordered by
// timestamp ascending.
func (s *SQLiteStore) ConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, recipient_id, content, ts, delivered
		FROM messages WHERE conversation_id = ? ORDER BY ts ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLMessages(rows)
}

// UndeliveredMessages returns the recipient's queued messages ordered
// by timestamp ascending.
func (s *SQLiteStore) UndeliveredMessages(ctx context.Context, recipientID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, recipient_id, content, ts, delivered
		FROM messages WHERE recipient_id = ? AND delivered = 0
		ORDER BY ts ASC, id ASC
	`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLMessages(rows)
}

// MarkDelivered flips the delivered flag for the given message IDs.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET delivered = 1 WHERE id IN (`+placeholders+`)
	`, args...)
	return err
}

func scanSQLMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var delivered int
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID,
			&m.Content, &m.Timestamp, &delivered); err != nil {
			return nil, err
		}
		m.Delivered = delivered == 1
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateStream creates a stream record in the scheduled state.
func (s *SQLiteStore) CreateStream(ctx context.Context, st *models.Stream) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Status == "" {
		st.Status = models.StreamScheduled
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO streams (id, streamer_id, title, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, st.ID, st.StreamerID, st.Title, st.Status, time.Now())
	return err
}

// GetStream retrieves a stream by ID.
func (s *SQLiteStore) GetStream(ctx context.Context, id string) (*models.Stream, error) {
	st := &models.Stream{}
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, streamer_id, title, status, created_at, started_at, ended_at
		FROM streams WHERE id = ?
	`, id).Scan(&st.ID, &st.StreamerID, &st.Title, &status, &st.CreatedAt, &st.StartedAt, &st.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	st.Status = models.StreamStatus(status)
	return st, nil
}

// SetStreamStatus transitions the durable stream status. Ending a
// stream is a status transition, never a delete, so history is kept.
func (s *SQLiteStore) SetStreamStatus(ctx context.Context, id string, status models.StreamStatus) error {
	var err error
	now := time.Now()
	switch status {
	case models.StreamLive:
		_, err = s.db.ExecContext(ctx, `
			UPDATE streams SET status = ?, started_at = ? WHERE id = ?
		`, status, now, id)
	case models.StreamEnded:
		_, err = s.db.ExecContext(ctx, `
			UPDATE streams SET status = ?, ended_at = ? WHERE id = ?
		`, status, now, id)
	default:
		_, err = s.db.ExecContext(ctx, `
			UPDATE streams SET status = ? WHERE id = ?
		`, status, id)
	}
	return err
}
