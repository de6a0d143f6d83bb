package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/streamcart/streamcart/internal/metrics"
	"github.com/streamcart/streamcart/internal/models"
)

func observeStore(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations applies the schema. Idempotent.
func RunMigrations(ctx context.Context, databaseURL string) error {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'buyer',
		shop_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
		ts BIGINT NOT NULL,
		delivered BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS streams (
		id TEXT PRIMARY KEY,
		streamer_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'scheduled',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_members_user ON conversation_members(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_undelivered ON messages(recipient_id, ts) WHERE NOT delivered;
	CREATE INDEX IF NOT EXISTS idx_streams_status ON streams(status);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertUser records or refreshes a user's display data.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, avatar, role, shop_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, avatar = EXCLUDED.avatar,
		    role = EXCLUDED.role, shop_name = EXCLUDED.shop_name,
		    updated_at = NOW()
	`, u.ID, u.Name, u.Avatar, u.Role, u.ShopName)
	return err
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, avatar, role, shop_name, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Avatar, &u.Role, &u.ShopName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// GetConversation retrieves a conversation and its member set.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM conversation_members WHERE conversation_id = $1 ORDER BY user_id
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
func (s *PostgresStore) FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	id := directConversationID(userA, userB)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO conversations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING
	`, id); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2), ($1, $3)
		ON CONFLICT DO NOTHING
	`, id, userA, userB); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

// AppendMessage persists a new message. ID and timestamp are assigned
// here if unset; the ULID keeps IDs sortable by creation time.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	defer observeStore("append_message", time.Now())
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, content, ts, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.RecipientID, msg.Content, msg.Timestamp, msg.Delivered)
	return err
}

// ConversationMessages returns a conversation's messages ordered by
// timestamp ascending.
func (s *PostgresStore) ConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, recipient_id, content, ts, delivered
		FROM messages WHERE conversation_id = $1 ORDER BY ts ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// UndeliveredMessages returns the recipient's queued messages ordered
// by timestamp ascending.
func (s *PostgresStore) UndeliveredMessages(ctx context.Context, recipientID string) ([]models.Message, error) {
	defer observeStore("undelivered_messages", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, recipient_id, content, ts, delivered
		FROM messages WHERE recipient_id = $1 AND NOT delivered
		ORDER BY ts ASC, id ASC
	`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkDelivered flips the delivered flag for the given message IDs.
func (s *PostgresStore) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	defer observeStore("mark_delivered", time.Now())
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET delivered = TRUE WHERE id = ANY($1)
	`, ids)
	return err
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID,
			&m.Content, &m.Timestamp, &m.Delivered); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateStream creates a stream record in the scheduled state.
func (s *PostgresStore) CreateStream(ctx context.Context, st *models.Stream) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Status == "" {
		st.Status = models.StreamScheduled
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO streams (id, streamer_id, title, status)
		VALUES ($1, $2, $3, $4)
	`, st.ID, st.StreamerID, st.Title, st.Status)
	return err
}

// GetStream retrieves a stream by ID.
func (s *PostgresStore) GetStream(ctx context.Context, id string) (*models.Stream, error) {
	st := &models.Stream{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, streamer_id, title, status, created_at, started_at, ended_at
		FROM streams WHERE id = $1
	`, id).Scan(&st.ID, &st.StreamerID, &st.Title, &st.Status, &st.CreatedAt, &st.StartedAt, &st.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return st, nil
}

// SetStreamStatus transitions the durable stream status, stamping
// started_at/ended_at as appropriate. Streams are never deleted;
// ending a stream is a status transition so history is retained.
func (s *PostgresStore) SetStreamStatus(ctx context.Context, id string, status models.StreamStatus) error {
	var err error
	switch status {
	case models.StreamLive:
		_, err = s.pool.Exec(ctx, `
			UPDATE streams SET status = $2, started_at = NOW() WHERE id = $1
		`, id, status)
	case models.StreamEnded:
		_, err = s.pool.Exec(ctx, `
			UPDATE streams SET status = $2, ended_at = NOW() WHERE id = $1
		`, id, status)
	default:
		_, err = s.pool.Exec(ctx, `
			UPDATE streams SET status = $2 WHERE id = $1
		`, id, status)
	}
	return err
}
