package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/modai-platform/message-service/internal/apperr"
	"github.com/modai-platform/message-service/internal/model"
)

//go:embed migrations.sql
var migrations embed.FS

// PostgresConfig holds connection settings for the Postgres backend.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStore is the PostgreSQL implementation of Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and applies the embedded
// schema.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) initializeSchema() error {
	schema, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("executing migrations: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation row.
func (s *PostgresStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	query := `
		INSERT INTO conversations (id, teen_id, title, status, created_at, updated_at, last_message_at, message_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID, conv.TeenID, conv.Title, conv.Status,
		conv.CreatedAt, conv.UpdatedAt, nullableTime(conv.LastMessageAt),
		conv.MessageCount, meta,
	)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

// GetConversation fetches a conversation by id.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	query := `
		SELECT id, teen_id, title, status, created_at, updated_at, last_message_at, message_count, metadata
		FROM conversations
		WHERE id = $1`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("conversation")
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return conv, nil
}

// ListConversationsByTeen lists a teen's conversations, most recently
// active first.
func (s *PostgresStore) ListConversationsByTeen(ctx context.Context, teenID string, status *model.ConversationStatus, limit, offset int) ([]*model.Conversation, error) {
	query := `
		SELECT id, teen_id, title, status, created_at, updated_at, last_message_at, message_count, metadata
		FROM conversations
		WHERE teen_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, teenID, nullableStatus(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return convs, nil
}

// UpdateConversation replaces the mutable fields of a conversation row.
func (s *PostgresStore) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	query := `
		UPDATE conversations
		SET title = $2, status = $3, updated_at = $4, last_message_at = $5, message_count = $6, metadata = $7
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.Title, conv.Status, conv.UpdatedAt,
		nullableTime(conv.LastMessageAt), conv.MessageCount, meta,
	)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

// DeleteConversation hard deletes a conversation. Messages go with it
// via the FK cascade.
func (s *PostgresStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

// CountConversationsByTeen counts a teen's conversations.
func (s *PostgresStore) CountConversationsByTeen(ctx context.Context, teenID string, status *model.ConversationStatus) (int, error) {
	query := `
		SELECT count(*) FROM conversations
		WHERE teen_id = $1 AND ($2::text IS NULL OR status = $2)`

	var count int
	if err := s.db.QueryRowContext(ctx, query, teenID, nullableStatus(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return count, nil
}

// CreateMessage inserts a new message row.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	categories, flags, meta, err := marshalMessageJSON(msg)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, content, topic_tier, topic_categories, safety_flags, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content,
		nullableTier(msg.TopicTier), categories, flags, msg.CreatedAt, meta,
	)
	if err != nil {
		return fmt.Errorf("creating message: %w", err)
	}
	return nil
}

// GetMessage fetches a message by id.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, topic_tier, topic_categories, safety_flags, created_at, metadata
		FROM messages
		WHERE id = $1`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("message")
	}
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return msg, nil
}

// ListMessages lists messages in a conversation oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*model.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, topic_tier, topic_categories, safety_flags, created_at, metadata
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// UpdateMessage persists classification and safety-flag changes. Content
// is deliberately excluded from the SET list.
func (s *PostgresStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	categories, flags, meta, err := marshalMessageJSON(msg)
	if err != nil {
		return err
	}

	query := `
		UPDATE messages
		SET topic_tier = $2, topic_categories = $3, safety_flags = $4, metadata = $5
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		msg.ID, nullableTier(msg.TopicTier), categories, flags, meta,
	)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// CountMessages counts messages in a conversation.
func (s *PostgresStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// DeleteMessagesByConversation removes all messages of a conversation
// and returns how many were deleted.
func (s *PostgresStore) DeleteMessagesByConversation(ctx context.Context, conversationID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		conv          model.Conversation
		lastMessageAt sql.NullTime
		meta          []byte
	)

	err := row.Scan(
		&conv.ID, &conv.TeenID, &conv.Title, &conv.Status,
		&conv.CreatedAt, &conv.UpdatedAt, &lastMessageAt,
		&conv.MessageCount, &meta,
	)
	if err != nil {
		return nil, err
	}

	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		conv.LastMessageAt = &t
	}
	if err := json.Unmarshal(meta, &conv.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return &conv, nil
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		msg        model.Message
		tier       sql.NullString
		categories []byte
		flags      []byte
		meta       []byte
	)

	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
		&tier, &categories, &flags, &msg.CreatedAt, &meta,
	)
	if err != nil {
		return nil, err
	}

	if tier.Valid {
		t := model.TopicTier(tier.String)
		msg.TopicTier = &t
	}
	if err := json.Unmarshal(categories, &msg.TopicCategories); err != nil {
		return nil, fmt.Errorf("unmarshaling topic categories: %w", err)
	}
	if err := json.Unmarshal(flags, &msg.SafetyFlags); err != nil {
		return nil, fmt.Errorf("unmarshaling safety flags: %w", err)
	}
	if err := json.Unmarshal(meta, &msg.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return &msg, nil
}

func marshalMessageJSON(msg *model.Message) (categories, flags, meta []byte, err error) {
	if categories, err = json.Marshal(msg.TopicCategories); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling topic categories: %w", err)
	}
	if flags, err = json.Marshal(msg.SafetyFlags); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling safety flags: %w", err)
	}
	if meta, err = json.Marshal(msg.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return categories, flags, meta, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableTier(t *model.TopicTier) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func nullableStatus(s *model.ConversationStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
