package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/store"
)

// SqliteStore implements store.Store on a local SQLite file. Unlike the
// Postgres adapter there is no server clock, so timestamps are stamped
// client-side in UTC; rowid breaks ties between appends in the same tick.
type SqliteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*SqliteStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db)
}

// NewWithDB wires the adapter to an existing connection (used by the factory
// and by tests running against :memory:).
func NewWithDB(db *sql.DB) (*SqliteStore, error) {
	s := &SqliteStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying connection (local-only use case).
func (s *SqliteStore) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *SqliteStore) Close() error { return s.db.Close() }

// HealthPing reports backend connectivity.
func (s *SqliteStore) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SqliteStore) Users() store.Users                 { return &users{db: s.db} }
func (s *SqliteStore) Conversations() store.Conversations { return &conversations{db: s.db} }
func (s *SqliteStore) Messages() store.Messages           { return &messages{db: s.db} }

func (s *SqliteStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            user_id                TEXT PRIMARY KEY,
            email                  TEXT NOT NULL,
            name                   TEXT NOT NULL DEFAULT '',
            gender                 TEXT NOT NULL DEFAULT '',
            dark_mode              INTEGER NOT NULL DEFAULT 0,
            active_conversation_id TEXT,
            was_backgrounded       INTEGER NOT NULL DEFAULT 0,
            reloading              INTEGER NOT NULL DEFAULT 0,
            created_at             TIMESTAMP NOT NULL,
            last_opened_at         TIMESTAMP,
            last_background_at     TIMESTAMP,
            last_foreground_at     TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS conversations (
            user_id         TEXT NOT NULL,
            conversation_id TEXT NOT NULL,
            title           TEXT NOT NULL,
            started_at      TIMESTAMP NOT NULL,
            archived_at     TIMESTAMP,
            PRIMARY KEY (user_id, conversation_id)
        )`,
		`CREATE TABLE IF NOT EXISTS messages (
            user_id         TEXT NOT NULL,
            conversation_id TEXT NOT NULL,
            message_id      TEXT NOT NULL,
            role            TEXT NOT NULL,
            content         TEXT NOT NULL,
            created_at      TIMESTAMP NOT NULL,
            PRIMARY KEY (user_id, conversation_id, message_id)
        )`,
		`CREATE INDEX IF NOT EXISTS messages_by_time
            ON messages (user_id, conversation_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	now := time.Now().UTC()
	_, err := u.db.ExecContext(ctx, `
        INSERT INTO users (user_id, email, name, gender, dark_mode, created_at)
        VALUES (?,?,?,?,?,?)
    `, m.UserID, m.Email, m.Name, m.Gender, m.DarkMode, now)
	if err != nil {
		return nil, err
	}
	out := *m
	out.CreatedAt = now
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, email, name, gender, dark_mode, active_conversation_id,
               was_backgrounded, reloading, created_at,
               last_opened_at, last_background_at, last_foreground_at
        FROM users WHERE user_id=?
    `, userID)
	err := row.Scan(&out.UserID, &out.Email, &out.Name, &out.Gender, &out.DarkMode,
		&out.ActiveConversationID, &out.WasBackgrounded, &out.Reloading, &out.CreatedAt,
		&out.LastOpenedAt, &out.LastBackgroundAt, &out.LastForegroundAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *users) UpdateFields(ctx context.Context, userID string, patch model.UserPatch) error {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.DarkMode != nil {
		add("dark_mode", *patch.DarkMode)
	}
	if patch.ClearActiveConversation {
		sets = append(sets, "active_conversation_id=NULL")
	} else if patch.ActiveConversationID != nil {
		add("active_conversation_id", *patch.ActiveConversationID)
	}
	if patch.WasBackgrounded != nil {
		add("was_backgrounded", *patch.WasBackgrounded)
	}
	if patch.Reloading != nil {
		add("reloading", *patch.Reloading)
	}
	if patch.LastOpenedAt != nil {
		add("last_opened_at", patch.LastOpenedAt.UTC())
	}
	if patch.LastBackgroundAt != nil {
		add("last_background_at", patch.LastBackgroundAt.UTC())
	}
	if patch.LastForegroundAt != nil {
		add("last_foreground_at", patch.LastForegroundAt.UTC())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, userID)
	res, err := u.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE user_id=?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (u *users) Delete(ctx context.Context, userID string) error {
	res, err := u.db.ExecContext(ctx, `DELETE FROM users WHERE user_id=?`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Conversations ---

type conversations struct{ db *sql.DB }

func (c *conversations) Create(ctx context.Context, userID, title string) (*model.Conversation, error) {
	id := uuid.New().String()
	started := time.Now().UTC()
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO conversations (user_id, conversation_id, title, started_at)
        VALUES (?,?,?,?)
    `, userID, id, title, started)
	if err != nil {
		return nil, err
	}
	return &model.Conversation{
		ConversationID: id,
		UserID:         userID,
		Title:          title,
		StartedAt:      started,
	}, nil
}

func (c *conversations) GetByID(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	out := model.Conversation{UserID: userID, ConversationID: conversationID}
	row := c.db.QueryRowContext(ctx, `
        SELECT title, started_at, archived_at
        FROM conversations WHERE user_id=? AND conversation_id=?
    `, userID, conversationID)
	err := row.Scan(&out.Title, &out.StartedAt, &out.ArchivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *conversations) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT conversation_id, title, started_at, archived_at
        FROM conversations WHERE user_id=? ORDER BY started_at DESC, rowid DESC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Conversation
	for rows.Next() {
		cv := model.Conversation{UserID: userID}
		if err := rows.Scan(&cv.ConversationID, &cv.Title, &cv.StartedAt, &cv.ArchivedAt); err != nil {
			return nil, err
		}
		out = append(out, &cv)
	}
	return out, rows.Err()
}

func (c *conversations) UpdateFields(ctx context.Context, userID, conversationID string, patch model.ConversationPatch) error {
	var sets []string
	var args []interface{}
	if patch.Title != nil {
		sets = append(sets, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.ArchivedAt != nil {
		sets = append(sets, "archived_at=?")
		args = append(args, patch.ArchivedAt.UTC())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, userID, conversationID)
	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE conversations SET %s WHERE user_id=? AND conversation_id=?`,
			strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *conversations) Delete(ctx context.Context, userID, conversationID string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id=? AND conversation_id=?`,
		userID, conversationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Messages ---

type messages struct{ db *sql.DB }

func (m *messages) Append(ctx context.Context, userID, conversationID string, role model.Role, content string) (*model.Message, error) {
	id := uuid.New().String()
	created := time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `
        INSERT INTO messages (user_id, conversation_id, message_id, role, content, created_at)
        VALUES (?,?,?,?,?,?)
    `, userID, conversationID, id, string(role), content, created)
	if err != nil {
		return nil, err
	}
	return &model.Message{
		MessageID:      id,
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      created,
	}, nil
}

func (m *messages) List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error) {
	query := `SELECT message_id, role, content, created_at
              FROM messages WHERE user_id=? AND conversation_id=?
              ORDER BY created_at ASC, rowid ASC`
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", req.Limit)
	}
	rows, err := m.db.QueryContext(ctx, query, req.UserID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Message
	for rows.Next() {
		msg := model.Message{UserID: req.UserID, ConversationID: req.ConversationID}
		var role string
		if err := rows.Scan(&msg.MessageID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = model.Role(role)
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (m *messages) HasAny(ctx context.Context, userID, conversationID string) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE user_id=? AND conversation_id=? LIMIT 1`,
		userID, conversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *messages) DeleteBatch(ctx context.Context, userID, conversationID string, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive")
	}
	res, err := m.db.ExecContext(ctx, `
        DELETE FROM messages WHERE rowid IN (
            SELECT rowid FROM messages
            WHERE user_id=? AND conversation_id=?
            ORDER BY created_at ASC, rowid ASC LIMIT ?
        )
    `, userID, conversationID, batchSize)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
