package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies
// connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Users() store.Users                 { return &users{db: s.db} }
func (s *pgStore) Conversations() store.Conversations { return &conversations{db: s.db} }
func (s *pgStore) Messages() store.Messages           { return &messages{db: s.db} }

// HealthPing reports backend connectivity.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the users/conversations/messages tables when absent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS users (
        user_id                TEXT PRIMARY KEY,
        email                  TEXT NOT NULL,
        name                   TEXT NOT NULL DEFAULT '',
        gender                 TEXT NOT NULL DEFAULT '',
        dark_mode              BOOLEAN NOT NULL DEFAULT FALSE,
        active_conversation_id TEXT,
        was_backgrounded       BOOLEAN NOT NULL DEFAULT FALSE,
        reloading              BOOLEAN NOT NULL DEFAULT FALSE,
        created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
        last_opened_at         TIMESTAMPTZ,
        last_background_at     TIMESTAMPTZ,
        last_foreground_at     TIMESTAMPTZ
    )`,
	`CREATE TABLE IF NOT EXISTS conversations (
        user_id         TEXT NOT NULL,
        conversation_id TEXT NOT NULL,
        title           TEXT NOT NULL,
        started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
        archived_at     TIMESTAMPTZ,
        PRIMARY KEY (user_id, conversation_id)
    )`,
	`CREATE TABLE IF NOT EXISTS messages (
        user_id         TEXT NOT NULL,
        conversation_id TEXT NOT NULL,
        message_id      TEXT NOT NULL,
        role            TEXT NOT NULL,
        content         TEXT NOT NULL,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
        PRIMARY KEY (user_id, conversation_id, message_id)
    )`,
	`CREATE INDEX IF NOT EXISTS messages_by_time
        ON messages (user_id, conversation_id, created_at)`,
}

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	var created time.Time
	row := u.db.QueryRowContext(ctx, `
        INSERT INTO users (user_id, email, name, gender, dark_mode)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at
    `, m.UserID, m.Email, m.Name, m.Gender, m.DarkMode)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *m
	out.CreatedAt = created
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, email, name, gender, dark_mode, active_conversation_id,
               was_backgrounded, reloading, created_at,
               last_opened_at, last_background_at, last_foreground_at
        FROM users WHERE user_id=$1
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
	sets, args := userPatchClauses(patch)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE user_id=$%d`,
		strings.Join(sets, ", "), len(args))
	res, err := u.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func userPatchClauses(p model.UserPatch) ([]string, []interface{}) {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.DarkMode != nil {
		add("dark_mode", *p.DarkMode)
	}
	if p.ClearActiveConversation {
		sets = append(sets, "active_conversation_id=NULL")
	} else if p.ActiveConversationID != nil {
		add("active_conversation_id", *p.ActiveConversationID)
	}
	if p.WasBackgrounded != nil {
		add("was_backgrounded", *p.WasBackgrounded)
	}
	if p.Reloading != nil {
		add("reloading", *p.Reloading)
	}
	if p.LastOpenedAt != nil {
		add("last_opened_at", *p.LastOpenedAt)
	}
	if p.LastBackgroundAt != nil {
		add("last_background_at", *p.LastBackgroundAt)
	}
	if p.LastForegroundAt != nil {
		add("last_foreground_at", *p.LastForegroundAt)
	}
	return sets, args
}

func (u *users) Delete(ctx context.Context, userID string) error {
	res, err := u.db.ExecContext(ctx, `DELETE FROM users WHERE user_id=$1`, userID)
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
	var started time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO conversations (user_id, conversation_id, title)
        VALUES ($1,$2,$3)
        RETURNING started_at
    `, userID, id, title)
	if err := row.Scan(&started); err != nil {
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
        FROM conversations WHERE user_id=$1 AND conversation_id=$2
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
        FROM conversations WHERE user_id=$1 ORDER BY started_at DESC
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
		args = append(args, *patch.Title)
		sets = append(sets, fmt.Sprintf("title=$%d", len(args)))
	}
	if patch.ArchivedAt != nil {
		args = append(args, *patch.ArchivedAt)
		sets = append(sets, fmt.Sprintf("archived_at=$%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, userID, conversationID)
	query := fmt.Sprintf(`UPDATE conversations SET %s WHERE user_id=$%d AND conversation_id=$%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))
	res, err := c.db.ExecContext(ctx, query, args...)
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
		`DELETE FROM conversations WHERE user_id=$1 AND conversation_id=$2`,
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
	var created time.Time
	row := m.db.QueryRowContext(ctx, `
        INSERT INTO messages (user_id, conversation_id, message_id, role, content)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at
    `, userID, conversationID, id, string(role), content)
	if err := row.Scan(&created); err != nil {
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
              FROM messages WHERE user_id=$1 AND conversation_id=$2
              ORDER BY created_at ASC`
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
		`SELECT 1 FROM messages WHERE user_id=$1 AND conversation_id=$2 LIMIT 1`,
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
        DELETE FROM messages WHERE ctid IN (
            SELECT ctid FROM messages
            WHERE user_id=$1 AND conversation_id=$2
            ORDER BY created_at ASC LIMIT $3
        )
    `, userID, conversationID, batchSize)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
