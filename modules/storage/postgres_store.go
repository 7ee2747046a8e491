package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on start. Messages carry a bigserial so history reads can break
// created_at ties by insertion order.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_online     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	name       TEXT,
	is_group   BOOLEAN NOT NULL DEFAULT FALSE,
	created_by TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversation_participants (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL REFERENCES users(id),
	joined_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (conversation_id, user_id)
);

CREATE TABLE IF NOT EXISTS groups (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_by  TEXT NOT NULL REFERENCES users(id),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id  TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL REFERENCES users(id),
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	role      TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'member')),
	PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq             BIGSERIAL UNIQUE,
	id              TEXT PRIMARY KEY,
	conversation_id TEXT REFERENCES conversations(id) ON DELETE CASCADE,
	group_id        TEXT REFERENCES groups(id) ON DELETE CASCADE,
	sender_id       TEXT NOT NULL REFERENCES users(id),
	message_type    TEXT NOT NULL DEFAULT 'text' CHECK (message_type IN ('text', 'image')),
	content         TEXT NOT NULL DEFAULT '',
	image_url       TEXT,
	image_name      TEXT,
	image_size      BIGINT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK ((conversation_id IS NULL) <> (group_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants (user_id);
CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members (user_id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at, seq);
CREATE INDEX IF NOT EXISTS idx_messages_group ON messages (group_id, created_at, seq);
`

const (
	userColumns    = `id, username, email, password_hash, is_online, created_at`
	messageColumns = `id, conversation_id, group_id, sender_id, message_type, content, image_url, image_name, image_size, created_at`
)

// PostgresStore implements chat.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ chat.Store = (*PostgresStore)(nil)

// OpenPostgres connects to databaseURL, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// isPgDuplicateKeyError checks if error is a PostgreSQL unique violation.
func isPgDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func scanUser(row pgx.Row) (*chat.User, error) {
	var u chat.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsOnline, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]chat.User, error) {
	defer rows.Close()
	users := []chat.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CreateUser inserts a user. A duplicate email is a conflict.
func (s *PostgresStore) CreateUser(ctx context.Context, user *chat.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.IsOnline, user.CreatedAt)
	if err != nil {
		if isPgDuplicateKeyError(err) {
			return chat.Conflict("User already exists")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByID retrieves a user by ID.
func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (*chat.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.NotFound("User not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// FindUserByEmail retrieves a user by email.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*chat.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.NotFound("User not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// FindUsersByEmails retrieves the users whose email is in emails.
func (s *PostgresStore) FindUsersByEmails(ctx context.Context, emails []string) ([]chat.User, error) {
	if len(emails) == 0 {
		return []chat.User{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE email = ANY($1)`, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	return collectUsers(rows)
}

// FindUsersByIDs retrieves the users whose id is in ids.
func (s *PostgresStore) FindUsersByIDs(ctx context.Context, ids []string) ([]chat.User, error) {
	if len(ids) == 0 {
		return []chat.User{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	return collectUsers(rows)
}

// ListUsers returns every user ordered by username.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]chat.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return collectUsers(rows)
}

// SetOnline writes the online flag of a user.
func (s *PostgresStore) SetOnline(ctx context.Context, userID string, online bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_online = $2 WHERE id = $1`, userID, online)
	if err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.NotFound("User not found")
	}
	return nil
}

// ResetPresence marks every user offline.
func (s *PostgresStore) ResetPresence(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `UPDATE users SET is_online = FALSE WHERE is_online`); err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	return nil
}

// CreateConversation inserts a conversation and its participants in one transaction.
func (s *PostgresStore) CreateConversation(ctx context.Context, conv *chat.Conversation, participantIDs []string) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO conversations (id, name, is_group, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			conv.ID, conv.Name, conv.IsGroup, conv.CreatedBy, conv.CreatedAt, conv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		for _, id := range participantIDs {
			_, err := tx.Exec(ctx,
				`INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES ($1, $2, $3)`,
				conv.ID, id, conv.CreatedAt)
			if err != nil {
				if isPgDuplicateKeyError(err) {
					return chat.Conflict("Duplicate conversation participant")
				}
				return fmt.Errorf("failed to add participants: %w", err)
			}
		}
		return nil
	})
}

// ListConversations returns the conversations userID participates in, most recently active first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_by, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = $1
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := []chat.Conversation{}
	for rows.Next() {
		var c chat.Conversation
		if err := rows.Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// TouchConversation bumps updated_at.
func (s *PostgresStore) TouchConversation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.NotFound("Conversation not found")
	}
	return nil
}

// CreateGroup inserts a group and its creator as admin in one transaction.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *chat.Group) error {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO groups (id, name, description, created_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
			group.ID, group.Name, group.Description, group.CreatedBy, group.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id, joined_at, role) VALUES ($1, $2, $3, $4)`,
			group.ID, group.CreatedBy, group.CreatedAt, chat.RoleAdmin)
		if err != nil {
			return fmt.Errorf("failed to add group admin: %w", err)
		}
		return nil
	})
}

// FindGroup retrieves a group by ID.
func (s *PostgresStore) FindGroup(ctx context.Context, id string) (*chat.Group, error) {
	var g chat.Group
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, created_by, created_at FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.NotFound("Group not found")
		}
		return nil, fmt.Errorf("failed to find group: %w", err)
	}
	return &g, nil
}

// ListGroups returns the groups userID belongs to, newest first.
func (s *PostgresStore) ListGroups(ctx context.Context, userID string) ([]chat.Group, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.name, g.description, g.created_by, g.created_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []chat.Group{}
	for rows.Next() {
		var g chat.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// AddGroupMember inserts a membership row. An existing row is a conflict.
func (s *PostgresStore) AddGroupMember(ctx context.Context, member *chat.GroupMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at, role) VALUES ($1, $2, $3, $4)`,
		member.GroupID, member.UserID, member.JoinedAt, member.Role)
	if err != nil {
		if isPgDuplicateKeyError(err) {
			return chat.Conflict("Already a member of this group")
		}
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// IsMember reports whether a participant or member row (room, userID) exists.
func (s *PostgresStore) IsMember(ctx context.Context, room chat.RoomRef, userID string) (bool, error) {
	var query string
	switch room.Kind {
	case chat.RoomConversation:
		query = `SELECT EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`
	case chat.RoomGroup:
		query = `SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`
	default:
		return false, chat.Validationf("unknown room kind %q", room.Kind)
	}
	var ok bool
	if err := s.pool.QueryRow(ctx, query, room.ID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

// AppendMessage inserts msg and attaches the sender's display info.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *chat.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var sender chat.Sender
		err := tx.QueryRow(ctx, `SELECT id, username, email FROM users WHERE id = $1`, msg.SenderID).
			Scan(&sender.ID, &sender.Username, &sender.Email)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return chat.NotFound("Sender not found")
			}
			return fmt.Errorf("failed to find sender: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO messages (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			msg.ID, msg.ConversationID, msg.GroupID, msg.SenderID, string(msg.MessageType), msg.Content,
			msg.ImageURL, msg.ImageName, msg.ImageSize, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		msg.Sender = &sender
		return nil
	})
}

// History returns the messages of a room in (created_at, seq) order.
func (s *PostgresStore) History(ctx context.Context, room chat.RoomRef, q chat.HistoryQuery) ([]chat.Message, error) {
	column, err := roomColumn(room)
	if err != nil {
		return nil, err
	}

	where := column + ` = $1`
	args := []any{room.ID}

	if q.BeforeID != "" {
		var (
			createdAt time.Time
			seq       int64
		)
		err := s.pool.QueryRow(ctx,
			`SELECT created_at, seq FROM messages WHERE id = $1 AND `+column+` = $2`, q.BeforeID, room.ID).
			Scan(&createdAt, &seq)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, chat.Validationf("unknown message cursor %q", q.BeforeID)
			}
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		}
		where += ` AND (created_at, seq) < ($2, $3)`
		args = append(args, createdAt, seq)
	}

	var query string
	if q.Limit > 0 {
		query = `SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `, seq FROM messages WHERE ` + where +
			fmt.Sprintf(` ORDER BY created_at DESC, seq DESC LIMIT %d`, q.Limit) + `
		) page ORDER BY created_at ASC, seq ASC`
	} else {
		query = `SELECT ` + messageColumns + ` FROM messages WHERE ` + where + ` ORDER BY created_at ASC, seq ASC`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var (
			m     chat.Message
			mtype string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.GroupID, &m.SenderID, &mtype, &m.Content,
			&m.ImageURL, &m.ImageName, &m.ImageSize, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.MessageType = chat.MessageType(mtype)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	if err := attachSenders(ctx, s, messages); err != nil {
		return nil, err
	}
	return messages, nil
}
