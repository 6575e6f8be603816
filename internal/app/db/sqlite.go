package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

// SQLite is the database/sql Store on the pure-Go modernc driver.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database file at path and migrates it.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// one writer keeps SQLite from returning SQLITE_BUSY under concurrent sends
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := runMigrations(ctx, sqlDB, goose.DialectSQLite3, "migrations/sqlite"); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &SQLite{db: sqlDB}, nil
}

// Ping checks that the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// CreateUser inserts a new account.
func (s *SQLite) CreateUser(ctx context.Context, acc user.Account) (user.Account, error) {
	acc.CreatedAt = timestamp(acc.CreatedAt)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, avatar, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Username, acc.FullName, acc.Avatar, acc.PasswordHash, acc.CreatedAt.UnixNano(),
	)
	if IsUniqueViolation(err) {
		return user.Account{}, user.ErrUsernameTaken
	}
	if err != nil {
		return user.Account{}, fmt.Errorf("insert user: %w", err)
	}

	return acc, nil
}

// GetUserByID loads the public identity of a user.
func (s *SQLite) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, avatar FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.FullName, &u.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// GetAccountByUsername loads an account for authentication; usernames compare case-insensitively.
func (s *SQLite) GetAccountByUsername(ctx context.Context, username string) (user.Account, error) {
	var (
		acc       user.Account
		createdAt int64
		lastLogin sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, avatar, password_hash, created_at, last_login_at
		FROM users WHERE username = ?`, username,
	).Scan(&acc.ID, &acc.Username, &acc.FullName, &acc.Avatar, &acc.PasswordHash, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return user.Account{}, user.ErrNotFound
	}
	if err != nil {
		return user.Account{}, fmt.Errorf("select account: %w", err)
	}

	acc.CreatedAt = fromNanos(createdAt)
	if lastLogin.Valid {
		t := fromNanos(lastLogin.Int64)
		acc.LastLoginAt = &t
	}

	return acc, nil
}

// TouchLastLogin records a successful login.
func (s *SQLite) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`,
		timestamp(at).UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func collectUsers(rows *sql.Rows) ([]user.User, error) {
	defer rows.Close()

	users := []user.User{}
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Avatar); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SearchUsers matches query against username and full name. SQLite LIKE is case-insensitive for ASCII.
func (s *SQLite) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]user.User, error) {
	pattern := escapeLike(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, full_name, avatar
		FROM users
		WHERE (username LIKE ? ESCAPE '\' OR full_name LIKE ? ESCAPE '\') AND id <> ?
		ORDER BY username
		LIMIT ?`,
		pattern, pattern, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	users, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

// ListContacts returns conversation partners of userID, most recent conversation first.
func (s *SQLite) ListContacts(ctx context.Context, userID string) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.full_name, u.avatar
		FROM (
			SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS peer_id,
			       max(seq) AS last_seq
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
			GROUP BY peer_id
		) c
		JOIN users u ON u.id = c.peer_id
		ORDER BY c.last_seq DESC`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	users, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("scan contacts: %w", err)
	}
	return users, nil
}

// SaveMessage assigns id and creation time and inserts the message.
func (s *SQLite) SaveMessage(ctx context.Context, d message.Draft) (message.Message, error) {
	msg := message.Message{
		ID:         uuid.NewString(),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		Image:      d.Image,
		CreatedAt:  timestamp(time.Now()),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.Image, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return message.Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

// ListConversation returns the messages exchanged by a and b, oldest first.
func (s *SQLite) ListConversation(ctx context.Context, a, b string) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, text, image, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at, seq`,
		a, b, b, a,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	msgs := []message.Message{}
	for rows.Next() {
		var (
			m         message.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromNanos(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	return msgs, nil
}
