package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPool initializes a new PostgreSQL connection pool and executes database migrations.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := runMigrations(ctx, sqlDB, goose.DialectPostgres, "migrations/postgres"); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// NewPostgres opens a migrated pool and wraps it as a Store.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// Ping checks that the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func validUUID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// CreateUser inserts a new account.
func (p *Postgres) CreateUser(ctx context.Context, acc user.Account) (user.Account, error) {
	acc.CreatedAt = timestamp(acc.CreatedAt)

	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, username, full_name, avatar, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		acc.ID, acc.Username, acc.FullName, acc.Avatar, acc.PasswordHash, acc.CreatedAt,
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
func (p *Postgres) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !validUUID(id) {
		return user.User{}, user.ErrNotFound
	}

	var u user.User
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, username, full_name, avatar
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.FullName, &u.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("select user: %w", err)
	}

	return u, nil
}

// GetAccountByUsername loads an account for authentication; usernames compare case-insensitively.
func (p *Postgres) GetAccountByUsername(ctx context.Context, username string) (user.Account, error) {
	var (
		acc       user.Account
		lastLogin pgtype.Timestamptz
	)

	err := p.pool.QueryRow(ctx, `
		SELECT id::text, username, full_name, avatar, password_hash, created_at, last_login_at
		FROM users WHERE lower(username) = lower($1)`, username,
	).Scan(&acc.ID, &acc.Username, &acc.FullName, &acc.Avatar, &acc.PasswordHash, &acc.CreatedAt, &lastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.Account{}, user.ErrNotFound
	}
	if err != nil {
		return user.Account{}, fmt.Errorf("select account: %w", err)
	}

	acc.CreatedAt = acc.CreatedAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		acc.LastLoginAt = &t
	}

	return acc, nil
}

// TouchLastLogin records a successful login.
func (p *Postgres) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := p.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`,
		id, pgtype.Timestamptz{Time: timestamp(at), Valid: true},
	)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Avatar)
	return u, err
}

// SearchUsers matches query against username and full name, case-insensitively.
func (p *Postgres) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]user.User, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, username, full_name, avatar
		FROM users
		WHERE (username ILIKE $1 OR full_name ILIKE $1) AND id::text <> $2
		ORDER BY username
		LIMIT $3`,
		escapeLike(query), excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

// ListContacts returns conversation partners of userID, most recent conversation first.
func (p *Postgres) ListContacts(ctx context.Context, userID string) ([]user.User, error) {
	if !validUUID(userID) {
		return []user.User{}, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT u.id::text, u.username, u.full_name, u.avatar
		FROM (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer_id,
			       max(seq) AS last_seq
			FROM messages
			WHERE sender_id = $1 OR receiver_id = $1
			GROUP BY 1
		) c
		JOIN users u ON u.id = c.peer_id
		ORDER BY c.last_seq DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("scan contacts: %w", err)
	}
	return users, nil
}

// SaveMessage assigns id and creation time and inserts the message.
func (p *Postgres) SaveMessage(ctx context.Context, d message.Draft) (message.Message, error) {
	msg := message.Message{
		ID:         uuid.NewString(),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		Image:      d.Image,
		CreatedAt:  timestamp(time.Now()),
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.Image, msg.CreatedAt,
	)
	if err != nil {
		return message.Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

// ListConversation returns the messages exchanged by a and b, oldest first.
func (p *Postgres) ListConversation(ctx context.Context, a, b string) ([]message.Message, error) {
	if !validUUID(a, b) {
		return []message.Message{}, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id::text, sender_id::text, receiver_id::text, text, image, created_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at, seq`, a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (message.Message, error) {
		var m message.Message
		err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.CreatedAt)
		m.CreatedAt = m.CreatedAt.UTC()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return msgs, nil
}
