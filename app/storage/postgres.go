package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	e "nuclight.org/feedback-tg-bot/pkg/entities"
)

const pgUniqueViolation = "23505"

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a connection pool and verifies it with a ping.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = 60 * time.Minute
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (c *Postgres) Close() error {
	c.pool.Close()
	return nil
}

//go:embed postgres_init.sql
var postgresInitQuery string

func (c *Postgres) Migrate(ctx context.Context) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	// simple protocol, the script has several statements
	_, err = conn.Conn().PgConn().Exec(ctx, postgresInitQuery).ReadAll()
	return err
}

func (c *Postgres) CreateLink(ctx context.Context, link e.MessageLink) error {
	_, err := c.pool.Exec(
		ctx,
		`INSERT INTO message_links (`+linkColumns+`)
			VALUES ($1, $2, $3, $4, $5)`,
		link.SubscriberUserID, link.SubscriberChatID, link.SubscriberMessageID,
		link.AdminChatID, link.AdminMessageID,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("inserting message link: %w", e.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting message link: %w", err)
	}

	return nil
}

func (c *Postgres) FindLink(ctx context.Context, anchor e.Anchor, d e.Direction) (e.MessageLink, bool, error) {
	chatColumn, messageColumn, err := anchorColumns(d)
	if err != nil {
		return e.MessageLink{}, false, err
	}

	var link e.MessageLink
	err = c.pool.QueryRow(
		ctx,
		`SELECT `+linkColumns+` FROM message_links WHERE `+chatColumn+` = $1 AND `+messageColumn+` = $2`,
		anchor.ChatID, anchor.MessageID,
	).Scan(
		&link.SubscriberUserID, &link.SubscriberChatID, &link.SubscriberMessageID,
		&link.AdminChatID, &link.AdminMessageID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return e.MessageLink{}, false, nil
		}

		return e.MessageLink{}, false, err
	}

	return link, true, nil
}

func (c *Postgres) SaveUser(ctx context.Context, user e.User) error {
	_, err := c.pool.Exec(
		ctx,
		`INSERT INTO users (id, first_name, last_name, username)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			    SET first_name = EXCLUDED.first_name,
			        last_name = EXCLUDED.last_name,
			        username = EXCLUDED.username,
			        updated_at = NOW()`,
		user.ID, user.FirstName, user.LastName, user.Username,
	)
	return err
}

func (c *Postgres) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	var blocked bool
	err := c.pool.QueryRow(ctx, "SELECT is_blocked FROM users WHERE id = $1", userID).Scan(&blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, err
	}

	return blocked, nil
}

func (c *Postgres) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	_, err := c.pool.Exec(
		ctx,
		`INSERT INTO users (id, is_blocked)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE
			    SET is_blocked = EXCLUDED.is_blocked, updated_at = NOW()`,
		userID, blocked,
	)
	return err
}

func (c *Postgres) ListUsers(ctx context.Context, filter e.UserBlockFilter) ([]e.User, error) {
	query := "SELECT id, first_name, last_name, username, is_blocked, updated_at FROM users"
	switch filter {
	case e.UserBlockFilterBlocked:
		query += " WHERE is_blocked"
	case e.UserBlockFilterUnblocked:
		query += " WHERE NOT is_blocked"
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []e.User
	for rows.Next() {
		var u e.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.IsBlocked, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return users, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
