package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	e "nuclight.org/feedback-tg-bot/pkg/entities"
)

const sqliteBusyTimeoutMs = 5000

type SQLite struct {
	db *sql.DB
}

func NewSQLite(_ context.Context, filePath string) (*SQLite, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", sqliteDSN(filePath))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite3 database: %w", err)
	}

	// sqlite allows a single writer, one connection keeps unique checks and
	// inserts serialized without SQLITE_BUSY churn
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLite{db: db}, nil
}

func sqliteDSN(filePath string) string {
	sep := "?"
	if strings.Contains(filePath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d&_journal_mode=WAL", filePath, sep, sqliteBusyTimeoutMs)
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

//go:embed sqlite_init.sql
var sqliteInitQuery string

func (c *SQLite) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, sqliteInitQuery)
	return err
}

func (c *SQLite) CreateLink(ctx context.Context, link e.MessageLink) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO message_links (`+linkColumns+`, created_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		link.SubscriberUserID, link.SubscriberChatID, link.SubscriberMessageID,
		link.AdminChatID, link.AdminMessageID,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return fmt.Errorf("inserting message link: %w", e.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting message link: %w", err)
	}

	return nil
}

func (c *SQLite) FindLink(ctx context.Context, anchor e.Anchor, d e.Direction) (e.MessageLink, bool, error) {
	chatColumn, messageColumn, err := anchorColumns(d)
	if err != nil {
		return e.MessageLink{}, false, err
	}

	var link e.MessageLink
	err = c.db.QueryRowContext(
		ctx,
		`SELECT `+linkColumns+` FROM message_links WHERE `+chatColumn+` = ? AND `+messageColumn+` = ?`,
		anchor.ChatID, anchor.MessageID,
	).Scan(
		&link.SubscriberUserID, &link.SubscriberChatID, &link.SubscriberMessageID,
		&link.AdminChatID, &link.AdminMessageID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e.MessageLink{}, false, nil
		}

		return e.MessageLink{}, false, err
	}

	return link, true, nil
}

func (c *SQLite) SaveUser(ctx context.Context, user e.User) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO users (id, first_name, last_name, username, created_at, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE
			    SET first_name = excluded.first_name,
			        last_name = excluded.last_name,
			        username = excluded.username,
			        updated_at = CURRENT_TIMESTAMP`,
		user.ID, user.FirstName, user.LastName, user.Username,
	)
	return err
}

func (c *SQLite) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	var blocked bool
	err := c.db.QueryRowContext(ctx, "SELECT is_blocked FROM users WHERE id = ?", userID).Scan(&blocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, err
	}

	return blocked, nil
}

func (c *SQLite) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO users (id, is_blocked, created_at, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE
			    SET is_blocked = excluded.is_blocked, updated_at = CURRENT_TIMESTAMP`,
		userID, blocked,
	)
	return err
}

func (c *SQLite) ListUsers(ctx context.Context, filter e.UserBlockFilter) ([]e.User, error) {
	query := "SELECT id, first_name, last_name, username, is_blocked, updated_at FROM users"
	switch filter {
	case e.UserBlockFilterBlocked:
		query += " WHERE is_blocked = 1"
	case e.UserBlockFilterUnblocked:
		query += " WHERE is_blocked = 0"
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
