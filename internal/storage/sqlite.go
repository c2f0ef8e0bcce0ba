package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"gate_bot/internal/model"
	"gate_bot/migrations"
)

// Fixed-width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// AddUser records a user ID. Existing IDs are left untouched.
func (s *SQLite) AddUser(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`,
		id, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// DeleteUser removes a user ID.
func (s *SQLite) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ListUsers returns every known user ID.
func (s *SQLite) ListUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutCampaign inserts or replaces the campaign for its channel.
func (s *SQLite) PutCampaign(ctx context.Context, c model.Campaign) error {
	var expiresAt *string
	if c.Expiry.Kind == model.ExpiryAt {
		v := formatTime(c.Expiry.At)
		expiresAt = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO campaigns (channel_id, join_link, expiry_kind, expires_at, member_limit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ChannelID, c.JoinLink, string(c.Expiry.Kind), expiresAt, c.Expiry.MemberLimit, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}
	return nil
}

// DeleteCampaign removes the campaign of a channel. Missing rows are not an error.
func (s *SQLite) DeleteCampaign(ctx context.Context, channelID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return nil
}

// DeleteAllCampaigns removes every campaign.
func (s *SQLite) DeleteAllCampaigns(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM campaigns`); err != nil {
		return fmt.Errorf("delete campaigns: %w", err)
	}
	return nil
}

// ListCampaigns returns all stored campaigns ordered by creation time.
func (s *SQLite) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, join_link, expiry_kind, expires_at, member_limit, created_at
		 FROM campaigns ORDER BY created_at, channel_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// PutContent inserts a content entry. Codes are immutable, so an existing code is an error.
func (s *SQLite) PutContent(ctx context.Context, e model.ContentEntry) error {
	buttons, err := json.Marshal(e.Payload.Buttons)
	if err != nil {
		return fmt.Errorf("encode buttons: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_entries (code, kind, body, caption, buttons, password, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Code, string(e.Payload.Kind), e.Payload.Body, e.Payload.Caption, string(buttons), e.Password, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// ListContent returns every stored content entry.
func (s *SQLite) ListContent(ctx context.Context) ([]model.ContentEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, kind, body, caption, buttons, password, created_at FROM content_entries ORDER BY created_at, code`,
	)
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.ContentEntry
	for rows.Next() {
		e, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCampaign(row scannable) (model.Campaign, error) {
	var c model.Campaign
	var kind, created string
	var expiresAt sql.NullString
	err := row.Scan(&c.ChannelID, &c.JoinLink, &kind, &expiresAt, &c.Expiry.MemberLimit, &created)
	if err != nil {
		return c, fmt.Errorf("scan campaign: %w", err)
	}
	c.Expiry.Kind = model.ExpiryKind(kind)
	if expiresAt.Valid {
		c.Expiry.At, err = parseTime(expiresAt.String)
		if err != nil {
			return c, fmt.Errorf("parse expires_at: %w", err)
		}
	}
	c.CreatedAt, err = parseTime(created)
	if err != nil {
		return c, fmt.Errorf("parse created_at: %w", err)
	}
	return c, nil
}

func scanContent(row scannable) (model.ContentEntry, error) {
	var e model.ContentEntry
	var kind, buttons, created string
	err := row.Scan(&e.Code, &kind, &e.Payload.Body, &e.Payload.Caption, &buttons, &e.Password, &created)
	if err != nil {
		return e, fmt.Errorf("scan content: %w", err)
	}
	e.Payload.Kind = model.PayloadKind(kind)
	if err := json.Unmarshal([]byte(buttons), &e.Payload.Buttons); err != nil {
		return e, fmt.Errorf("decode buttons for %s: %w", e.Code, err)
	}
	e.CreatedAt, err = parseTime(created)
	if err != nil {
		return e, fmt.Errorf("parse created_at: %w", err)
	}
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
