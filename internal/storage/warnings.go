package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const WarningCategory = "automod"

type UserWarnings struct {
	GuildID    string
	UserID     string
	Category   string
	CountTotal int
	LastAt     time.Time
	LastReason string
	ResetAt    *time.Time
}

// Warnings returns the user's current warning tally; an expired tally reads
// as zero.
func (s *Store) Warnings(ctx context.Context, guildID, userID, category string) (UserWarnings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, category, count_total, last_at, COALESCE(last_reason, ''), reset_at
		FROM user_warnings
		WHERE guild_id = ? AND user_id = ? AND category = ?
	`, guildID, userID, category)

	var warn UserWarnings
	var lastAt int64
	var resetAt sql.NullInt64
	err := row.Scan(&warn.GuildID, &warn.UserID, &warn.Category, &warn.CountTotal, &lastAt, &warn.LastReason, &resetAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserWarnings{GuildID: guildID, UserID: userID, Category: category}, nil
		}
		return UserWarnings{}, err
	}
	warn.LastAt = time.Unix(lastAt, 0)
	if resetAt.Valid {
		value := time.Unix(resetAt.Int64, 0)
		warn.ResetAt = &value
		if !time.Now().Before(value) {
			warn.CountTotal = 0
		}
	}
	return warn, nil
}

// AddWarning bumps the user's tally and returns the new count. A tally whose
// forgiveness deadline passed starts over from one.
func (s *Store) AddWarning(ctx context.Context, guildID, userID, category, reason string, forgiveAfter time.Duration) (int, error) {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	var resetAt sql.NullInt64
	row := tx.QueryRowContext(ctx, `
		SELECT count_total, reset_at
		FROM user_warnings
		WHERE guild_id = ? AND user_id = ? AND category = ?
	`, guildID, userID, category)
	scanErr := row.Scan(&count, &resetAt)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return 0, err
	}
	if scanErr == nil && resetAt.Valid && now.Unix() >= resetAt.Int64 {
		count = 0
	}

	count++
	var nextReset any
	if forgiveAfter > 0 {
		nextReset = now.Add(forgiveAfter).Unix()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_warnings (guild_id, user_id, category, count_total, last_at, last_reason, reset_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id, category) DO UPDATE SET
			count_total = excluded.count_total,
			last_at = excluded.last_at,
			last_reason = excluded.last_reason,
			reset_at = excluded.reset_at
	`, guildID, userID, category, count, now.Unix(), reason, nextReset)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}
