package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"
	"time"

	"sentinel-automod/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations_pg/*.sql
var pgMigrations embed.FS

// PGStore is the Postgres flavour of Store, for deployments that already run
// a shared database.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PGStore) Migrate(ctx context.Context) error {
	files, err := migrationFiles(pgMigrations, "migrations_pg")
	if err != nil {
		return err
	}
	for _, file := range files {
		content, err := pgMigrations.ReadFile(path.Join("migrations_pg", file))
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *PGStore) LoadSettings(ctx context.Context, guildID string) (*models.GuildModerationSettings, error) {
	var rec settingsRecord
	err := s.pool.QueryRow(ctx, `
		SELECT guild_id, filter_profanity, profanity_threshold, profanity_action,
		filter_invites, filter_spam, spam_threshold, spam_window_ms, spam_action,
		mute_duration_ms, anti_raid, raid_threshold, raid_window_ms, raid_action,
		raid_duration_ms, notify_users, alert_channel_id
		FROM guild_moderation_settings WHERE guild_id = $1`, guildID).Scan(
		&rec.GuildID,
		&rec.FilterProfanity,
		&rec.ProfanityThreshold,
		&rec.ProfanityAction,
		&rec.FilterInvites,
		&rec.FilterSpam,
		&rec.SpamThreshold,
		&rec.SpamWindowMs,
		&rec.SpamAction,
		&rec.MuteDurationMs,
		&rec.AntiRaid,
		&rec.RaidThreshold,
		&rec.RaidWindowMs,
		&rec.RaidAction,
		&rec.RaidDurationMs,
		&rec.NotifyUsers,
		&rec.AlertChannelID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec.settings(), nil
}

func (s *PGStore) SaveSettings(ctx context.Context, settings *models.GuildModerationSettings) error {
	if settings == nil || settings.GuildID == "" {
		return fmt.Errorf("%w: missing guild id", models.ErrInvalidSettings)
	}
	rec := recordFromSettings(settings)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guild_moderation_settings (
			guild_id, filter_profanity, profanity_threshold, profanity_action,
			filter_invites, filter_spam, spam_threshold, spam_window_ms, spam_action,
			mute_duration_ms, anti_raid, raid_threshold, raid_window_ms, raid_action,
			raid_duration_ms, notify_users, alert_channel_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (guild_id) DO UPDATE SET
			filter_profanity = excluded.filter_profanity,
			profanity_threshold = excluded.profanity_threshold,
			profanity_action = excluded.profanity_action,
			filter_invites = excluded.filter_invites,
			filter_spam = excluded.filter_spam,
			spam_threshold = excluded.spam_threshold,
			spam_window_ms = excluded.spam_window_ms,
			spam_action = excluded.spam_action,
			mute_duration_ms = excluded.mute_duration_ms,
			anti_raid = excluded.anti_raid,
			raid_threshold = excluded.raid_threshold,
			raid_window_ms = excluded.raid_window_ms,
			raid_action = excluded.raid_action,
			raid_duration_ms = excluded.raid_duration_ms,
			notify_users = excluded.notify_users,
			alert_channel_id = excluded.alert_channel_id
	`,
		rec.GuildID, rec.FilterProfanity, rec.ProfanityThreshold, rec.ProfanityAction,
		rec.FilterInvites, rec.FilterSpam, rec.SpamThreshold, rec.SpamWindowMs, rec.SpamAction,
		rec.MuteDurationMs, rec.AntiRaid, rec.RaidThreshold, rec.RaidWindowMs, rec.RaidAction,
		rec.RaidDurationMs, rec.NotifyUsers, rec.AlertChannelID,
	)
	return err
}

func (s *PGStore) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *PGStore) AddViolation(ctx context.Context, event models.ViolationEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO violation_events (
			id, guild_id, user_id, channel_id, message_id, violations,
			action_taken, failure_reason, warning_count, content, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, event.ID, event.GuildID, event.UserID, event.ChannelID, event.MessageID,
		models.JoinViolations(event.Violations), event.ActionTaken, event.FailureReason,
		event.WarningCount, event.Content, event.Timestamp.UnixMilli())
	return err
}

func (s *PGStore) ListViolations(ctx context.Context, guildID string, since time.Time) ([]models.ViolationEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, guild_id, user_id, channel_id, message_id, violations,
		action_taken, failure_reason, warning_count, content, created_at
		FROM violation_events
		WHERE guild_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, guildID, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ViolationEvent
	for rows.Next() {
		var event models.ViolationEvent
		var kinds string
		var created int64
		if err := rows.Scan(&event.ID, &event.GuildID, &event.UserID, &event.ChannelID, &event.MessageID, &kinds,
			&event.ActionTaken, &event.FailureReason, &event.WarningCount, &event.Content, &created); err != nil {
			return nil, err
		}
		event.Violations = models.SplitViolations(kinds)
		event.Timestamp = time.UnixMilli(created)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PGStore) AddWarning(ctx context.Context, guildID, userID, category, reason string, forgiveAfter time.Duration) (int, error) {
	now := time.Now()
	var nextReset *int64
	if forgiveAfter > 0 {
		value := now.Add(forgiveAfter).Unix()
		nextReset = &value
	}

	var count int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current int
		var resetAt *int64
		err := tx.QueryRow(ctx, `
			SELECT count_total, reset_at FROM user_warnings
			WHERE guild_id = $1 AND user_id = $2 AND category = $3
			FOR UPDATE
		`, guildID, userID, category).Scan(&current, &resetAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if resetAt != nil && now.Unix() >= *resetAt {
			current = 0
		}
		count = current + 1

		_, err = tx.Exec(ctx, `
			INSERT INTO user_warnings (guild_id, user_id, category, count_total, last_at, last_reason, reset_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (guild_id, user_id, category) DO UPDATE SET
				count_total = excluded.count_total,
				last_at = excluded.last_at,
				last_reason = excluded.last_reason,
				reset_at = excluded.reset_at
		`, guildID, userID, category, count, now.Unix(), reason, nextReset)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PGStore) Cleanup(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	if _, err := s.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff.Unix()); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM violation_events WHERE created_at < $1`, cutoff.UnixMilli())
	return err
}
