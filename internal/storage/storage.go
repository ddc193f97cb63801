package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"sentinel-automod/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise open its own empty database
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	files, err := migrationFiles(migrations, "migrations")
	if err != nil {
		return err
	}
	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

// LoadSettings returns nil, nil for a guild that was never configured.
func (s *Store) LoadSettings(ctx context.Context, guildID string) (*models.GuildModerationSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, filter_profanity, profanity_threshold, profanity_action,
		filter_invites, filter_spam, spam_threshold, spam_window_ms, spam_action,
		mute_duration_ms, anti_raid, raid_threshold, raid_window_ms, raid_action,
		raid_duration_ms, notify_users, alert_channel_id
		FROM guild_moderation_settings WHERE guild_id = ?`, guildID)

	var rec settingsRecord
	var profanity, invites, spam, raid, notify int
	err := row.Scan(
		&rec.GuildID,
		&profanity,
		&rec.ProfanityThreshold,
		&rec.ProfanityAction,
		&invites,
		&spam,
		&rec.SpamThreshold,
		&rec.SpamWindowMs,
		&rec.SpamAction,
		&rec.MuteDurationMs,
		&raid,
		&rec.RaidThreshold,
		&rec.RaidWindowMs,
		&rec.RaidAction,
		&rec.RaidDurationMs,
		&notify,
		&rec.AlertChannelID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.FilterProfanity = profanity == 1
	rec.FilterInvites = invites == 1
	rec.FilterSpam = spam == 1
	rec.AntiRaid = raid == 1
	rec.NotifyUsers = notify == 1
	return rec.settings(), nil
}

func (s *Store) SaveSettings(ctx context.Context, settings *models.GuildModerationSettings) error {
	if settings == nil || settings.GuildID == "" {
		return fmt.Errorf("%w: missing guild id", models.ErrInvalidSettings)
	}
	rec := recordFromSettings(settings)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_moderation_settings (
			guild_id, filter_profanity, profanity_threshold, profanity_action,
			filter_invites, filter_spam, spam_threshold, spam_window_ms, spam_action,
			mute_duration_ms, anti_raid, raid_threshold, raid_window_ms, raid_action,
			raid_duration_ms, notify_users, alert_channel_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
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
		rec.GuildID,
		boolToInt(rec.FilterProfanity),
		rec.ProfanityThreshold,
		rec.ProfanityAction,
		boolToInt(rec.FilterInvites),
		boolToInt(rec.FilterSpam),
		rec.SpamThreshold,
		rec.SpamWindowMs,
		rec.SpamAction,
		rec.MuteDurationMs,
		boolToInt(rec.AntiRaid),
		rec.RaidThreshold,
		rec.RaidWindowMs,
		rec.RaidAction,
		rec.RaidDurationMs,
		boolToInt(rec.NotifyUsers),
		rec.AlertChannelID,
	)
	return err
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) AddViolation(ctx context.Context, event models.ViolationEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO violation_events (
			id, guild_id, user_id, channel_id, message_id, violations,
			action_taken, failure_reason, warning_count, content, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.GuildID, event.UserID, event.ChannelID, event.MessageID,
		models.JoinViolations(event.Violations), event.ActionTaken, event.FailureReason,
		event.WarningCount, event.Content, event.Timestamp.UnixMilli())
	return err
}

func (s *Store) ListViolations(ctx context.Context, guildID string, since time.Time) ([]models.ViolationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, channel_id, message_id, violations,
		action_taken, failure_reason, warning_count, content, created_at
		FROM violation_events
		WHERE guild_id = ? AND created_at >= ?
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

// Cleanup removes audit logs and violation events older than retentionDays.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM violation_events WHERE created_at < ?`, cutoff.UnixMilli())
	return err
}

func migrationFiles(fsys embed.FS, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
