package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentinel-automod/internal/models"
	"sentinel-automod/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// Sink persists audit output. Both storage backends implement it.
type Sink interface {
	AddViolation(ctx context.Context, event models.ViolationEvent) error
	AddAuditLog(ctx context.Context, log storage.AuditLog) error
}

type Logger struct {
	sink   Sink
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(sink Sink, logger *zap.Logger) *Logger {
	return &Logger{sink: sink, logger: logger}
}

// SetNotifier mirrors every entry to an extra destination, usually the guild's
// alert channel. Must be called before the logger is shared.
func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.sink != nil {
		if err := l.sink.AddAuditLog(ctx, entry); err != nil {
			l.logger.Error("audit log write failed", zap.String("guild_id", guildID), zap.String("event", event), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

// Record persists a violation event. Events are write-once; a failed write is
// logged and dropped.
func (l *Logger) Record(ctx context.Context, event models.ViolationEvent) {
	event.Content = models.TruncateContent(event.Content)

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("guild_id", event.GuildID),
		zap.String("user_id", event.UserID),
		zap.String("violations", models.JoinViolations(event.Violations)),
		zap.String("action", event.ActionTaken),
	}
	level := LevelWarn
	if event.ActionTaken == models.ActionTakenFailed {
		level = LevelCrit
		fields = append(fields, zap.String("error", event.FailureReason))
		l.logger.Warn("violation enforcement failed", fields...)
	} else {
		l.logger.Info("violation", fields...)
	}

	if l.sink != nil {
		if err := l.sink.AddViolation(ctx, event); err != nil {
			l.logger.Error("violation write failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, storage.AuditLog{
			GuildID:   event.GuildID,
			UserID:    event.UserID,
			Level:     level,
			Event:     "automod_" + event.ActionTaken,
			Details:   describe(event),
			CreatedAt: event.Timestamp,
		})
	}
}

func describe(event models.ViolationEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "violations: %s", strings.ReplaceAll(models.JoinViolations(event.Violations), ",", ", "))
	if event.WarningCount > 0 {
		fmt.Fprintf(&b, "\nwarnings: %d", event.WarningCount)
	}
	if event.FailureReason != "" {
		fmt.Fprintf(&b, "\nerror: %s", event.FailureReason)
	}
	if event.Content != "" {
		fmt.Fprintf(&b, "\ncontent: %s", event.Content)
	}
	return b.String()
}
