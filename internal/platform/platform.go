// Package platform declares the host primitives the moderation core calls into.
// The discordgo adapter in internal/bot implements them; tests use fakes.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingPermission means the bot lacks the permission or role
	// hierarchy to act on the target.
	ErrMissingPermission = errors.New("insufficient permission")
	// ErrNotFound means the target (message, member, role) no longer exists.
	ErrNotFound = errors.New("target not found")
	// ErrUnavailable covers transport failures and timeouts.
	ErrUnavailable = errors.New("platform unavailable")
)

// MaxTimeout is the longest member timeout the platform accepts.
const MaxTimeout = 28 * 24 * time.Hour

type MessageRef struct {
	GuildID   string
	ChannelID string
	MessageID string
}

type Enforcer interface {
	DeleteMessage(ctx context.Context, ref MessageRef) error
	TimeoutMember(ctx context.Context, guildID, userID string, duration time.Duration, reason string) error
	KickMember(ctx context.Context, guildID, userID, reason string) error
	BanMember(ctx context.Context, guildID, userID, reason string, deleteWindow time.Duration) error
}

type RoleManager interface {
	RolePermissions(ctx context.Context, guildID, roleID string) (int64, error)
	SetRolePermissions(ctx context.Context, guildID, roleID string, permissions int64) error
}

// Notifier delivery is best effort; callers decide whether an error matters.
type Notifier interface {
	SendDirectMessage(ctx context.Context, userID, content string) error
	PostAnnouncement(ctx context.Context, channelID, content string) error
}

// Classify returns which of the platform error kinds err belongs to, or nil.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMissingPermission):
		return ErrMissingPermission
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrUnavailable
	default:
		return nil
	}
}
