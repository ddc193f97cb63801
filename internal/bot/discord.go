package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sentinel-automod/internal/platform"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

const maxBanDeleteDays = 7

// Discord carries out enforcement, role edits and notifications over the
// REST API of an open session. Errors come back classified as platform
// errors.
type Discord struct {
	session *discordgo.Session
	dms     *rate.Limiter
}

var (
	_ platform.Enforcer    = (*Discord)(nil)
	_ platform.RoleManager = (*Discord)(nil)
	_ platform.Notifier    = (*Discord)(nil)
)

func NewDiscord(session *discordgo.Session, dmPerSecond float64, dmBurst int) *Discord {
	return &Discord{
		session: session,
		dms:     rate.NewLimiter(rate.Limit(dmPerSecond), dmBurst),
	}
}

func (d *Discord) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	err := d.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) TimeoutMember(ctx context.Context, guildID, userID string, duration time.Duration, reason string) error {
	until := time.Now().Add(duration)
	err := d.session.GuildMemberTimeout(guildID, userID, &until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return mapError(err)
}

func (d *Discord) KickMember(ctx context.Context, guildID, userID, reason string) error {
	err := d.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) BanMember(ctx context.Context, guildID, userID, reason string, deleteWindow time.Duration) error {
	err := d.session.GuildBanCreateWithReason(guildID, userID, reason, banDeleteDays(deleteWindow), discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) RolePermissions(ctx context.Context, guildID, roleID string) (int64, error) {
	roles, err := d.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, mapError(err)
	}
	for _, role := range roles {
		if role != nil && role.ID == roleID {
			return role.Permissions, nil
		}
	}
	return 0, fmt.Errorf("role %s: %w", roleID, platform.ErrNotFound)
}

func (d *Discord) SetRolePermissions(ctx context.Context, guildID, roleID string, permissions int64) error {
	_, err := d.session.GuildRoleEdit(guildID, roleID, &discordgo.RoleParams{Permissions: &permissions},
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason("automod lockdown"))
	return mapError(err)
}

func (d *Discord) SendDirectMessage(ctx context.Context, userID, content string) error {
	if err := d.dms.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", platform.ErrUnavailable, err)
	}
	channel, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	_, err = d.session.ChannelMessageSend(channel.ID, content, discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) PostAnnouncement(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) postEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	_, err := d.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	return mapError(err)
}

// banDeleteDays rounds the window up to whole days, within what the API takes.
func banDeleteDays(window time.Duration) int {
	if window <= 0 {
		return 0
	}
	days := int((window + 24*time.Hour - 1) / (24 * time.Hour))
	if days > maxBanDeleteDays {
		days = maxBanDeleteDays
	}
	return days
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", platform.ErrUnavailable, err)
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		// transport failures and exhausted rate-limit retries
		return fmt.Errorf("%w: %w", platform.ErrUnavailable, err)
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess, discordgo.ErrCodeCannotSendMessagesToThisUser:
			return fmt.Errorf("%w: %w", platform.ErrMissingPermission, err)
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser,
			discordgo.ErrCodeUnknownRole, discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %w", platform.ErrNotFound, err)
		}
	}
	if rest.Response != nil {
		switch status := rest.Response.StatusCode; {
		case status == http.StatusForbidden:
			return fmt.Errorf("%w: %w", platform.ErrMissingPermission, err)
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %w", platform.ErrNotFound, err)
		case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", platform.ErrUnavailable, err)
		}
	}
	return err
}
