package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinel-automod/internal/lockdown"
	"sentinel-automod/internal/models"
	"sentinel-automod/internal/modules/audit"
	"sentinel-automod/internal/platform"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) commandOptions {
	out := make(commandOptions, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func (o commandOptions) str(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o commandOptions) integer(name string, fallback int64) int64 {
	if opt, ok := o[name]; ok {
		return opt.IntValue()
	}
	return fallback
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, b.errorEmbed("Automod", "This command only works inside a server."), true)
		return
	}
	if !canManage(interaction.Member) {
		b.respondEmbed(session, interaction, b.errorEmbed("Automod", "You need the Manage Server permission."), true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Engine.CallTimeout())
	defer cancel()

	data := interaction.ApplicationCommandData()
	switch data.Name {
	case "automod":
		b.handleAutomodCommand(ctx, session, interaction, data.Options)
	case "lockdown":
		b.handleLockdownCommand(ctx, session, interaction, data.Options)
	case "modreport":
		b.handleReportCommand(ctx, session, interaction, optionMap(data.Options))
	}
}

func canManage(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	return member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0
}

func actorID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	return ""
}

func subcommand(options []*discordgo.ApplicationCommandInteractionDataOption) (string, commandOptions) {
	if len(options) == 0 {
		return "", nil
	}
	return options[0].Name, optionMap(options[0].Options)
}

func (b *Bot) handleAutomodCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	guildID := interaction.GuildID
	name, opts := subcommand(options)

	current, err := b.settings.Get(ctx, guildID)
	if err != nil {
		b.logger.Warn("settings load failed", zap.String("guild_id", guildID), zap.Error(err))
		b.respondEmbed(session, interaction, b.errorEmbed("Automod", "Settings are unavailable right now, try again."), true)
		return
	}

	switch name {
	case "view":
		if current == nil {
			b.respondEmbed(session, interaction, b.commandEmbed("Automod", "Automod is not configured here. Use `/automod preset` to start.", b.cfg.Notifications.EmbedColors.Action, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Automod", "Current settings", b.cfg.Notifications.EmbedColors.Action, settingsFields(current)), true)
	case "preset":
		preset := strings.ToLower(opts.str("value"))
		next := models.Preset(guildID, preset)
		if current != nil {
			next.AlertChannelID = current.AlertChannelID
		}
		b.saveSettings(ctx, session, interaction, &next, "preset "+preset)
	case "set":
		next := models.GuildModerationSettings{GuildID: guildID}
		if current != nil {
			next = *current
		}
		field := opts.str("field")
		if err := applySetting(&next, field, opts.str("value")); err != nil {
			b.respondEmbed(session, interaction, b.errorEmbed("Automod", err.Error()), true)
			return
		}
		b.saveSettings(ctx, session, interaction, &next, field+" = "+opts.str("value"))
	default:
		b.respondEmbed(session, interaction, b.errorEmbed("Automod", "Unknown subcommand."), true)
	}
}

func (b *Bot) saveSettings(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, next *models.GuildModerationSettings, change string) {
	if err := b.settings.Set(ctx, next); err != nil {
		if errors.Is(err, models.ErrInvalidSettings) {
			b.respondEmbed(session, interaction, b.errorEmbed("Automod", err.Error()), true)
			return
		}
		b.logger.Warn("settings update failed", zap.String("guild_id", next.GuildID), zap.Error(err))
		b.respondEmbed(session, interaction, b.errorEmbed("Automod", "Could not save settings, try again."), true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, next.GuildID, actorID(interaction), "settings_updated", change)
	b.respondEmbed(session, interaction, b.commandEmbed("Automod", "Settings updated", b.cfg.Notifications.EmbedColors.Action, settingsFields(next)), true)
}

func (b *Bot) handleLockdownCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	guildID := interaction.GuildID
	name, opts := subcommand(options)

	switch name {
	case "on":
		duration := time.Duration(opts.integer("minutes", 0)) * time.Minute
		reason := opts.str("reason")
		if reason == "" {
			reason = "manual lockdown"
		}
		if actor := actorID(interaction); actor != "" {
			reason += " by <@" + actor + ">"
		}
		record, err := b.lockdowns.Lockdown(ctx, guildID, duration, reason)
		switch {
		case errors.Is(err, lockdown.ErrAlreadyLocked):
			b.respondEmbed(session, interaction, b.errorEmbed("Lockdown", "The server is already locked down."), true)
		case err != nil:
			b.logger.Warn("manual lockdown failed", zap.String("guild_id", guildID), zap.Error(err))
			b.respondEmbed(session, interaction, b.errorEmbed("Lockdown", lockdownFailure(err)), true)
		default:
			b.respondEmbed(session, interaction, b.commandEmbed("Lockdown", "Server locked down.", b.cfg.Notifications.EmbedColors.Warning, lockdownFields(record, b.engine.RaidJoinCount(ctx, guildID))), false)
		}
	case "off":
		err := b.lockdowns.Unlock(ctx, guildID)
		switch {
		case errors.Is(err, lockdown.ErrNotLocked):
			b.respondEmbed(session, interaction, b.errorEmbed("Lockdown", "The server is not locked down."), true)
		case err != nil:
			b.logger.Warn("manual unlock failed", zap.String("guild_id", guildID), zap.Error(err))
			b.respondEmbed(session, interaction, b.errorEmbed("Lockdown", lockdownFailure(err)), true)
		default:
			b.respondEmbed(session, interaction, b.commandEmbed("Lockdown", "Lockdown lifted, permissions restored.", b.cfg.Notifications.EmbedColors.Action, nil), false)
		}
	case "status":
		joins := b.engine.RaidJoinCount(ctx, guildID)
		record, locked := b.lockdowns.Status(guildID)
		if !locked {
			fields := []*discordgo.MessageEmbedField{{Name: "Recent joins", Value: fmt.Sprintf("%d", joins), Inline: true}}
			b.respondEmbed(session, interaction, b.commandEmbed("Lockdown", "Not locked down.", b.cfg.Notifications.EmbedColors.Action, fields), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Lockdown", "Locked down.", b.cfg.Notifications.EmbedColors.Warning, lockdownFields(record, joins)), true)
	default:
		b.respondEmbed(session, interaction, b.errorEmbed("Lockdown", "Unknown subcommand."), true)
	}
}

func lockdownFields(record lockdown.Record, joins int) []*discordgo.MessageEmbedField {
	until := "until lifted"
	if record.PlannedEndAt != nil {
		until = fmt.Sprintf("<t:%d:R>", record.PlannedEndAt.Unix())
	}
	return []*discordgo.MessageEmbedField{
		{Name: "Since", Value: fmt.Sprintf("<t:%d:R>", record.StartedAt.Unix()), Inline: true},
		{Name: "Ends", Value: until, Inline: true},
		{Name: "Recent joins", Value: fmt.Sprintf("%d", joins), Inline: true},
		{Name: "Reason", Value: record.Reason, Inline: false},
	}
}

func lockdownFailure(err error) string {
	switch {
	case errors.Is(err, platform.ErrMissingPermission):
		return "I lack the permission to edit the @everyone role."
	case errors.Is(err, platform.ErrNotFound):
		return "The @everyone role could not be found."
	default:
		return "Discord did not accept the change, try again."
	}
}

func (b *Bot) handleReportCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts commandOptions) {
	days := opts.integer("days", 7)
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	report, err := b.analytics.Report(ctx, interaction.GuildID, since)
	if err != nil {
		b.logger.Warn("report failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respondEmbed(session, interaction, b.errorEmbed("Report", "Could not build the report."), true)
		return
	}

	top := "none"
	if len(report.TopUsers) > 0 {
		lines := make([]string, 0, len(report.TopUsers))
		for _, entry := range report.TopUsers {
			lines = append(lines, fmt.Sprintf("<@%s> %d", entry.UserID, entry.Count))
		}
		top = strings.Join(lines, "\n")
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Summary", Value: report.Summary(), Inline: false},
		{Name: "Top offenders", Value: top, Inline: false},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Report", fmt.Sprintf("Last %d days", days), b.cfg.Notifications.EmbedColors.Action, fields), true)
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Author:      embedAuthor(),
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func (b *Bot) errorEmbed(title, description string) *discordgo.MessageEmbed {
	return b.commandEmbed(title, description, b.cfg.Notifications.EmbedColors.Error, nil)
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
	if err != nil {
		b.logger.Debug("interaction response failed", zap.Error(err))
	}
}
