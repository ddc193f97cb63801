package bot

import (
	"testing"
	"time"

	"sentinel-automod/internal/config"
	"sentinel-automod/internal/lockdown"
	"sentinel-automod/internal/modules/audit"
	"sentinel-automod/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanManage(t *testing.T) {
	assert.False(t, canManage(nil))
	assert.False(t, canManage(&discordgo.Member{Permissions: discordgo.PermissionSendMessages}))
	assert.True(t, canManage(&discordgo.Member{Permissions: discordgo.PermissionManageGuild}))
	assert.True(t, canManage(&discordgo.Member{Permissions: discordgo.PermissionAdministrator}))
}

func TestSubcommandOptions(t *testing.T) {
	options := []*discordgo.ApplicationCommandInteractionDataOption{{
		Name: "on",
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "minutes", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(15)},
			{Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: "raid"},
		},
	}}

	name, opts := subcommand(options)
	assert.Equal(t, "on", name)
	assert.Equal(t, int64(15), opts.integer("minutes", 0))
	assert.Equal(t, "raid", opts.str("reason"))
	assert.Equal(t, int64(7), opts.integer("days", 7))
	assert.Empty(t, opts.str("missing"))

	name, opts = subcommand(nil)
	assert.Empty(t, name)
	assert.Empty(t, opts.str("reason"))
}

func TestMessageEvent(t *testing.T) {
	msg := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "hello",
		Author:    &discordgo.User{ID: "u1"},
	}
	ev := messageEvent(msg, discordgo.PermissionManageMessages)
	assert.Equal(t, "g1", ev.GuildID)
	assert.Equal(t, "c1", ev.ChannelID)
	assert.Equal(t, "m1", ev.MessageID)
	assert.Equal(t, "u1", ev.AuthorID)
	assert.Equal(t, "hello", ev.Content)
	assert.Equal(t, int64(discordgo.PermissionManageMessages), ev.AuthorPermissions)
}

func TestLockdownFields(t *testing.T) {
	start := time.Unix(1700000000, 0)
	end := start.Add(10 * time.Minute)

	fields := lockdownFields(lockdown.Record{StartedAt: start, Reason: "raid"}, 3)
	require.Len(t, fields, 4)
	assert.Equal(t, "<t:1700000000:R>", fields[0].Value)
	assert.Equal(t, "until lifted", fields[1].Value)
	assert.Equal(t, "3", fields[2].Value)

	fields = lockdownFields(lockdown.Record{StartedAt: start, PlannedEndAt: &end, Reason: "raid"}, 0)
	assert.Equal(t, "<t:1700000600:R>", fields[1].Value)
}

func TestAuditEmbedColors(t *testing.T) {
	b := &Bot{cfg: config.DefaultConfig()}
	colors := b.cfg.Notifications.EmbedColors

	embed := b.buildAuditEmbed(storage.AuditLog{Level: audit.LevelCrit, Event: "automod_failed", CreatedAt: time.Now()})
	assert.Equal(t, colors.Error, embed.Color)
	assert.Equal(t, "system", embed.Fields[2].Value)
	assert.Equal(t, "-", embed.Fields[3].Value)

	embed = b.buildAuditEmbed(storage.AuditLog{Level: audit.LevelWarn, UserID: "u1", Details: "spam", CreatedAt: time.Now()})
	assert.Equal(t, colors.Warning, embed.Color)
	assert.Equal(t, "<@u1>", embed.Fields[2].Value)

	embed = b.buildAuditEmbed(storage.AuditLog{Level: audit.LevelInfo, CreatedAt: time.Now()})
	assert.Equal(t, colors.Action, embed.Color)
}

func TestCommandDefinitions(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range commandDefinitions() {
		names[cmd.Name] = true
		require.NotNil(t, cmd.DefaultMemberPermissions)
	}
	assert.Equal(t, map[string]bool{"automod": true, "lockdown": true, "modreport": true}, names)
}
