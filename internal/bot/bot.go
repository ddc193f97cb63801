package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"sentinel-automod/internal/analytics"
	"sentinel-automod/internal/config"
	"sentinel-automod/internal/engine"
	"sentinel-automod/internal/lockdown"
	"sentinel-automod/internal/modules/audit"
	"sentinel-automod/internal/settings"
	"sentinel-automod/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Retention drops audit data older than the configured number of days.
type Retention interface {
	Cleanup(ctx context.Context, retentionDays int) error
}

type Services struct {
	Engine    *engine.Engine
	Settings  *settings.Cache
	Lockdowns *lockdown.Controller
	Audit     *audit.Logger
	Analytics *analytics.Service
	Retention Retention
}

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	session   *discordgo.Session
	discord   *Discord
	engine    *engine.Engine
	settings  *settings.Cache
	lockdowns *lockdown.Controller
	audit     *audit.Logger
	analytics *analytics.Service
	retention Retention

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	return session, nil
}

func New(cfg config.Config, logger *zap.Logger, session *discordgo.Session, discord *Discord, services Services) *Bot {
	ctx, stop := context.WithCancel(context.Background())
	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		session:   session,
		discord:   discord,
		engine:    services.Engine,
		settings:  services.Settings,
		lockdowns: services.Lockdowns,
		audit:     services.Audit,
		analytics: services.Analytics,
		retention: services.Retention,
		ctx:       ctx,
		stop:      stop,
	}
	if b.audit != nil {
		b.audit.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
			if !b.cfg.Notifications.AuditToChannel {
				return
			}
			b.notifyAudit(ctx, entry)
		})
	}
	return b
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.startRetention()
	return nil
}

// Close stops background jobs and the gateway connection. Queued events are
// left to the engine.
func (b *Bot) Close(ctx context.Context) {
	b.stop()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("background jobs still running at shutdown")
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.GuildID == "" {
		return
	}
	ev := messageEvent(msg.Message, b.authorPermissions(session, msg.Message))
	b.submit(ev)
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil || event.GuildID == "" {
		return
	}
	b.submit(engine.JoinEvent{GuildID: event.GuildID, UserID: event.User.ID})
}

func (b *Bot) submit(ev engine.Event) {
	if err := b.engine.Submit(b.ctx, ev); err != nil {
		if errors.Is(err, engine.ErrQueueClosed) || errors.Is(err, context.Canceled) {
			return
		}
		b.logger.Warn("event dropped", zap.String("guild_id", ev.Guild()), zap.Error(err))
	}
}

func messageEvent(msg *discordgo.Message, permissions int64) engine.MessageEvent {
	ev := engine.MessageEvent{
		GuildID:           msg.GuildID,
		ChannelID:         msg.ChannelID,
		MessageID:         msg.ID,
		Content:           msg.Content,
		AuthorPermissions: permissions,
	}
	if msg.Author != nil {
		ev.AuthorID = msg.Author.ID
	}
	return ev
}

// authorPermissions resolves the author's effective permissions in the
// channel. Unknown permissions count as none, so the message is moderated.
func (b *Bot) authorPermissions(session *discordgo.Session, msg *discordgo.Message) int64 {
	if msg.Member != nil && msg.Member.Permissions != 0 {
		return msg.Member.Permissions
	}
	if session == nil || session.State == nil {
		return 0
	}
	perms, err := session.State.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	if err != nil {
		b.logger.Debug("author permissions unavailable", zap.String("guild_id", msg.GuildID), zap.String("user_id", msg.Author.ID), zap.Error(err))
		return 0
	}
	return perms
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	if b.settings == nil || b.discord == nil {
		return
	}
	guild, err := b.settings.Get(ctx, entry.GuildID)
	if err != nil || guild == nil || guild.AlertChannelID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Engine.CallTimeout())
	defer cancel()
	if err := b.discord.postEmbed(ctx, guild.AlertChannelID, b.buildAuditEmbed(entry)); err != nil {
		b.logger.Debug("audit embed not delivered", zap.String("guild_id", entry.GuildID), zap.Error(err))
	}
}

func (b *Bot) buildAuditEmbed(entry storage.AuditLog) *discordgo.MessageEmbed {
	userValue := "<@" + entry.UserID + ">"
	if entry.UserID == "" {
		userValue = "system"
	}
	color := b.cfg.Notifications.EmbedColors.Action
	switch entry.Level {
	case audit.LevelWarn:
		color = b.cfg.Notifications.EmbedColors.Warning
	case audit.LevelCrit:
		color = b.cfg.Notifications.EmbedColors.Error
	}
	details := entry.Details
	if details == "" {
		details = "-"
	}
	return &discordgo.MessageEmbed{
		Title:     "Automod",
		Color:     color,
		Author:    embedAuthor(),
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Event", Value: entry.Event, Inline: false},
			{Name: "Level", Value: entry.Level, Inline: true},
			{Name: "User", Value: userValue, Inline: true},
			{Name: "Details", Value: details, Inline: false},
		},
	}
}

func embedAuthor() *discordgo.MessageEmbedAuthor {
	return &discordgo.MessageEmbedAuthor{Name: "Sentinel Automod"}
}

func (b *Bot) startRetention() {
	if b.retention == nil || b.cfg.RetentionDays <= 0 {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		timer := time.NewTimer(30 * time.Second)
		defer timer.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-timer.C:
				if err := b.retention.Cleanup(b.ctx, b.cfg.RetentionDays); err != nil {
					b.logger.Warn("retention cleanup failed", zap.Error(err))
				}
				timer.Reset(24 * time.Hour)
			}
		}
	}()
}
