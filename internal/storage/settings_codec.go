package storage

import (
	"time"

	"sentinel-automod/internal/models"
)

// settingsRecord is the at-rest shape of guild settings shared by every
// backend. Durations are kept in milliseconds.
type settingsRecord struct {
	GuildID            string `json:"guildId"`
	FilterProfanity    bool   `json:"filterProfanity"`
	ProfanityThreshold string `json:"profanityThreshold"`
	ProfanityAction    string `json:"profanityAction"`
	FilterInvites      bool   `json:"filterInvites"`
	FilterSpam         bool   `json:"filterSpam"`
	SpamThreshold      int    `json:"spamThreshold"`
	SpamWindowMs       int64  `json:"spamWindowMs"`
	SpamAction         string `json:"spamAction"`
	MuteDurationMs     int64  `json:"muteDurationMs"`
	AntiRaid           bool   `json:"antiRaid"`
	RaidThreshold      int    `json:"raidThreshold"`
	RaidWindowMs       int64  `json:"raidWindowMs"`
	RaidAction         string `json:"raidAction"`
	RaidDurationMs     int64  `json:"raidDurationMs"`
	NotifyUsers        bool   `json:"notifyUsers"`
	AlertChannelID     string `json:"alertChannelId"`
}

func recordFromSettings(s *models.GuildModerationSettings) settingsRecord {
	return settingsRecord{
		GuildID:            s.GuildID,
		FilterProfanity:    s.FilterProfanity,
		ProfanityThreshold: string(s.ProfanityThreshold),
		ProfanityAction:    string(s.ProfanityAction),
		FilterInvites:      s.FilterInvites,
		FilterSpam:         s.FilterSpam,
		SpamThreshold:      s.SpamThreshold,
		SpamWindowMs:       s.SpamWindow.Milliseconds(),
		SpamAction:         string(s.SpamAction),
		MuteDurationMs:     s.MuteDuration.Milliseconds(),
		AntiRaid:           s.AntiRaid,
		RaidThreshold:      s.RaidThreshold,
		RaidWindowMs:       s.RaidWindow.Milliseconds(),
		RaidAction:         string(s.RaidAction),
		RaidDurationMs:     s.RaidDuration.Milliseconds(),
		NotifyUsers:        s.NotifyUsers,
		AlertChannelID:     s.AlertChannelID,
	}
}

// settings does not validate; unusable values surface as disabled features.
func (r settingsRecord) settings() *models.GuildModerationSettings {
	return &models.GuildModerationSettings{
		GuildID:            r.GuildID,
		FilterProfanity:    r.FilterProfanity,
		ProfanityThreshold: models.ProfanityTier(r.ProfanityThreshold),
		ProfanityAction:    models.Action(r.ProfanityAction),
		FilterInvites:      r.FilterInvites,
		FilterSpam:         r.FilterSpam,
		SpamThreshold:      r.SpamThreshold,
		SpamWindow:         time.Duration(r.SpamWindowMs) * time.Millisecond,
		SpamAction:         models.Action(r.SpamAction),
		MuteDuration:       time.Duration(r.MuteDurationMs) * time.Millisecond,
		AntiRaid:           r.AntiRaid,
		RaidThreshold:      r.RaidThreshold,
		RaidWindow:         time.Duration(r.RaidWindowMs) * time.Millisecond,
		RaidAction:         models.RaidAction(r.RaidAction),
		RaidDuration:       time.Duration(r.RaidDurationMs) * time.Millisecond,
		NotifyUsers:        r.NotifyUsers,
		AlertChannelID:     r.AlertChannelID,
	}
}
