package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sentinel-automod/internal/models"

	"github.com/bwmarrin/discordgo"
)

var errUnknownField = errors.New("unknown setting")

// settingFields lists what /automod set accepts, in display order.
var settingFields = []string{
	"profanity", "profanity_tier", "content_action",
	"invites",
	"spam", "spam_threshold", "spam_window_seconds", "spam_action",
	"mute_minutes",
	"anti_raid", "raid_threshold", "raid_window_seconds", "raid_action", "raid_lockdown_minutes",
	"notify_users", "alert_channel",
}

// applySetting parses value into the named field. The result is not validated
// here; the cache write rejects combinations that would disable a feature.
func applySetting(s *models.GuildModerationSettings, field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case "profanity":
		return parseToggle(value, &s.FilterProfanity)
	case "profanity_tier":
		tier, ok := models.ParseProfanityTier(value)
		if !ok {
			return fmt.Errorf("profanity_tier must be low, medium or high")
		}
		s.ProfanityThreshold = tier
	case "content_action":
		action, ok := models.ParseAction(value)
		if !ok {
			return fmt.Errorf("content_action must be delete, warn, mute, kick or ban")
		}
		s.ProfanityAction = action
	case "invites":
		return parseToggle(value, &s.FilterInvites)
	case "spam":
		return parseToggle(value, &s.FilterSpam)
	case "spam_threshold":
		return parseCount(value, &s.SpamThreshold)
	case "spam_window_seconds":
		return parseDuration(value, time.Second, &s.SpamWindow)
	case "spam_action":
		action, ok := models.ParseAction(value)
		if !ok {
			return fmt.Errorf("spam_action must be delete, warn, mute, kick or ban")
		}
		s.SpamAction = action
	case "mute_minutes":
		return parseDuration(value, time.Minute, &s.MuteDuration)
	case "anti_raid":
		return parseToggle(value, &s.AntiRaid)
	case "raid_threshold":
		return parseCount(value, &s.RaidThreshold)
	case "raid_window_seconds":
		return parseDuration(value, time.Second, &s.RaidWindow)
	case "raid_action":
		action, ok := models.ParseRaidAction(value)
		if !ok {
			return fmt.Errorf("raid_action must be lockdown or alert")
		}
		s.RaidAction = action
	case "raid_lockdown_minutes":
		return parseDuration(value, time.Minute, &s.RaidDuration)
	case "notify_users":
		return parseToggle(value, &s.NotifyUsers)
	case "alert_channel":
		s.AlertChannelID = strings.TrimSuffix(strings.TrimPrefix(value, "<#"), ">")
		if strings.EqualFold(s.AlertChannelID, "none") {
			s.AlertChannelID = ""
		}
	default:
		return fmt.Errorf("%w: %s", errUnknownField, field)
	}
	return nil
}

func parseToggle(value string, dst *bool) error {
	switch strings.ToLower(value) {
	case "on", "yes", "enable", "enabled":
		*dst = true
		return nil
	case "off", "no", "disable", "disabled":
		*dst = false
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("expected on or off, got %q", value)
	}
	*dst = parsed
	return nil
}

func parseCount(value string, dst *int) error {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fmt.Errorf("expected a non-negative whole number, got %q", value)
	}
	*dst = parsed
	return nil
}

func parseDuration(value string, unit time.Duration, dst *time.Duration) error {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fmt.Errorf("expected a non-negative whole number, got %q", value)
	}
	*dst = time.Duration(parsed) * unit
	return nil
}

func settingsFields(s *models.GuildModerationSettings) []*discordgo.MessageEmbedField {
	alert := "not set"
	if s.AlertChannelID != "" {
		alert = "<#" + s.AlertChannelID + ">"
	}
	lockFor := "until lifted"
	if s.RaidDuration > 0 {
		lockFor = s.RaidDuration.String()
	}
	return []*discordgo.MessageEmbedField{
		{Name: "Profanity", Value: fmt.Sprintf("%s (%s, %s)", enabledLabel(s.ProfanityEnabled()), s.ProfanityThreshold, s.ProfanityAction), Inline: true},
		{Name: "Invites", Value: enabledLabel(s.InvitesEnabled()), Inline: true},
		{Name: "Spam", Value: fmt.Sprintf("%s (%d in %s, %s)", enabledLabel(s.SpamEnabled()), s.SpamThreshold, s.SpamWindow, s.SpamAction), Inline: true},
		{Name: "Mute", Value: s.MuteDuration.String(), Inline: true},
		{Name: "Anti-raid", Value: fmt.Sprintf("%s (%d in %s, %s for %s)", enabledLabel(s.RaidEnabled()), s.RaidThreshold, s.RaidWindow, s.RaidAction, lockFor), Inline: true},
		{Name: "Notify users", Value: enabledLabel(s.NotifyUsers), Inline: true},
		{Name: "Alert channel", Value: alert, Inline: true},
	}
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
