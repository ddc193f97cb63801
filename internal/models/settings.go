package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionDelete Action = "delete"
	ActionWarn   Action = "warn"
	ActionMute   Action = "mute"
	ActionKick   Action = "kick"
	ActionBan    Action = "ban"
)

func ParseAction(value string) (Action, bool) {
	switch action := Action(strings.ToLower(strings.TrimSpace(value))); action {
	case ActionDelete, ActionWarn, ActionMute, ActionKick, ActionBan:
		return action, true
	default:
		return "", false
	}
}

func (a Action) Valid() bool {
	_, ok := ParseAction(string(a))
	return ok
}

type RaidAction string

const (
	RaidActionLockdown RaidAction = "lockdown"
	RaidActionAlert    RaidAction = "alert"
)

func ParseRaidAction(value string) (RaidAction, bool) {
	switch action := RaidAction(strings.ToLower(strings.TrimSpace(value))); action {
	case RaidActionLockdown, RaidActionAlert:
		return action, true
	default:
		return "", false
	}
}

type ProfanityTier string

const (
	TierLow    ProfanityTier = "low"
	TierMedium ProfanityTier = "medium"
	TierHigh   ProfanityTier = "high"
)

func ParseProfanityTier(value string) (ProfanityTier, bool) {
	switch tier := ProfanityTier(strings.ToLower(strings.TrimSpace(value))); tier {
	case TierLow, TierMedium, TierHigh:
		return tier, true
	default:
		return "", false
	}
}

var ErrInvalidSettings = errors.New("invalid moderation settings")

// GuildModerationSettings is the per-guild automod configuration. A feature is
// active only when its flag is set and every value it depends on is usable;
// see the *Enabled predicates.
type GuildModerationSettings struct {
	GuildID string

	FilterProfanity    bool
	ProfanityThreshold ProfanityTier
	ProfanityAction    Action

	FilterInvites bool

	FilterSpam    bool
	SpamThreshold int
	SpamWindow    time.Duration
	SpamAction    Action

	MuteDuration time.Duration

	AntiRaid      bool
	RaidThreshold int
	RaidWindow    time.Duration
	RaidAction    RaidAction
	// RaidDuration of zero keeps a raid lockdown until it is lifted by hand.
	RaidDuration time.Duration

	NotifyUsers    bool
	AlertChannelID string
}

func (s *GuildModerationSettings) ProfanityEnabled() bool {
	if s == nil || !s.FilterProfanity {
		return false
	}
	if _, ok := ParseProfanityTier(string(s.ProfanityThreshold)); !ok {
		return false
	}
	return s.contentActionUsable()
}

// InvitesEnabled shares the content action with the profanity filter.
func (s *GuildModerationSettings) InvitesEnabled() bool {
	if s == nil || !s.FilterInvites {
		return false
	}
	return s.contentActionUsable()
}

func (s *GuildModerationSettings) SpamEnabled() bool {
	if s == nil || !s.FilterSpam {
		return false
	}
	if s.SpamThreshold <= 0 || s.SpamWindow <= 0 || !s.SpamAction.Valid() {
		return false
	}
	return s.SpamAction != ActionMute || s.MuteDuration > 0
}

func (s *GuildModerationSettings) RaidEnabled() bool {
	if s == nil || !s.AntiRaid {
		return false
	}
	if s.RaidThreshold <= 0 || s.RaidWindow <= 0 || s.RaidDuration < 0 {
		return false
	}
	_, ok := ParseRaidAction(string(s.RaidAction))
	return ok
}

func (s *GuildModerationSettings) ContentAction() Action {
	return s.ProfanityAction
}

func (s *GuildModerationSettings) contentActionUsable() bool {
	if !s.ProfanityAction.Valid() {
		return false
	}
	return s.ProfanityAction != ActionMute || s.MuteDuration > 0
}

// Validate reports every enabled feature whose configuration would leave it
// disabled, so an admin write can be rejected instead of silently ignored.
func (s *GuildModerationSettings) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil settings", ErrInvalidSettings)
	}
	if s.GuildID == "" {
		return fmt.Errorf("%w: missing guild id", ErrInvalidSettings)
	}

	var problems []string
	if s.FilterProfanity && !s.ProfanityEnabled() {
		problems = append(problems, "profanity filter needs a tier and a usable action")
	}
	if s.FilterInvites && !s.InvitesEnabled() {
		problems = append(problems, "invite filter needs a usable content action")
	}
	if s.FilterSpam && !s.SpamEnabled() {
		problems = append(problems, "spam filter needs a positive threshold, window and a usable action")
	}
	if s.AntiRaid && !s.RaidEnabled() {
		problems = append(problems, "anti-raid needs a positive threshold, window and lockdown|alert")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// Preset returns the rule preset for a guild. Unknown names fall back to medium.
func Preset(guildID, name string) GuildModerationSettings {
	settings := GuildModerationSettings{
		GuildID:            guildID,
		FilterProfanity:    true,
		ProfanityThreshold: TierMedium,
		ProfanityAction:    ActionDelete,
		FilterInvites:      true,
		FilterSpam:         true,
		SpamThreshold:      6,
		SpamWindow:         8 * time.Second,
		SpamAction:         ActionMute,
		MuteDuration:       10 * time.Minute,
		AntiRaid:           true,
		RaidThreshold:      6,
		RaidWindow:         10 * time.Second,
		RaidAction:         RaidActionAlert,
		RaidDuration:       15 * time.Minute,
		NotifyUsers:        true,
	}

	switch strings.ToLower(name) {
	case "low":
		settings.ProfanityThreshold = TierLow
		settings.SpamThreshold = 8
		settings.RaidThreshold = 8
		settings.SpamAction = ActionDelete
	case "high":
		settings.ProfanityThreshold = TierHigh
		settings.ProfanityAction = ActionWarn
		settings.SpamThreshold = 4
		settings.RaidThreshold = 4
		settings.RaidAction = RaidActionLockdown
		settings.MuteDuration = 30 * time.Minute
	}
	return settings
}
