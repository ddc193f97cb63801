package models

import (
	"strings"
	"time"
)

type ViolationType string

const (
	ViolationProfanity ViolationType = "profanity"
	ViolationInvite    ViolationType = "invite_link"
	ViolationSpam      ViolationType = "spam"
	ViolationRaid      ViolationType = "raid"
)

const (
	ActionTakenFailed        = "failed"
	ActionTakenAlreadyLocked = "already_locked"
	ActionTakenLockdown      = "lockdown"
	ActionTakenAlert         = "alert"
)

const MaxContentRunes = 200

// ViolationEvent is the write-once audit record emitted for every enforcement
// decision.
type ViolationEvent struct {
	ID            string
	GuildID       string
	UserID        string
	ChannelID     string
	MessageID     string
	Violations    []ViolationType
	ActionTaken   string
	FailureReason string
	WarningCount  int
	Timestamp     time.Time
	Content       string
}

func (e ViolationEvent) Has(kind ViolationType) bool {
	for _, v := range e.Violations {
		if v == kind {
			return true
		}
	}
	return false
}

func JoinViolations(kinds []ViolationType) string {
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, string(kind))
	}
	return strings.Join(parts, ",")
}

func SplitViolations(value string) []ViolationType {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	kinds := make([]ViolationType, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kinds = append(kinds, ViolationType(part))
		}
	}
	return kinds
}

func TruncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= MaxContentRunes {
		return content
	}
	return string(runes[:MaxContentRunes-1]) + "…"
}
