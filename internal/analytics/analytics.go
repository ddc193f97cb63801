package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sentinel-automod/internal/models"
)

type ViolationLister interface {
	ListViolations(ctx context.Context, guildID string, since time.Time) ([]models.ViolationEvent, error)
}

type Service struct {
	store ViolationLister
}

func New(store ViolationLister) *Service {
	return &Service{store: store}
}

type Report struct {
	Since    time.Time
	Total    int
	Failed   int
	ByType   map[models.ViolationType]int
	ByAction map[string]int
	// TopUsers holds up to five offenders, most events first.
	TopUsers []UserCount
}

type UserCount struct {
	UserID string
	Count  int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	events, err := s.store.ListViolations(ctx, guildID, since)
	if err != nil {
		return Report{}, fmt.Errorf("list violations: %w", err)
	}

	report := Report{
		Since:    since,
		ByType:   make(map[models.ViolationType]int),
		ByAction: make(map[string]int),
	}
	perUser := make(map[string]int)
	for _, event := range events {
		report.Total++
		if event.ActionTaken == models.ActionTakenFailed {
			report.Failed++
		}
		report.ByAction[event.ActionTaken]++
		for _, kind := range event.Violations {
			report.ByType[kind]++
		}
		if event.UserID != "" {
			perUser[event.UserID]++
		}
	}

	for userID, count := range perUser {
		report.TopUsers = append(report.TopUsers, UserCount{UserID: userID, Count: count})
	}
	sort.Slice(report.TopUsers, func(i, j int) bool {
		if report.TopUsers[i].Count != report.TopUsers[j].Count {
			return report.TopUsers[i].Count > report.TopUsers[j].Count
		}
		return report.TopUsers[i].UserID < report.TopUsers[j].UserID
	})
	if len(report.TopUsers) > 5 {
		report.TopUsers = report.TopUsers[:5]
	}
	return report, nil
}

// Summary renders the report as a single line, types and actions in name order.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d | Failed: %d", r.Total, r.Failed)

	types := make([]string, 0, len(r.ByType))
	for kind := range r.ByType {
		types = append(types, string(kind))
	}
	sort.Strings(types)
	for _, kind := range types {
		fmt.Fprintf(&b, " | %s: %d", kind, r.ByType[models.ViolationType(kind)])
	}

	actions := make([]string, 0, len(r.ByAction))
	for action := range r.ByAction {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	for _, action := range actions {
		fmt.Fprintf(&b, " | %s: %d", action, r.ByAction[action])
	}
	return b.String()
}
