// Package alerting turns engine event notices into stored alerts.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glendonC/mallards/internal/contracts"
)

type Store interface {
	HasOpenAlertForEvent(ctx context.Context, eventID string) (bool, error)
	HasOpenAlertInCooldown(ctx context.Context, datasetID, groupKey string, cooldown time.Duration) (bool, error)
	InsertAlert(ctx context.Context, alert contracts.AlertRecord) error
}

type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeFiltered  Outcome = "filtered"
	OutcomeCooldown  Outcome = "cooldown"
	OutcomeDuplicate Outcome = "duplicate"
)

type Service struct {
	Store       Store
	MinSeverity contracts.Severity
	Cooldown    time.Duration
	Log         *slog.Logger
}

// Qualifies reports whether a notice should raise an alert: only active
// events at or above the minimum severity do.
func (s *Service) Qualifies(n contracts.EventNotice) bool {
	if n.Event.Status != contracts.EventActive {
		return false
	}
	return n.Event.Severity.Rank() >= s.MinSeverity.Rank()
}

// Handle stores an alert for a qualifying notice unless the event already
// has an open or acknowledged alert, or an alert for the same dataset and
// group is still in cooldown. Active events are republished on every
// recompute, so the event check outlives the cooldown.
func (s *Service) Handle(ctx context.Context, n contracts.EventNotice) (Outcome, error) {
	if !s.Qualifies(n) {
		return OutcomeFiltered, nil
	}

	dup, err := s.Store.HasOpenAlertForEvent(ctx, n.Event.ID)
	if err != nil {
		return "", err
	}
	if dup {
		return OutcomeDuplicate, nil
	}

	exists, err := s.Store.HasOpenAlertInCooldown(ctx, n.DatasetID, n.GroupKey, s.Cooldown)
	if err != nil {
		return "", err
	}
	if exists {
		return OutcomeCooldown, nil
	}

	alert := Build(n)
	if err := s.Store.InsertAlert(ctx, alert); err != nil {
		return "", err
	}
	if s.Log != nil {
		s.Log.Info("alert created", "id", alert.ID, "dataset", alert.DatasetID, "group", alert.GroupKey, "severity", alert.Severity, "intensity", alert.Intensity)
	}
	return OutcomeCreated, nil
}

// Build renders the alert for a notice.
func Build(n contracts.EventNotice) contracts.AlertRecord {
	scope := n.DatasetID
	if n.GroupKey != "" {
		scope = n.DatasetID + " (" + n.GroupKey + ")"
	}
	ev := n.Event
	desc := fmt.Sprintf("%s event since %s, intensity %.2f, trend %s",
		n.TimeRange, ev.Start.UTC().Format(time.RFC3339), ev.Intensity, ev.Trend)
	return contracts.AlertRecord{
		ID:          uuid.NewString(),
		EventID:     ev.ID,
		DatasetID:   n.DatasetID,
		GroupKey:    n.GroupKey,
		Title:       fmt.Sprintf("%s %s deviation in %s", titleCase(string(ev.Severity)), n.Detector, scope),
		Description: desc,
		Intensity:   ev.Intensity,
		Severity:    string(ev.Severity),
		Status:      "open",
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
