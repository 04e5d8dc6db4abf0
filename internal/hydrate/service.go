// Package hydrate materializes a user's day entry on first access. A day
// entry is created exactly once per (user, date): either it already exists
// and is returned untouched, or it is seeded from the role's active
// template with every item incomplete. Template changes after seeding never
// reach back into existing entries.
package hydrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daygrid/api/internal/observability"
	"daygrid/api/internal/rbac"
	"daygrid/api/internal/store"
)

// ErrInvalidDate is returned when date is not a strict YYYY-MM-DD calendar day.
var ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

// ErrInvalidRole is returned when role is not one of the known roles.
var ErrInvalidRole = errors.New("unknown role")

// DayStore is the persistence surface hydration needs. InsertDayEntry must
// be conditional on (userID, date): it reports false without error when a
// row already exists.
type DayStore interface {
	GetDayEntry(ctx context.Context, userID, date string) (store.DayEntry, error)
	InsertDayEntry(ctx context.Context, entry store.DayEntry) (bool, error)
}

// TemplateSource resolves the active template for a role. It is expected to
// return templates.ErrNoActiveTemplate when the role has none; that error
// is propagated unwrapped so callers can map it to a configuration failure.
type TemplateSource interface {
	ActiveTemplate(ctx context.Context, role string) (store.ContentTemplate, error)
}

type Service struct {
	days      DayStore
	templates TemplateSource
}

func NewService(days DayStore, templates TemplateSource) *Service {
	return &Service{days: days, templates: templates}
}

// Hydrate returns the day entry for (userID, date), seeding it from the
// role's active template when absent. Validation happens before any store
// access. Concurrent first requests for the same day are safe: exactly one
// seed row wins and every caller sees it.
func (s *Service) Hydrate(ctx context.Context, userID, role, date string) (store.DayEntry, error) {
	if err := ValidateDate(date); err != nil {
		return store.DayEntry{}, err
	}
	if !rbac.Known(role) {
		return store.DayEntry{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	entry, err := s.days.GetDayEntry(ctx, userID, date)
	if err == nil {
		observability.RecordHydration("existing")
		return entry, nil
	}
	if !store.IsNotFound(err) {
		return store.DayEntry{}, fmt.Errorf("load day entry: %w", err)
	}

	tpl, err := s.templates.ActiveTemplate(ctx, role)
	if err != nil {
		return store.DayEntry{}, err
	}

	inserted, err := s.days.InsertDayEntry(ctx, SeedFromTemplate(userID, date, tpl))
	if err != nil {
		return store.DayEntry{}, fmt.Errorf("seed day entry: %w", err)
	}
	if !inserted {
		// Lost a concurrent seed race. The winner's row is equivalent to
		// ours, so re-read it and return that.
		observability.RecordSeedConflict()
	}

	entry, err = s.days.GetDayEntry(ctx, userID, date)
	if err != nil {
		return store.DayEntry{}, fmt.Errorf("reload seeded day entry: %w", err)
	}
	if inserted {
		observability.RecordHydration("seeded")
	} else {
		observability.RecordHydration("existing")
	}
	return entry, nil
}

// ValidateDate enforces strict YYYY-MM-DD. Parse alone accepts what Format
// would not reproduce for some layouts, so the round-trip check keeps the
// accepted set exactly equal to the canonical form.
func ValidateDate(date string) error {
	t, err := time.Parse("2006-01-02", date)
	if err != nil || t.Format("2006-01-02") != date {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// SeedFromTemplate builds a fresh day entry from a template. Item and block
// IDs carry over unchanged, completion state starts cleared, and the
// user-authored fields start empty.
func SeedFromTemplate(userID, date string, tpl store.ContentTemplate) store.DayEntry {
	return store.DayEntry{
		UserID:              userID,
		Date:                date,
		MasterChecklist:     freshItems(tpl.Content.MasterChecklist),
		HabitBreakChecklist: freshItems(tpl.Content.HabitBreakChecklist),
		WorkoutChecklist:    freshItems(tpl.Content.WorkoutChecklist),
		TimeBlocks:          copyBlocks(tpl.Content.TimeBlocks),
		TodoList:            []store.TodoItem{},
		Notes:               "",
		TemplateID:          tpl.ID,
	}
}

func freshItems(items []store.ChecklistItem) []store.ChecklistItem {
	out := make([]store.ChecklistItem, len(items))
	for i, item := range items {
		out[i] = store.ChecklistItem{
			ID:       item.ID,
			Text:     item.Text,
			Category: item.Category,
		}
	}
	return out
}

func copyBlocks(blocks []store.TimeBlock) []store.TimeBlock {
	out := make([]store.TimeBlock, len(blocks))
	for i, block := range blocks {
		activities := make([]string, len(block.Activities))
		copy(activities, block.Activities)
		out[i] = store.TimeBlock{
			ID:         block.ID,
			Hour:       block.Hour,
			Label:      block.Label,
			Activities: activities,
		}
	}
	return out
}
