package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"daygrid/api/internal/rbac"
	"daygrid/api/internal/store"
)

// Store is the persistence surface reconciliation needs.
type Store interface {
	ListTemplateDocs(ctx context.Context) ([]store.TemplateDoc, error)
	ReplaceTemplateContent(ctx context.Context, id string, readAt time.Time, content []byte) (bool, error)
	ActiveTemplateCounts(ctx context.Context) (map[string]int, error)
	MaxTemplateVersion(ctx context.Context, role string) (int, error)
	ActivateTemplate(ctx context.Context, role string, version int) error
	HasLegacyUserData(ctx context.Context) (bool, error)
	MigrateLegacyUserData(ctx context.Context) (int64, error)
}

// Report summarizes one reconciliation pass.
type Report struct {
	TemplatesExamined  int
	TemplatesRewritten int
	Malformed          int
	SkippedConflicts   int
	RolesRepaired      []string
	LegacyRowsMigrated int64
}

// Runner performs one reconciliation pass over the store. Every step is
// idempotent, so a crashed or repeated run is harmless.
type Runner struct {
	store Store
}

func NewRunner(st Store) *Runner {
	return &Runner{store: st}
}

// Run normalizes template documents, repairs active-flag drift, and
// migrates the legacy user_data table when present.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var report Report

	if err := r.normalizeTemplates(ctx, &report); err != nil {
		return report, err
	}
	if err := r.repairActiveFlags(ctx, &report); err != nil {
		return report, err
	}
	if err := r.migrateLegacyData(ctx, &report); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) normalizeTemplates(ctx context.Context, report *Report) error {
	docs, err := r.store.ListTemplateDocs(ctx)
	if err != nil {
		return fmt.Errorf("list template documents: %w", err)
	}
	report.TemplatesExamined = len(docs)

	for _, doc := range docs {
		normalized, changed, err := NormalizeTemplateDocument(doc.Content)
		if err != nil {
			// A malformed row is logged and left for a human; rewriting a
			// document we cannot parse would destroy whatever it held.
			log.Printf("reconcile: template %s (role=%s v=%d) malformed: %v", doc.ID, doc.Role, doc.Version, err)
			report.Malformed++
			continue
		}
		if !changed {
			continue
		}

		ok, err := r.store.ReplaceTemplateContent(ctx, doc.ID, doc.UpdatedAt, normalized)
		if err != nil {
			return fmt.Errorf("rewrite template %s: %w", doc.ID, err)
		}
		if !ok {
			// Someone wrote the row between our read and the rewrite. The
			// next pass will pick it up.
			log.Printf("reconcile: template %s changed underneath us, skipping", doc.ID)
			report.SkippedConflicts++
			continue
		}
		log.Printf("reconcile: normalized template %s (role=%s v=%d)", doc.ID, doc.Role, doc.Version)
		report.TemplatesRewritten++
	}
	return nil
}

func (r *Runner) repairActiveFlags(ctx context.Context, report *Report) error {
	counts, err := r.store.ActiveTemplateCounts(ctx)
	if err != nil {
		return fmt.Errorf("count active templates: %w", err)
	}

	for _, role := range []rbac.Role{rbac.RolePublic, rbac.RolePremium, rbac.RoleAdmin} {
		name := string(role)
		if counts[name] == 1 {
			continue
		}
		max, err := r.store.MaxTemplateVersion(ctx, name)
		if err != nil {
			return fmt.Errorf("max version for %s: %w", name, err)
		}
		if max == 0 {
			// No templates for this role at all. Nothing to activate.
			continue
		}
		if err := r.store.ActivateTemplate(ctx, name, max); err != nil {
			return fmt.Errorf("repair active flag for %s: %w", name, err)
		}
		log.Printf("reconcile: role %s had %d active templates, forced v%d active", name, counts[name], max)
		report.RolesRepaired = append(report.RolesRepaired, name)
	}
	return nil
}

func (r *Runner) migrateLegacyData(ctx context.Context, report *Report) error {
	present, err := r.store.HasLegacyUserData(ctx)
	if err != nil {
		return fmt.Errorf("check legacy user_data: %w", err)
	}
	if !present {
		return nil
	}
	migrated, err := r.store.MigrateLegacyUserData(ctx)
	if err != nil {
		return fmt.Errorf("migrate legacy user_data: %w", err)
	}
	if migrated > 0 {
		log.Printf("reconcile: migrated %d legacy user_data rows into day_entries", migrated)
	}
	report.LegacyRowsMigrated = migrated
	return nil
}
