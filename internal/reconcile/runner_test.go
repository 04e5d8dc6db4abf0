package reconcile

import (
	"context"
	"testing"
	"time"

	"daygrid/api/internal/store"
)

type fakeStore struct {
	docs           []store.TemplateDoc
	rewritten      map[string][]byte
	rejectRewrites bool
	activeCounts   map[string]int
	maxVersions    map[string]int
	activated      []string
	hasLegacy      bool
	legacyMigrated int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rewritten:    make(map[string][]byte),
		activeCounts: map[string]int{"public": 1, "premium": 1, "admin": 1},
		maxVersions:  map[string]int{},
	}
}

func (f *fakeStore) ListTemplateDocs(ctx context.Context) ([]store.TemplateDoc, error) {
	return f.docs, nil
}

func (f *fakeStore) ReplaceTemplateContent(ctx context.Context, id string, readAt time.Time, content []byte) (bool, error) {
	if f.rejectRewrites {
		return false, nil
	}
	f.rewritten[id] = content
	return true, nil
}

func (f *fakeStore) ActiveTemplateCounts(ctx context.Context) (map[string]int, error) {
	return f.activeCounts, nil
}

func (f *fakeStore) MaxTemplateVersion(ctx context.Context, role string) (int, error) {
	return f.maxVersions[role], nil
}

func (f *fakeStore) ActivateTemplate(ctx context.Context, role string, version int) error {
	f.activated = append(f.activated, role)
	f.activeCounts[role] = 1
	return nil
}

func (f *fakeStore) HasLegacyUserData(ctx context.Context) (bool, error) {
	return f.hasLegacy, nil
}

func (f *fakeStore) MigrateLegacyUserData(ctx context.Context) (int64, error) {
	return f.legacyMigrated, nil
}

func TestRunnerNormalizesDriftedTemplates(t *testing.T) {
	fs := newFakeStore()
	fs.docs = []store.TemplateDoc{
		{
			ID: "tpl-ok", Role: "public", Version: 1, UpdatedAt: time.Now(),
			Content: []byte(`{"masterChecklist":[],"habitBreakChecklist":[],"workoutChecklist":[],"timeBlocks":[]}`),
		},
		{
			ID: "tpl-wrapped", Role: "public", Version: 2, UpdatedAt: time.Now(),
			Content: []byte(`{"content":{"masterChecklist":[{"id":"m1","text":"Drink water","category":"morning","completed":false}]}}`),
		},
		{
			ID: "tpl-broken", Role: "premium", Version: 1, UpdatedAt: time.Now(),
			Content: []byte(`not json at all`),
		},
	}

	report, err := NewRunner(fs).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.TemplatesExamined != 3 {
		t.Errorf("examined = %d, want 3", report.TemplatesExamined)
	}
	if report.TemplatesRewritten != 1 {
		t.Errorf("rewritten = %d, want 1", report.TemplatesRewritten)
	}
	if report.Malformed != 1 {
		t.Errorf("malformed = %d, want 1", report.Malformed)
	}
	if _, ok := fs.rewritten["tpl-ok"]; ok {
		t.Error("canonical template was rewritten")
	}
	if _, ok := fs.rewritten["tpl-wrapped"]; !ok {
		t.Error("wrapper template was not rewritten")
	}
}

func TestRunnerSkipsConcurrentlyModifiedTemplates(t *testing.T) {
	fs := newFakeStore()
	fs.rejectRewrites = true
	fs.docs = []store.TemplateDoc{
		{
			ID: "tpl-wrapped", Role: "public", Version: 1, UpdatedAt: time.Now(),
			Content: []byte(`{"content":{"masterChecklist":[]}}`),
		},
	}

	report, err := NewRunner(fs).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.SkippedConflicts != 1 {
		t.Errorf("skipped = %d, want 1", report.SkippedConflicts)
	}
	if report.TemplatesRewritten != 0 {
		t.Errorf("rewritten = %d, want 0", report.TemplatesRewritten)
	}
}

func TestRunnerRepairsActiveFlagDrift(t *testing.T) {
	fs := newFakeStore()
	fs.activeCounts = map[string]int{"public": 0, "premium": 2, "admin": 1}
	fs.maxVersions = map[string]int{"public": 4, "premium": 7}

	report, err := NewRunner(fs).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(report.RolesRepaired) != 2 {
		t.Fatalf("roles repaired = %v, want public and premium", report.RolesRepaired)
	}
	if fs.activated[0] != "public" || fs.activated[1] != "premium" {
		t.Errorf("activated = %v", fs.activated)
	}
}

func TestRunnerSkipsRolesWithoutTemplates(t *testing.T) {
	fs := newFakeStore()
	fs.activeCounts = map[string]int{"public": 1, "premium": 0, "admin": 0}
	// premium and admin have no templates at all, nothing to force active.

	report, err := NewRunner(fs).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(report.RolesRepaired) != 0 {
		t.Errorf("roles repaired = %v, want none", report.RolesRepaired)
	}
	if len(fs.activated) != 0 {
		t.Errorf("activated = %v, want none", fs.activated)
	}
}

func TestRunnerMigratesLegacyData(t *testing.T) {
	fs := newFakeStore()
	fs.hasLegacy = true
	fs.legacyMigrated = 42

	report, err := NewRunner(fs).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.LegacyRowsMigrated != 42 {
		t.Errorf("migrated = %d, want 42", report.LegacyRowsMigrated)
	}

	fs2 := newFakeStore()
	report, err = NewRunner(fs2).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.LegacyRowsMigrated != 0 {
		t.Errorf("migrated = %d, want 0 when table absent", report.LegacyRowsMigrated)
	}
}
