package templates

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"daygrid/api/internal/store"
)

type fakeStore struct {
	insertTemplateVersion func(ctx context.Context, tpl store.ContentTemplate) (int, error)
	getActiveTemplate     func(ctx context.Context, role string) (store.ContentTemplate, error)
	getTemplate           func(ctx context.Context, role string, version int) (store.ContentTemplate, error)
	listTemplates         func(ctx context.Context, role string) ([]store.ContentTemplate, error)
	activateTemplate      func(ctx context.Context, role string, version int) error
}

func (f *fakeStore) InsertTemplateVersion(ctx context.Context, tpl store.ContentTemplate) (int, error) {
	return f.insertTemplateVersion(ctx, tpl)
}

func (f *fakeStore) GetActiveTemplate(ctx context.Context, role string) (store.ContentTemplate, error) {
	return f.getActiveTemplate(ctx, role)
}

func (f *fakeStore) GetTemplate(ctx context.Context, role string, version int) (store.ContentTemplate, error) {
	return f.getTemplate(ctx, role, version)
}

func (f *fakeStore) ListTemplates(ctx context.Context, role string) ([]store.ContentTemplate, error) {
	return f.listTemplates(ctx, role)
}

func (f *fakeStore) ActivateTemplate(ctx context.Context, role string, version int) error {
	return f.activateTemplate(ctx, role, version)
}

func validContent() store.TemplateContent {
	return store.TemplateContent{
		MasterChecklist: []store.ChecklistItem{
			{ID: "m1", Text: "Drink water", Category: "morning"},
			{ID: "m2", Text: "Stretch", Category: "morning"},
		},
		HabitBreakChecklist: []store.ChecklistItem{
			{ID: "h1", Text: "No phone before breakfast", Category: "lsd"},
		},
		WorkoutChecklist: []store.ChecklistItem{
			{ID: "w1", Text: "Push-ups", Category: "strength"},
		},
		TimeBlocks: []store.TimeBlock{
			{ID: "t6", Hour: 6, Label: "6:00 AM", Activities: []string{"Wake up"}},
		},
	}
}

func TestCreateVersionValidation(t *testing.T) {
	svc := NewService(&fakeStore{}, nil, time.Minute)
	ctx := context.Background()

	cases := []struct {
		name    string
		role    string
		mutate  func(*store.TemplateContent)
		wantErr string
	}{
		{
			name:    "unknown role",
			role:    "superuser",
			mutate:  func(c *store.TemplateContent) {},
			wantErr: "unknown role",
		},
		{
			name: "empty item id",
			role: "public",
			mutate: func(c *store.TemplateContent) {
				c.MasterChecklist[0].ID = " "
			},
			wantErr: "empty id",
		},
		{
			name: "empty item text",
			role: "public",
			mutate: func(c *store.TemplateContent) {
				c.WorkoutChecklist[0].Text = ""
			},
			wantErr: "empty text",
		},
		{
			name: "duplicate item id within list",
			role: "public",
			mutate: func(c *store.TemplateContent) {
				c.MasterChecklist[1].ID = "m1"
			},
			wantErr: "duplicate item id",
		},
		{
			name: "time block hour out of range",
			role: "public",
			mutate: func(c *store.TemplateContent) {
				c.TimeBlocks[0].Hour = 24
			},
			wantErr: "out of range",
		},
		{
			name: "duplicate time block id",
			role: "public",
			mutate: func(c *store.TemplateContent) {
				c.TimeBlocks = append(c.TimeBlocks, store.TimeBlock{ID: "t6", Hour: 7, Label: "7:00 AM"})
			},
			wantErr: "duplicate time block id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			content := validContent()
			tc.mutate(&content)
			_, err := svc.CreateVersion(ctx, tc.role, content)
			var invalid *ErrInvalidTemplate
			if !errors.As(err, &invalid) {
				t.Fatalf("expected ErrInvalidTemplate, got %v", err)
			}
			if !strings.Contains(invalid.Reason, tc.wantErr) {
				t.Errorf("reason = %q, want it to mention %q", invalid.Reason, tc.wantErr)
			}
		})
	}
}

func TestCreateVersionPreservesItemIDs(t *testing.T) {
	var inserted store.ContentTemplate
	fs := &fakeStore{
		insertTemplateVersion: func(ctx context.Context, tpl store.ContentTemplate) (int, error) {
			inserted = tpl
			return 3, nil
		},
		getTemplate: func(ctx context.Context, role string, version int) (store.ContentTemplate, error) {
			tpl := inserted
			tpl.ID = "tpl-1"
			tpl.Version = version
			return tpl, nil
		},
	}
	svc := NewService(fs, nil, time.Minute)

	created, err := svc.CreateVersion(context.Background(), "public", validContent())
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	if created.Version != 3 {
		t.Errorf("version = %d, want 3", created.Version)
	}
	if created.IsActive {
		t.Error("new version must not be active until explicitly activated")
	}
	if created.Content.MasterChecklist[0].ID != "m1" {
		t.Errorf("item id rewritten to %q, want m1", created.Content.MasterChecklist[0].ID)
	}
}

func TestActiveTemplateCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	storeCalls := 0
	fs := &fakeStore{
		getActiveTemplate: func(ctx context.Context, role string) (store.ContentTemplate, error) {
			storeCalls++
			return store.ContentTemplate{ID: "tpl-1", Role: role, Version: 1, IsActive: true, Content: validContent()}, nil
		},
		activateTemplate: func(ctx context.Context, role string, version int) error {
			return nil
		},
	}
	svc := NewService(fs, cache, time.Minute)
	ctx := context.Background()

	first, err := svc.ActiveTemplate(ctx, "public")
	if err != nil {
		t.Fatalf("first lookup failed: %v", err)
	}
	second, err := svc.ActiveTemplate(ctx, "public")
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if storeCalls != 1 {
		t.Errorf("store calls = %d, want 1 (second lookup should hit cache)", storeCalls)
	}
	if first.ID != second.ID || second.Content.MasterChecklist[0].Text != "Drink water" {
		t.Error("cached template does not match stored template")
	}

	// Activation invalidates the cache for the role.
	if err := svc.Activate(ctx, "public", 2); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if _, err := svc.ActiveTemplate(ctx, "public"); err != nil {
		t.Fatalf("post-activation lookup failed: %v", err)
	}
	if storeCalls != 2 {
		t.Errorf("store calls = %d, want 2 (activation should invalidate cache)", storeCalls)
	}

	// Expired entries fall back to the store.
	mr.FastForward(2 * time.Minute)
	if _, err := svc.ActiveTemplate(ctx, "public"); err != nil {
		t.Fatalf("post-expiry lookup failed: %v", err)
	}
	if storeCalls != 3 {
		t.Errorf("store calls = %d, want 3 (expired cache should miss)", storeCalls)
	}
}

func TestActiveTemplateMissing(t *testing.T) {
	fs := &fakeStore{
		getActiveTemplate: func(ctx context.Context, role string) (store.ContentTemplate, error) {
			return store.ContentTemplate{}, sql.ErrNoRows
		},
	}
	svc := NewService(fs, nil, time.Minute)

	_, err := svc.ActiveTemplate(context.Background(), "premium")
	if !errors.Is(err, ErrNoActiveTemplate) {
		t.Fatalf("expected ErrNoActiveTemplate, got %v", err)
	}
}

func TestActivateUnknownVersion(t *testing.T) {
	fs := &fakeStore{
		activateTemplate: func(ctx context.Context, role string, version int) error {
			return sql.ErrNoRows
		},
	}
	svc := NewService(fs, nil, time.Minute)

	err := svc.Activate(context.Background(), "public", 99)
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}
