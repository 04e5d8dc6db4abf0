// Package templates manages versioned content templates: the role-scoped
// documents that seed new day entries. At most one version per role is
// active at a time.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"daygrid/api/internal/observability"
	"daygrid/api/internal/rbac"
	"daygrid/api/internal/store"
)

// ErrNoActiveTemplate is returned when a role has no active template. This
// is an operator problem, not a user one: hydration cannot proceed.
var ErrNoActiveTemplate = errors.New("no active template for role")

// ErrUnknownTemplate is returned when a (role, version) pair does not exist.
var ErrUnknownTemplate = errors.New("unknown template version")

// ErrInvalidTemplate is returned when submitted template content violates
// structural rules.
type ErrInvalidTemplate struct {
	Reason string
}

func (e *ErrInvalidTemplate) Error() string {
	return "invalid template: " + e.Reason
}

// Store is the persistence surface the service needs.
type Store interface {
	InsertTemplateVersion(ctx context.Context, tpl store.ContentTemplate) (int, error)
	GetActiveTemplate(ctx context.Context, role string) (store.ContentTemplate, error)
	GetTemplate(ctx context.Context, role string, version int) (store.ContentTemplate, error)
	ListTemplates(ctx context.Context, role string) ([]store.ContentTemplate, error)
	ActivateTemplate(ctx context.Context, role string, version int) error
}

// Service wraps the template store with validation and a short-TTL Redis
// cache for the active template per role. The cache client may be nil, in
// which case every read goes to Postgres.
type Service struct {
	store    Store
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewService(st Store, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{store: st, cache: cache, cacheTTL: cacheTTL}
}

func cacheKey(role string) string {
	return "tpl:active:" + role
}

// ActiveTemplate returns the active template for role, from cache when
// possible. A stale cache entry can outlive an activation on another node
// for at most the cache TTL, which is why the TTL is short.
func (s *Service) ActiveTemplate(ctx context.Context, role string) (store.ContentTemplate, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(role)).Bytes()
		if err == nil {
			var tpl store.ContentTemplate
			if err := json.Unmarshal(raw, &tpl); err == nil {
				observability.RecordCacheLookup("hit")
				return tpl, nil
			}
		}
		observability.RecordCacheLookup("miss")
	}

	tpl, err := s.store.GetActiveTemplate(ctx, role)
	if err != nil {
		if store.IsNotFound(err) {
			return store.ContentTemplate{}, ErrNoActiveTemplate
		}
		return store.ContentTemplate{}, fmt.Errorf("load active template: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(tpl); err == nil {
			// Cache write failures are not worth failing the read over.
			_ = s.cache.Set(ctx, cacheKey(role), raw, s.cacheTTL).Err()
		}
	}
	return tpl, nil
}

// Get returns a specific template version.
func (s *Service) Get(ctx context.Context, role string, version int) (store.ContentTemplate, error) {
	tpl, err := s.store.GetTemplate(ctx, role, version)
	if err != nil {
		if store.IsNotFound(err) {
			return store.ContentTemplate{}, ErrUnknownTemplate
		}
		return store.ContentTemplate{}, fmt.Errorf("load template: %w", err)
	}
	return tpl, nil
}

// List returns every stored version for role, newest first.
func (s *Service) List(ctx context.Context, role string) ([]store.ContentTemplate, error) {
	if !rbac.Known(role) {
		return nil, &ErrInvalidTemplate{Reason: "unknown role " + role}
	}
	return s.store.ListTemplates(ctx, role)
}

// CreateVersion stores content as the next version for role. The new
// version is NOT active until activated explicitly; publishing is a
// deliberate second step.
//
// Item and block IDs submitted by the caller are preserved verbatim. IDs
// are the join key between template items and per-user completion state,
// so an unchanged item must keep its ID across versions.
func (s *Service) CreateVersion(ctx context.Context, role string, content store.TemplateContent) (store.ContentTemplate, error) {
	if !rbac.Known(role) {
		return store.ContentTemplate{}, &ErrInvalidTemplate{Reason: "unknown role " + role}
	}
	if err := validateContent(content); err != nil {
		return store.ContentTemplate{}, err
	}

	tpl := store.ContentTemplate{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
	}
	version, err := s.store.InsertTemplateVersion(ctx, tpl)
	if err != nil {
		return store.ContentTemplate{}, fmt.Errorf("insert template version: %w", err)
	}
	return s.Get(ctx, role, version)
}

// Activate makes (role, version) the single active template for the role
// and invalidates the cache entry so other nodes converge within the TTL.
func (s *Service) Activate(ctx context.Context, role string, version int) error {
	if !rbac.Known(role) {
		return &ErrInvalidTemplate{Reason: "unknown role " + role}
	}
	if err := s.store.ActivateTemplate(ctx, role, version); err != nil {
		if store.IsNotFound(err) {
			return ErrUnknownTemplate
		}
		return fmt.Errorf("activate template: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, cacheKey(role)).Err()
	}
	observability.RecordActivation(role)
	return nil
}

func validateContent(content store.TemplateContent) error {
	seen := map[string]bool{}
	checkItems := func(list string, items []store.ChecklistItem) error {
		for _, item := range items {
			if strings.TrimSpace(item.ID) == "" {
				return &ErrInvalidTemplate{Reason: list + " item with empty id"}
			}
			if strings.TrimSpace(item.Text) == "" {
				return &ErrInvalidTemplate{Reason: list + " item " + item.ID + " with empty text"}
			}
			if seen[list+"/"+item.ID] {
				return &ErrInvalidTemplate{Reason: list + " has duplicate item id " + item.ID}
			}
			seen[list+"/"+item.ID] = true
		}
		return nil
	}

	if err := checkItems("masterChecklist", content.MasterChecklist); err != nil {
		return err
	}
	if err := checkItems("habitBreakChecklist", content.HabitBreakChecklist); err != nil {
		return err
	}
	if err := checkItems("workoutChecklist", content.WorkoutChecklist); err != nil {
		return err
	}

	blockIDs := map[string]bool{}
	for _, block := range content.TimeBlocks {
		if strings.TrimSpace(block.ID) == "" {
			return &ErrInvalidTemplate{Reason: "time block with empty id"}
		}
		if blockIDs[block.ID] {
			return &ErrInvalidTemplate{Reason: "duplicate time block id " + block.ID}
		}
		blockIDs[block.ID] = true
		if block.Hour < 0 || block.Hour > 23 {
			return &ErrInvalidTemplate{Reason: fmt.Sprintf("time block %s has hour %d out of range", block.ID, block.Hour)}
		}
	}
	return nil
}
