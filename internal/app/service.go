package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"daygrid/api/internal/auth"
	"daygrid/api/internal/authpw"
	"daygrid/api/internal/config"
	"daygrid/api/internal/email"
	"daygrid/api/internal/hydrate"
	"daygrid/api/internal/rbac"
	"daygrid/api/internal/session"
	"daygrid/api/internal/store"
	"daygrid/api/internal/templates"
	"daygrid/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// DayInput is the user-writable portion of a day entry.
type DayInput struct {
	MasterChecklist     []store.ChecklistItem `json:"masterChecklist"`
	HabitBreakChecklist []store.ChecklistItem `json:"habitBreakChecklist"`
	WorkoutChecklist    []store.ChecklistItem `json:"workoutChecklist"`
	TimeBlocks          []store.TimeBlock     `json:"timeBlocks"`
	TodoList            []store.TodoItem      `json:"todoList"`
	Notes               string                `json:"notes"`
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	UpdateUserRole(ctx context.Context, userID, role string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	GetDayEntry(ctx context.Context, userID, date string) (store.DayEntry, error)
	UpdateDayEntry(ctx context.Context, entry store.DayEntry) error
}

// refreshSessions is satisfied by both the Redis session store and the
// Postgres store, whichever is configured.
type refreshSessions interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type dayHydrator interface {
	Hydrate(ctx context.Context, userID, role, date string) (store.DayEntry, error)
}

type templateService interface {
	List(ctx context.Context, role string) ([]store.ContentTemplate, error)
	Get(ctx context.Context, role string, version int) (store.ContentTemplate, error)
	CreateVersion(ctx context.Context, role string, content store.TemplateContent) (store.ContentTemplate, error)
	Activate(ctx context.Context, role string, version int) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	refresh   refreshSessions
	authpw    *authpw.Service
	mailer    *email.Service
	hydrator  dayHydrator
	templates templateService
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	sessions *session.RedisStore,
	authService *authpw.Service,
	mailer *email.Service,
	hydrator *hydrate.Service,
	templateSvc *templates.Service,
) *Service {
	var refresh refreshSessions = dataStore
	if sessions != nil {
		refresh = sessions
	}
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		refresh:   refresh,
		authpw:    authService,
		mailer:    mailer,
		hydrator:  hydrator,
		templates: templateSvc,
	}
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// SendVerificationEmail delivers the verification link. Failures are
// logged, not surfaced: the account exists either way and the token can
// be re-requested.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppBaseURL + "/verify-email?token=" + token
	if err := s.mailer.SendVerificationEmail(to, userName, url); err != nil {
		log.Printf("send verification email to %s failed: %v", to, err)
	}
}

func (s *Service) SendPasswordResetEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppBaseURL + "/reset-password?token=" + token
	if err := s.mailer.SendPasswordResetEmail(to, userName, url); err != nil {
		log.Printf("send password reset email to %s failed: %v", to, err)
	}
}

// CreateSession issues a fresh access/refresh token pair for a user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair is issued. The user is re-read so role changes take effect on
// the next refresh at the latest.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt,
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: claims.Exp,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// Day returns the user's entry for a date, seeding it from the role's
// active template on first access.
func (s *Service) Day(ctx context.Context, session Session, date string) (store.DayEntry, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.hydrator.Hydrate(ctx, session.UserID, session.Role, date)
}

// SaveDay replaces the user-writable fields of a day entry. The entry is
// hydrated first so a save against a never-opened day still starts from
// the template.
func (s *Service) SaveDay(ctx context.Context, session Session, date string, input DayInput) (store.DayEntry, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	entry, err := s.hydrator.Hydrate(ctx, session.UserID, session.Role, date)
	if err != nil {
		return store.DayEntry{}, err
	}

	entry.MasterChecklist = orEmpty(input.MasterChecklist)
	entry.HabitBreakChecklist = orEmpty(input.HabitBreakChecklist)
	entry.WorkoutChecklist = orEmpty(input.WorkoutChecklist)
	entry.TimeBlocks = input.TimeBlocks
	if entry.TimeBlocks == nil {
		entry.TimeBlocks = []store.TimeBlock{}
	}
	entry.TodoList = input.TodoList
	if entry.TodoList == nil {
		entry.TodoList = []store.TodoItem{}
	}
	entry.Notes = input.Notes

	if err := s.store.UpdateDayEntry(ctx, entry); err != nil {
		return store.DayEntry{}, err
	}
	return s.store.GetDayEntry(ctx, session.UserID, date)
}

// ToggleChecklistItem flips the completion state of one item in one of
// the three checklists.
func (s *Service) ToggleChecklistItem(ctx context.Context, session Session, date, list, itemID string) (store.DayEntry, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	entry, err := s.hydrator.Hydrate(ctx, session.UserID, session.Role, date)
	if err != nil {
		return store.DayEntry{}, err
	}

	items, ok := checklistByName(&entry, list)
	if !ok {
		return store.DayEntry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown checklist "+list, nil)
	}

	found := false
	for i := range items {
		if items[i].ID != itemID {
			continue
		}
		found = true
		items[i].Completed = !items[i].Completed
		if items[i].Completed {
			now := time.Now().UTC()
			items[i].CompletedAt = &now
		} else {
			items[i].CompletedAt = nil
		}
	}
	if !found {
		return store.DayEntry{}, domainError(http.StatusNotFound, "NOT_FOUND", "checklist item not found", nil)
	}

	if err := s.store.UpdateDayEntry(ctx, entry); err != nil {
		return store.DayEntry{}, err
	}
	return s.store.GetDayEntry(ctx, session.UserID, date)
}

// SaveNotes replaces the notes of a day entry.
func (s *Service) SaveNotes(ctx context.Context, session Session, date, notes string) (store.DayEntry, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	entry, err := s.hydrator.Hydrate(ctx, session.UserID, session.Role, date)
	if err != nil {
		return store.DayEntry{}, err
	}
	entry.Notes = notes
	if err := s.store.UpdateDayEntry(ctx, entry); err != nil {
		return store.DayEntry{}, err
	}
	return s.store.GetDayEntry(ctx, session.UserID, date)
}

// SaveTodos replaces the user-authored todo list of a day entry.
func (s *Service) SaveTodos(ctx context.Context, session Session, date string, todos []store.TodoItem) (store.DayEntry, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	entry, err := s.hydrator.Hydrate(ctx, session.UserID, session.Role, date)
	if err != nil {
		return store.DayEntry{}, err
	}
	if todos == nil {
		todos = []store.TodoItem{}
	}
	entry.TodoList = todos
	if err := s.store.UpdateDayEntry(ctx, entry); err != nil {
		return store.DayEntry{}, err
	}
	return s.store.GetDayEntry(ctx, session.UserID, date)
}

// Admin surface.

func (s *Service) ListTemplates(ctx context.Context, role string) ([]store.ContentTemplate, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.templates.List(ctx, role)
}

func (s *Service) GetTemplate(ctx context.Context, role string, version int) (store.ContentTemplate, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.templates.Get(ctx, role, version)
}

func (s *Service) CreateTemplateVersion(ctx context.Context, role string, content store.TemplateContent) (store.ContentTemplate, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.templates.CreateVersion(ctx, role, content)
}

func (s *Service) ActivateTemplate(ctx context.Context, role string, version int) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.templates.Activate(ctx, role, version)
}

// SetUserRole changes a user's role. The change reaches running sessions
// on their next refresh.
func (s *Service) SetUserRole(ctx context.Context, userID, role string) (store.User, error) {
	if !rbac.Known(role) {
		return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown role "+role, nil)
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return store.User{}, err
	}
	return s.store.GetUserByID(ctx, userID)
}

func checklistByName(entry *store.DayEntry, name string) ([]store.ChecklistItem, bool) {
	switch name {
	case "master":
		return entry.MasterChecklist, true
	case "habit-break":
		return entry.HabitBreakChecklist, true
	case "workout":
		return entry.WorkoutChecklist, true
	default:
		return nil, false
	}
}

func orEmpty(items []store.ChecklistItem) []store.ChecklistItem {
	if items == nil {
		return []store.ChecklistItem{}
	}
	return items
}
