package store

import "time"

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ChecklistItem is a single tracked item. Item IDs are stable across template
// versions so completion state stays attached to the same semantic item.
type ChecklistItem struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Category    string     `json:"category,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TimeBlock is one slot of the daily schedule.
type TimeBlock struct {
	ID         string   `json:"id"`
	Hour       int      `json:"hour"`
	Label      string   `json:"label"`
	Activities []string `json:"activities"`
}

// TodoItem is user-authored and has no template origin.
type TodoItem struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TemplateContent is the canonical nested content document of a template.
type TemplateContent struct {
	MasterChecklist     []ChecklistItem `json:"masterChecklist"`
	HabitBreakChecklist []ChecklistItem `json:"habitBreakChecklist"`
	WorkoutChecklist    []ChecklistItem `json:"workoutChecklist"`
	TimeBlocks          []TimeBlock     `json:"timeBlocks"`
}

// ContentTemplate is a versioned, role-scoped default set of checklists and
// time blocks. At most one version per role is active at any time.
type ContentTemplate struct {
	ID        string
	Role      string
	Version   int
	IsActive  bool
	Content   TemplateContent
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayEntry is a user's live record for one calendar day. It is seeded from
// the active template on first access and independently owned afterwards.
type DayEntry struct {
	UserID              string          `json:"userId"`
	Date                string          `json:"date"`
	MasterChecklist     []ChecklistItem `json:"masterChecklist"`
	HabitBreakChecklist []ChecklistItem `json:"habitBreakChecklist"`
	WorkoutChecklist    []ChecklistItem `json:"workoutChecklist"`
	TimeBlocks          []TimeBlock     `json:"timeBlocks"`
	TodoList            []TodoItem      `json:"todoList"`
	Notes               string          `json:"notes"`
	TemplateID          string          `json:"templateId,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}
