package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TemplateDoc is a raw template content document plus the guard fields used
// for conditional rewrites during reconciliation.
type TemplateDoc struct {
	ID        string
	Role      string
	Version   int
	IsActive  bool
	UpdatedAt time.Time
	Content   []byte
}

// InsertTemplateVersion inserts tpl with the next version number for its
// role. The (role, version) unique constraint backstops concurrent inserts.
func (s *PostgresStore) InsertTemplateVersion(ctx context.Context, tpl ContentTemplate) (int, error) {
	encoded, err := json.Marshal(tpl.Content)
	if err != nil {
		return 0, fmt.Errorf("marshal template content: %w", err)
	}
	var version int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO content_templates (id, role, version, is_active, content)
		VALUES ($1, $2, (SELECT COALESCE(MAX(version), 0) + 1 FROM content_templates WHERE role = $2), FALSE, $3::jsonb)
		RETURNING version
	`, tpl.ID, tpl.Role, string(encoded)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("insert template version: %w", err)
	}
	return version, nil
}

// GetActiveTemplate returns the active template for role. When active-flag
// drift has produced more than one active row, the highest version wins so
// the read path stays deterministic until reconciliation runs.
func (s *PostgresStore) GetActiveTemplate(ctx context.Context, role string) (ContentTemplate, error) {
	return s.scanTemplate(s.db.QueryRowContext(ctx, `
		SELECT id, role, version, is_active, content, created_at, updated_at
		FROM content_templates
		WHERE role = $1 AND is_active
		ORDER BY version DESC
		LIMIT 1
	`, role))
}

func (s *PostgresStore) GetTemplate(ctx context.Context, role string, version int) (ContentTemplate, error) {
	return s.scanTemplate(s.db.QueryRowContext(ctx, `
		SELECT id, role, version, is_active, content, created_at, updated_at
		FROM content_templates
		WHERE role = $1 AND version = $2
	`, role, version))
}

func (s *PostgresStore) scanTemplate(row *sql.Row) (ContentTemplate, error) {
	var tpl ContentTemplate
	var raw []byte
	err := row.Scan(&tpl.ID, &tpl.Role, &tpl.Version, &tpl.IsActive, &raw, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return ContentTemplate{}, err
	}
	if err := json.Unmarshal(raw, &tpl.Content); err != nil {
		return ContentTemplate{}, fmt.Errorf("decode template content: %w", err)
	}
	return tpl, nil
}

// ListTemplates returns every version stored for role, newest first.
func (s *PostgresStore) ListTemplates(ctx context.Context, role string) ([]ContentTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, version, is_active, content, created_at, updated_at
		FROM content_templates
		WHERE role = $1
		ORDER BY version DESC
	`, role)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]ContentTemplate, 0)
	for rows.Next() {
		var tpl ContentTemplate
		var raw []byte
		if err := rows.Scan(&tpl.ID, &tpl.Role, &tpl.Version, &tpl.IsActive, &raw, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal(raw, &tpl.Content); err != nil {
			return nil, fmt.Errorf("decode template content: %w", err)
		}
		items = append(items, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

// ActivateTemplate makes (role, version) the single active template for its
// role. The flag flip is one UPDATE over every row of the role, so no reader
// observes a window with zero or two active templates. Prior drift is
// overwritten rather than rejected.
func (s *PostgresStore) ActivateTemplate(ctx context.Context, role string, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var targetID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM content_templates WHERE role = $1 AND version = $2 FOR UPDATE
	`, role, version).Scan(&targetID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE content_templates
		SET is_active = (version = $2), updated_at = NOW()
		WHERE role = $1
	`, role, version); err != nil {
		return fmt.Errorf("activate template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate: %w", err)
	}
	return nil
}

// MaxTemplateVersion returns the highest version stored for role, zero when
// the role has no templates.
func (s *PostgresStore) MaxTemplateVersion(ctx context.Context, role string) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM content_templates WHERE role = $1
	`, role).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("max template version: %w", err)
	}
	return version, nil
}

// ActiveTemplateCounts returns, per role, how many templates are flagged
// active. Used by reconciliation to detect drift.
func (s *PostgresStore) ActiveTemplateCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, COUNT(*) FILTER (WHERE is_active)
		FROM content_templates
		GROUP BY role
	`)
	if err != nil {
		return nil, fmt.Errorf("active template counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var role string
		var active int
		if err := rows.Scan(&role, &active); err != nil {
			return nil, fmt.Errorf("scan active count: %w", err)
		}
		counts[role] = active
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active counts: %w", err)
	}
	return counts, nil
}

// ListTemplateDocs returns every template's raw content document for
// reconciliation.
func (s *PostgresStore) ListTemplateDocs(ctx context.Context) ([]TemplateDoc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, version, is_active, updated_at, content
		FROM content_templates
		ORDER BY role ASC, version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list template docs: %w", err)
	}
	defer rows.Close()

	items := make([]TemplateDoc, 0)
	for rows.Next() {
		var doc TemplateDoc
		if err := rows.Scan(&doc.ID, &doc.Role, &doc.Version, &doc.IsActive, &doc.UpdatedAt, &doc.Content); err != nil {
			return nil, fmt.Errorf("scan template doc: %w", err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate template docs: %w", err)
	}
	return items, nil
}

// ReplaceTemplateContent rewrites a template's content document guarded by
// the updated_at the caller read. Returns false when a concurrent writer got
// there first.
func (s *PostgresStore) ReplaceTemplateContent(ctx context.Context, id string, readAt time.Time, content []byte) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE content_templates
		SET content = $3::jsonb, updated_at = NOW()
		WHERE id = $1 AND updated_at = $2
	`, id, readAt, string(content))
	if err != nil {
		return false, fmt.Errorf("replace template content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replace template content rows: %w", err)
	}
	return affected > 0, nil
}
