package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) GetDayEntry(ctx context.Context, userID, date string) (DayEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, entry_date::text, master_checklist, habit_break_checklist, workout_checklist,
		       time_blocks, todo_list, notes, COALESCE(template_id, ''), created_at, updated_at
		FROM day_entries
		WHERE user_id = $1 AND entry_date = $2::date
	`, userID, date)
	return scanDayEntry(row)
}

func scanDayEntry(row *sql.Row) (DayEntry, error) {
	var entry DayEntry
	var master, habit, workout, blocks, todos []byte
	err := row.Scan(
		&entry.UserID,
		&entry.Date,
		&master,
		&habit,
		&workout,
		&blocks,
		&todos,
		&entry.Notes,
		&entry.TemplateID,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return DayEntry{}, err
	}
	for _, field := range []struct {
		raw    []byte
		target any
	}{
		{master, &entry.MasterChecklist},
		{habit, &entry.HabitBreakChecklist},
		{workout, &entry.WorkoutChecklist},
		{blocks, &entry.TimeBlocks},
		{todos, &entry.TodoList},
	} {
		if err := json.Unmarshal(field.raw, field.target); err != nil {
			return DayEntry{}, fmt.Errorf("decode day entry: %w", err)
		}
	}
	return entry, nil
}

// InsertDayEntry seeds a new day row. The insert is conditional on the
// (user_id, entry_date) key: when another request already seeded the day the
// row is left untouched and false is returned, so callers re-read instead of
// overwriting the winner.
func (s *PostgresStore) InsertDayEntry(ctx context.Context, entry DayEntry) (bool, error) {
	master, habit, workout, blocks, todos, err := encodeDayEntry(entry)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO day_entries (user_id, entry_date, master_checklist, habit_break_checklist, workout_checklist,
		                         time_blocks, todo_list, notes, template_id)
		VALUES ($1, $2::date, $3::jsonb, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8, NULLIF($9, ''))
		ON CONFLICT (user_id, entry_date) DO NOTHING
	`, entry.UserID, entry.Date, master, habit, workout, blocks, todos, entry.Notes, entry.TemplateID)
	if err != nil {
		return false, fmt.Errorf("insert day entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert day entry rows: %w", err)
	}
	return affected > 0, nil
}

// UpdateDayEntry replaces the mutable fields of an existing day row.
func (s *PostgresStore) UpdateDayEntry(ctx context.Context, entry DayEntry) error {
	master, habit, workout, blocks, todos, err := encodeDayEntry(entry)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE day_entries
		SET master_checklist = $3::jsonb,
		    habit_break_checklist = $4::jsonb,
		    workout_checklist = $5::jsonb,
		    time_blocks = $6::jsonb,
		    todo_list = $7::jsonb,
		    notes = $8,
		    updated_at = NOW()
		WHERE user_id = $1 AND entry_date = $2::date
	`, entry.UserID, entry.Date, master, habit, workout, blocks, todos, entry.Notes)
	if err != nil {
		return fmt.Errorf("update day entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update day entry rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func encodeDayEntry(entry DayEntry) (master, habit, workout, blocks, todos string, err error) {
	encode := func(v any) (string, error) {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode day entry: %w", err)
		}
		return string(raw), nil
	}
	if master, err = encode(orEmptyItems(entry.MasterChecklist)); err != nil {
		return
	}
	if habit, err = encode(orEmptyItems(entry.HabitBreakChecklist)); err != nil {
		return
	}
	if workout, err = encode(orEmptyItems(entry.WorkoutChecklist)); err != nil {
		return
	}
	if blocks, err = encode(orEmptyBlocks(entry.TimeBlocks)); err != nil {
		return
	}
	todos, err = encode(orEmptyTodos(entry.TodoList))
	return
}

func orEmptyItems(items []ChecklistItem) []ChecklistItem {
	if items == nil {
		return []ChecklistItem{}
	}
	return items
}

func orEmptyBlocks(blocks []TimeBlock) []TimeBlock {
	if blocks == nil {
		return []TimeBlock{}
	}
	return blocks
}

func orEmptyTodos(todos []TodoItem) []TodoItem {
	if todos == nil {
		return []TodoItem{}
	}
	return todos
}

// HasLegacyUserData reports whether the pre-rename user_data table still
// exists in this database.
func (s *PostgresStore) HasLegacyUserData(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT to_regclass('public.user_data') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check legacy user_data: %w", err)
	}
	return exists, nil
}

// MigrateLegacyUserData copies rows from the legacy user_data table into
// day_entries, leaving already-migrated days alone. Returns the number of
// rows copied.
func (s *PostgresStore) MigrateLegacyUserData(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO day_entries (user_id, entry_date, master_checklist, habit_break_checklist, workout_checklist,
		                         time_blocks, todo_list, notes, created_at, updated_at)
		SELECT user_id, entry_date, master_checklist, habit_break_checklist, workout_checklist,
		       time_blocks, COALESCE(todo_list, '[]'::jsonb), COALESCE(notes, ''), created_at, updated_at
		FROM user_data
		ON CONFLICT (user_id, entry_date) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("migrate legacy user_data: %w", err)
	}
	copied, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("migrate legacy user_data rows: %w", err)
	}
	return copied, nil
}
