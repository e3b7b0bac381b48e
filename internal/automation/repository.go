package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open-automation/relay-core/internal/infrastructure/database"
)

// Repository persists automations in SQLite. Conditions and editability
// flags are JSON columns.
type Repository struct {
	db *database.DB
}

// NewRepository creates an automation repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// SaveAutomation inserts or updates one automation.
func (r *Repository) SaveAutomation(ctx context.Context, a Automation) error {
	conditions, err := json.Marshal(a.Conditions)
	if err != nil {
		return fmt.Errorf("encoding conditions: %w", err)
	}
	editable, err := json.Marshal(a.Editable)
	if err != nil {
		return fmt.Errorf("encoding editability flags: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automations (
			id, account_id, name, enabled, type,
			conditions, user_editable, source_system,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			name = excluded.name,
			enabled = excluded.enabled,
			type = excluded.type,
			conditions = excluded.conditions,
			user_editable = excluded.user_editable,
			source_system = excluded.source_system,
			updated_at = excluded.updated_at`,
		a.ID, a.AccountID, a.Name, boolToInt(a.Enabled), a.Type,
		string(conditions), string(editable), boolToInt(a.SourceSystem),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("saving automation %s: %w", a.ID, err)
	}
	return nil
}

// DeleteAutomation removes one automation.
func (r *Repository) DeleteAutomation(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM automations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting automation %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting automation %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("automation %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetAutomations returns every stored automation.
func (r *Repository) GetAutomations(ctx context.Context) ([]Automation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, name, enabled, type,
		       conditions, user_editable, source_system
		FROM automations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying automations: %w", err)
	}
	defer rows.Close()

	var automations []Automation
	for rows.Next() {
		var (
			a                   Automation
			enabled, system     int
			conditions, editable string
		)
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Name, &enabled, &a.Type,
			&conditions, &editable, &system); err != nil {
			return nil, fmt.Errorf("scanning automation: %w", err)
		}
		a.Enabled = enabled != 0
		a.SourceSystem = system != 0
		if err := json.Unmarshal([]byte(conditions), &a.Conditions); err != nil {
			return nil, fmt.Errorf("decoding automation %s conditions: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(editable), &a.Editable); err != nil {
			return nil, fmt.Errorf("decoding automation %s editability: %w", a.ID, err)
		}
		automations = append(automations, a)
	}
	return automations, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
