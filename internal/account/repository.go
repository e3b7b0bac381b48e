package account

import (
	"context"
	"fmt"
	"time"

	"github.com/open-automation/relay-core/internal/infrastructure/database"
)

// Repository persists accounts in SQLite.
type Repository struct {
	db *database.DB
}

// NewRepository creates an account repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// SaveAccount inserts or updates one account.
func (r *Repository) SaveAccount(ctx context.Context, a Account) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, username, password_hash, registration_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			password_hash = excluded.password_hash,
			updated_at = excluded.updated_at`,
		a.ID, a.Username, a.PasswordHash,
		a.RegistrationDate.UTC().Format(time.RFC3339), now, now,
	)
	if err != nil {
		return fmt.Errorf("saving account %s: %w", a.ID, err)
	}
	return nil
}

// GetAccounts returns every stored account.
func (r *Repository) GetAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, password_hash, registration_date
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			a          Account
			registered string
		)
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &registered); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		a.RegistrationDate, err = time.Parse(time.RFC3339, registered)
		if err != nil {
			return nil, fmt.Errorf("parsing registration date for %s: %w", a.ID, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
