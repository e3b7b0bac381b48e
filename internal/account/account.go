package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Account is one registered user of the relay core.
type Account struct {
	ID               string
	Username         string
	PasswordHash     string
	RegistrationDate time.Time
}

// ClientSerialize returns the externally shared view. The password hash
// never leaves the server.
func (a Account) ClientSerialize() map[string]any {
	return map[string]any{
		"id":                a.ID,
		"username":          a.Username,
		"registration_date": a.RegistrationDate.UTC().Format(time.RFC3339),
	}
}

// Store is the persistence contract for accounts.
type Store interface {
	SaveAccount(ctx context.Context, a Account) error
	GetAccounts(ctx context.Context) ([]Account, error)
}

// Manager is the process-wide account registry, populated at boot and
// mutated only through its own methods.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	accounts map[string]Account
}

// NewManager creates an empty account registry.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		logger:   logger,
		accounts: make(map[string]Account),
	}
}

// Load populates the registry from persistence at boot.
func (m *Manager) Load(ctx context.Context) error {
	stored, err := m.store.GetAccounts(ctx)
	if err != nil {
		return fmt.Errorf("account: loading: %w", err)
	}

	m.mu.Lock()
	for _, a := range stored {
		m.accounts[a.ID] = a
	}
	m.mu.Unlock()

	m.logger.Info("accounts loaded", "count", len(stored))
	return nil
}

// Register creates a new account. Usernames are case-insensitive unique.
func (m *Manager) Register(ctx context.Context, username, password string) (Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Account{}, fmt.Errorf("account: %w: empty username", ErrInvalidCredentials)
	}
	if len(password) < 8 {
		return Account{}, fmt.Errorf("account: %w: password must be at least 8 characters", ErrInvalidCredentials)
	}
	if _, ok := m.findByUsername(username); ok {
		return Account{}, fmt.Errorf("account: %w: %s", ErrUsernameTaken, username)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("account: %w", err)
	}

	a := Account{
		ID:               uuid.NewString(),
		Username:         username,
		PasswordHash:     hash,
		RegistrationDate: time.Now().UTC(),
	}

	if err := m.store.SaveAccount(ctx, a); err != nil {
		return Account{}, fmt.Errorf("account: %w", err)
	}

	m.mu.Lock()
	m.accounts[a.ID] = a
	m.mu.Unlock()
	return a, nil
}

// Authenticate verifies credentials and returns the matching account.
func (m *Manager) Authenticate(username, password string) (Account, error) {
	a, ok := m.findByUsername(username)
	if !ok {
		// Burn a hash anyway so a missing username costs the same as a
		// wrong password.
		_, _ = VerifyPassword(password, dummyHash)
		return Account{}, fmt.Errorf("account: %w", ErrInvalidCredentials)
	}

	match, err := VerifyPassword(password, a.PasswordHash)
	if err != nil {
		return Account{}, fmt.Errorf("account: %w", err)
	}
	if !match {
		return Account{}, fmt.Errorf("account: %w", ErrInvalidCredentials)
	}
	return a, nil
}

// GetAccountByID returns one account.
func (m *Manager) GetAccountByID(id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// GetAccountByUsername returns one account by its case-insensitive
// username.
func (m *Manager) GetAccountByUsername(username string) (Account, error) {
	a, ok := m.findByUsername(username)
	if !ok {
		return Account{}, fmt.Errorf("account %s: %w", username, ErrNotFound)
	}
	return a, nil
}

// ChangePassword replaces an account's password after verifying the
// current one.
func (m *Manager) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	a, err := m.GetAccountByID(id)
	if err != nil {
		return err
	}

	match, err := VerifyPassword(oldPassword, a.PasswordHash)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	if !match {
		return fmt.Errorf("account: %w", ErrInvalidCredentials)
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("account: %w: password must be at least 8 characters", ErrInvalidCredentials)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	a.PasswordHash = hash

	if err := m.store.SaveAccount(ctx, a); err != nil {
		return fmt.Errorf("account: %w", err)
	}

	m.mu.Lock()
	m.accounts[a.ID] = a
	m.mu.Unlock()
	return nil
}

// Count returns the number of registered accounts.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

func (m *Manager) findByUsername(username string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Username, username) {
			return a, true
		}
	}
	return Account{}, false
}

// dummyHash keeps Authenticate constant-cost for unknown usernames. Any
// valid PHC string works; the comparison always fails.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
