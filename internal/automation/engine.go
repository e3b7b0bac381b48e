package automation

import (
	"log/slog"
	"sync"
)

// Engine is the in-process evaluation side of the automation system. It
// receives registrations from the Manager, tracks each account's armed
// mode and answers which automations are currently in effect.
type Engine struct {
	logger *slog.Logger

	mu     sync.Mutex
	loaded map[string]Automation
	modes  map[string]int
}

// NewEngine creates an empty engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		loaded: make(map[string]Automation),
		modes:  make(map[string]int),
	}
}

// SetUpAutomation loads an automation into the evaluation set. Disabled
// automations are tracked but never fire.
func (e *Engine) SetUpAutomation(a Automation) error {
	e.mu.Lock()
	e.loaded[a.ID] = a
	e.mu.Unlock()
	e.logger.Debug("automation loaded", "automation_id", a.ID, "type", a.Type, "enabled", a.Enabled)
	return nil
}

// TearDownAutomation removes an automation from the evaluation set.
func (e *Engine) TearDownAutomation(a Automation) error {
	e.mu.Lock()
	delete(e.loaded, a.ID)
	e.mu.Unlock()
	e.logger.Debug("automation unloaded", "automation_id", a.ID)
	return nil
}

// SetArmedMode records the account's current armed mode. Mode 0 is
// disarmed.
func (e *Engine) SetArmedMode(accountID string, mode int) {
	e.mu.Lock()
	if mode == 0 {
		delete(e.modes, accountID)
	} else {
		e.modes[accountID] = mode
	}
	e.mu.Unlock()
	e.logger.Info("armed mode changed", "account_id", accountID, "mode", mode)
}

// ArmedMode returns the account's current armed mode, 0 when disarmed.
func (e *Engine) ArmedMode(accountID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modes[accountID]
}

// Active returns the account's enabled automations whose conditions hold
// under the current armed mode. An automation with no conditions is
// unconditionally active.
func (e *Engine) Active(accountID string) []Automation {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode := e.modes[accountID]
	var active []Automation
	for _, a := range e.loaded {
		if a.AccountID != accountID || !a.Enabled {
			continue
		}
		if e.conditionsHold(a, mode) {
			active = append(active, a)
		}
	}
	return active
}

// conditionsHold evaluates every condition against the armed mode. All
// conditions must pass.
func (e *Engine) conditionsHold(a Automation, mode int) bool {
	for _, c := range a.Conditions {
		if c.Type == "armed" && c.Mode != mode {
			return false
		}
	}
	return true
}

// Count returns the number of loaded automations.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.loaded)
}
