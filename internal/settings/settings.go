package settings

import (
	"fmt"
	"sync"
)

// Definition describes one setting: its type, presentation label, default,
// and constraints. Definitions arrive in layers (capability defaults,
// driver-declared, per-instance) and later layers win per key.
//
// Wire shape:
//
//	{"type": "percentage", "label": "Sensitivity",
//	 "default_value": 0.5, "validation": {"is_required": true}}
type Definition struct {
	Type         string         `json:"type"`
	Label        string         `json:"label"`
	DefaultValue any            `json:"default_value,omitempty"`
	Validation   map[string]any `json:"validation,omitempty"`

	// ReadOnly marks server-authoritative settings that callers cannot write.
	ReadOnly bool `json:"read_only,omitempty"`

	// ExcludeFromDB withholds the stored value from persistence.
	ExcludeFromDB bool `json:"exclude_from_db,omitempty"`

	// ExcludeFromClient withholds the stored value from client serialisation.
	ExcludeFromClient bool `json:"exclude_from_client,omitempty"`
}

// Definitions is one definition layer, keyed by setting name.
type Definitions map[string]Definition

// Merge returns a new layer with other's definitions merged over d.
func (d Definitions) Merge(other Definitions) Definitions {
	merged := make(Definitions, len(d)+len(other))
	for name, def := range d {
		merged[name] = def
	}
	for name, def := range other {
		merged[name] = def
	}
	return merged
}

// Model holds the merged definition layers and the current stored values
// for one device or service.
//
// The invariant maintained by Set is that stored values are always valid
// against the currently merged definitions: an invalid write mutates
// nothing. All methods are safe for concurrent use.
type Model struct {
	mu sync.Mutex

	// base holds capability-level definitions; driver holds driver-declared
	// definitions merged over them via SetDefinitions.
	base   Definitions
	driver Definitions

	values map[string]any

	// onApply pushes accepted values towards the hardware; onSave schedules
	// persistence. Either may be nil.
	onApply func(values map[string]any)
	onSave  func()
}

// NewModel creates a settings model from a base definition layer,
// driver-declared definitions, and previously stored values.
//
// Stored values are adopted as-is: they were validated when written and
// revalidating against potentially newer definitions at load time would
// discard user configuration on schema drift.
func NewModel(base Definitions, driver Definitions, values map[string]any) *Model {
	m := &Model{
		base:   base,
		driver: Definitions{},
		values: make(map[string]any, len(values)),
	}
	if m.base == nil {
		m.base = Definitions{}
	}
	if driver != nil {
		m.driver = m.driver.Merge(driver)
	}
	for name, value := range values {
		m.values[name] = value
	}
	return m
}

// SetHooks registers the apply and save callbacks invoked after a
// successful Set. Either may be nil.
func (m *Model) SetHooks(onApply func(values map[string]any), onSave func()) {
	m.mu.Lock()
	m.onApply = onApply
	m.onSave = onSave
	m.mu.Unlock()
}

// SetDefinitions merges a driver-declared definition layer over the
// existing one. Later layers win per key.
func (m *Model) SetDefinitions(defs Definitions) {
	m.mu.Lock()
	m.driver = m.driver.Merge(defs)
	m.mu.Unlock()
}

// merged returns the effective definition set. Caller must hold m.mu.
func (m *Model) merged() Definitions {
	return m.base.Merge(m.driver)
}

// Set validates and stores the submitted values.
//
// Every submitted key runs its type check then its declared constraint
// validators in canonical order, short-circuiting per key on the first
// failure. Failures across keys are collected into one *ValidationErrors
// with an entry per invalid field. Stored values mutate, and the apply and
// save hooks fire, only when every key passed.
//
// A definition declaring an unknown type or validation key is a
// configuration error and is returned directly (not as ValidationErrors).
func (m *Model) Set(values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	defs := m.merged()
	failures := NewValidationErrors()

	for name, value := range values {
		def, ok := defs[name]
		if !ok {
			failures.Add(name, fmt.Sprintf("%s is not a recognised setting", name))
			continue
		}
		if def.ReadOnly {
			failures.Add(name, fmt.Sprintf("%s cannot be changed", labelFor(name, def)))
			continue
		}

		if err := validateValue(def, name, value); err != nil {
			var cfgErr *configError
			if asConfigError(err, &cfgErr) {
				return cfgErr.err
			}
			failures.Add(name, err.Error())
		}
	}

	if failures.Len() > 0 {
		return failures
	}

	for name, value := range values {
		m.values[name] = value
	}

	if m.onApply != nil {
		m.onApply(copyValues(values))
	}
	if m.onSave != nil {
		m.onSave()
	}
	return nil
}

// Validate checks one value against a single definition outside any
// model. Action inputs share the settings type vocabulary and use this to
// type-check before touching a driver.
func Validate(def Definition, name string, value any) error {
	err := validateValue(def, name, value)
	var cfgErr *configError
	if asConfigError(err, &cfgErr) {
		return cfgErr.err
	}
	return err
}

// validateValue runs the full validator chain for one key.
func validateValue(def Definition, name string, value any) error {
	label := labelFor(name, def)

	// Presence resolves before the type check: an absent optional value
	// passes outright, an absent required one reports the requirement
	// rather than a type mismatch.
	required, _ := def.Validation["is_required"].(bool)
	if isEmpty(value) {
		if required {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}

	typeCheck, err := typeValidatorFor(def.Type, def.Validation["scale"])
	if err != nil {
		return &configError{err: err}
	}
	if err := typeCheck(value, label); err != nil {
		return err
	}

	validators, err := constraintValidatorsFor(stripScale(def.Validation))
	if err != nil {
		return &configError{err: err}
	}
	for _, validate := range validators {
		if err := validate(value, label); err != nil {
			return err
		}
	}
	return nil
}

// stripScale removes the percentage scale parameter, which belongs to the
// type check rather than the constraint chain.
func stripScale(validation map[string]any) map[string]any {
	if _, ok := validation["scale"]; !ok {
		return validation
	}
	stripped := make(map[string]any, len(validation))
	for k, v := range validation {
		if k == "scale" {
			continue
		}
		stripped[k] = v
	}
	return stripped
}

// configError wraps a definition configuration error so Set can tell it
// apart from a value failure.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }

func asConfigError(err error, target **configError) bool {
	if ce, ok := err.(*configError); ok { //nolint:errorlint // configError is never wrapped
		*target = ce
		return true
	}
	return false
}

// Get returns the stored value for a key, falling back to the definition
// default when nothing has been stored.
func (m *Model) Get(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value, ok := m.values[name]; ok {
		return value, true
	}
	if def, ok := m.merged()[name]; ok && def.DefaultValue != nil {
		return def.DefaultValue, true
	}
	return nil, false
}

// Serialize returns the effective values (defaults overridden by stored
// values) for every definition not marked ExcludeFromClient.
func (m *Model) Serialize() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serialize(func(def Definition) bool { return !def.ExcludeFromClient })
}

// DBSerialize returns the stored values for every definition not marked
// ExcludeFromDB. Defaults are not materialised into persistence.
func (m *Model) DBSerialize() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]any)
	defs := m.merged()
	for name, value := range m.values {
		if def, ok := defs[name]; ok && def.ExcludeFromDB {
			continue
		}
		out[name] = value
	}
	return out
}

// serialize builds the effective value map for definitions passing the
// include filter. Caller must hold m.mu.
func (m *Model) serialize(include func(Definition) bool) map[string]any {
	out := make(map[string]any)
	for name, def := range m.merged() {
		if !include(def) {
			continue
		}
		if value, ok := m.values[name]; ok {
			out[name] = value
		} else if def.DefaultValue != nil {
			out[name] = def.DefaultValue
		}
	}
	return out
}

// DriverDefinitions returns a copy of the driver-declared definition layer
// for persistence alongside the stored values.
func (m *Model) DriverDefinitions() Definitions {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(Definitions, len(m.driver))
	for name, def := range m.driver {
		out[name] = def
	}
	return out
}

// labelFor returns the definition label, falling back to the key name.
func labelFor(name string, def Definition) string {
	if def.Label != "" {
		return def.Label
	}
	return name
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
