package state

import "sync"

// State is an observable key/value map. Every mutation invokes the change
// callback after the write completes, letting the owner debounce
// notification and persistence without intercepting property access.
//
// All methods are safe for concurrent use. The callback runs outside the
// internal lock, so it may call back into the State.
type State struct {
	mu       sync.Mutex
	values   map[string]any
	onChange func()
}

// New creates a State with the given initial values. onChange may be nil.
func New(values map[string]any, onChange func()) *State {
	s := &State{
		values:   make(map[string]any, len(values)),
		onChange: onChange,
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// SetOnChange replaces the change callback.
func (s *State) SetOnChange(onChange func()) {
	s.mu.Lock()
	s.onChange = onChange
	s.mu.Unlock()
}

// Set stores one value and fires the change callback. Writing a value
// equal to the current one still counts as a mutation; callers that care
// about redundant writes filter before calling.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// Merge stores every entry of values and fires the change callback once.
// An empty map is a no-op.
func (s *State) Merge(values map[string]any) {
	if len(values) == 0 {
		return
	}

	s.mu.Lock()
	for k, v := range values {
		s.values[k] = v
	}
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// Get returns one value.
func (s *State) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// Bool returns one value as a boolean, false when absent or non-boolean.
func (s *State) Bool(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, _ := s.values[key].(bool)
	return b
}

// Snapshot returns a copy of the current values.
func (s *State) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
