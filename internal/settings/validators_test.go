package settings

import (
	"errors"
	"strings"
	"testing"
)

func TestTypeValidators(t *testing.T) {
	tests := []struct {
		name       string
		defType    string
		constraint any
		value      any
		wantErr    string
	}{
		{name: "string ok", defType: "string", value: "lamp"},
		{name: "string rejects number", defType: "string", value: 3, wantErr: "must be a string"},
		{name: "boolean ok", defType: "boolean", value: true},
		{name: "boolean rejects string", defType: "boolean", value: "true", wantErr: "must be boolean"},
		{name: "decimal ok", defType: "decimal", value: 1.5},
		{name: "decimal accepts int", defType: "decimal", value: 7},
		{name: "decimal rejects string", defType: "decimal", value: "1.5", wantErr: "must be a number"},
		{name: "integer ok", defType: "integer", value: 4},
		{name: "integer accepts whole float", defType: "integer", value: 4.0},
		{name: "integer rejects fraction", defType: "integer", value: 4.5, wantErr: "must be a whole number"},
		{name: "percentage default scale ok", defType: "percentage", value: 0.5},
		{name: "percentage default scale over", defType: "percentage", value: 1.5, wantErr: "must be a number between 0 and 1"},
		{name: "percentage negative", defType: "percentage", value: -0.1, wantErr: "must be a number between 0 and 1"},
		{name: "percentage scaled ok", defType: "percentage", constraint: 100, value: 42},
		{name: "percentage scaled over", defType: "percentage", constraint: 100, value: 101, wantErr: "must be a number between 0 and 100"},
		{name: "color ok", defType: "color", value: []any{255, 255, 255}},
		{name: "color wrong arity", defType: "color", value: []any{255, 255}, wantErr: "must be an RGB array"},
		{name: "color component out of range", defType: "color", value: []any{255, 300, 0}, wantErr: "must be an RGB array"},
		{name: "color rejects string", defType: "color", value: "#ffffff", wantErr: "must be an RGB array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validate, err := typeValidatorFor(tt.defType, tt.constraint)
			if err != nil {
				t.Fatalf("typeValidatorFor(%q) error: %v", tt.defType, err)
			}

			err = validate(tt.value, "Field")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTypeValidatorForUnknownType(t *testing.T) {
	_, err := typeValidatorFor("quaternion", nil)
	if !errors.Is(err, ErrUnknownValidator) {
		t.Fatalf("expected ErrUnknownValidator, got %v", err)
	}
}

func TestConstraintValidators(t *testing.T) {
	tests := []struct {
		name       string
		validation map[string]any
		value      any
		wantErr    string
	}{
		{name: "required present", validation: map[string]any{"is_required": true}, value: "x"},
		{name: "required empty string", validation: map[string]any{"is_required": true}, value: "", wantErr: "is required"},
		{name: "required nil", validation: map[string]any{"is_required": true}, value: nil, wantErr: "is required"},
		{name: "required false accepts zero number", validation: map[string]any{"is_required": true}, value: 0},
		{name: "min ok", validation: map[string]any{"min": 5}, value: 5},
		{name: "min under", validation: map[string]any{"min": 5}, value: 4, wantErr: "must be at least 5"},
		{name: "max ok", validation: map[string]any{"max": 10}, value: 10},
		{name: "max over", validation: map[string]any{"max": 10}, value: 11, wantErr: "must be no more than 10"},
		{name: "min_length ok", validation: map[string]any{"min_length": 3}, value: "abc"},
		{name: "min_length short", validation: map[string]any{"min_length": 3}, value: "ab", wantErr: "at least 3 characters"},
		{name: "max_length ok", validation: map[string]any{"max_length": 3}, value: "abc"},
		{name: "max_length long", validation: map[string]any{"max_length": 3}, value: "abcd", wantErr: "no more than 3 characters"},
		{name: "one-of match", validation: map[string]any{"one-of": []any{"on", "off"}}, value: "off"},
		{name: "one-of miss", validation: map[string]any{"one-of": []any{"on", "off"}}, value: "dim", wantErr: "must be one of these: on (string), off (string)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validators, err := constraintValidatorsFor(tt.validation)
			if err != nil {
				t.Fatalf("constraintValidatorsFor error: %v", err)
			}

			var got error
			for _, validate := range validators {
				if err := validate(tt.value, "Field"); err != nil {
					got = err
					break
				}
			}

			if tt.wantErr == "" {
				if got != nil {
					t.Fatalf("unexpected error: %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(got.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", got.Error(), tt.wantErr)
			}
		})
	}
}

func TestConstraintValidatorsCanonicalOrder(t *testing.T) {
	// min runs before max_length regardless of map iteration order, so the
	// first failure for a value violating both is the min failure.
	validators, err := constraintValidatorsFor(map[string]any{
		"max_length": 2,
		"min":        10,
	})
	if err != nil {
		t.Fatalf("constraintValidatorsFor error: %v", err)
	}

	var got error
	for _, validate := range validators {
		if err := validate(3, "Field"); err != nil {
			got = err
			break
		}
	}
	if got == nil || !strings.Contains(got.Error(), "at least 10") {
		t.Fatalf("expected min failure first, got %v", got)
	}
}

func TestConstraintValidatorsForUnknownKey(t *testing.T) {
	_, err := constraintValidatorsFor(map[string]any{"regex": ".*"})
	if !errors.Is(err, ErrUnknownValidator) {
		t.Fatalf("expected ErrUnknownValidator, got %v", err)
	}
	if !strings.Contains(err.Error(), "regex") {
		t.Fatalf("error %q does not name the unknown key", err.Error())
	}
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"string", "x", false},
		{"false boolean", false, false},
		{"zero number", 0, false},
		{"empty slice", []any{}, true},
		{"slice", []any{1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmpty(tt.value); got != tt.want {
				t.Fatalf("isEmpty(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	if got := formatNumber(1); got != "1" {
		t.Fatalf("formatNumber(1) = %q", got)
	}
	if got := formatNumber(0.5); got != "0.5" {
		t.Fatalf("formatNumber(0.5) = %q", got)
	}
	if got := formatNumber(255); got != "255" {
		t.Fatalf("formatNumber(255) = %q", got)
	}
}
