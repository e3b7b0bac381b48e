package settings

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Validator checks a single candidate value against one constraint.
// It returns nil when the value is acceptable, or an error naming the
// field's label and the violated constraint.
type Validator func(value any, label string) error

// validatorFactory builds a Validator from its constraint value
// (e.g. the 24 in max_length: 24).
type validatorFactory func(constraint any) Validator

// constraintOrder fixes the order constraint validators run in for one key.
// Presence is checked first so an absent optional value short-circuits
// cleanly, then range, then length, then membership.
var constraintOrder = []string{
	"is_required",
	"min",
	"max",
	"min_length",
	"max_length",
	"one-of",
}

// typeValidators maps a definition type to its type-check factory.
// The constraint is the percentage scale where applicable.
var typeValidators = map[string]validatorFactory{
	"string": func(any) Validator {
		return func(value any, label string) error {
			if _, ok := value.(string); !ok {
				return fmt.Errorf("%s must be a string", label)
			}
			return nil
		}
	},
	"boolean": func(any) Validator {
		return func(value any, label string) error {
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("%s must be boolean", label)
			}
			return nil
		}
	},
	"decimal": func(any) Validator {
		return func(value any, label string) error {
			if n, ok := numberValue(value); !ok || math.IsNaN(n) || math.IsInf(n, 0) {
				return fmt.Errorf("%s must be a number", label)
			}
			return nil
		}
	},
	"integer": func(any) Validator {
		return func(value any, label string) error {
			n, ok := numberValue(value)
			if !ok || n != math.Trunc(n) {
				return fmt.Errorf("%s must be a whole number", label)
			}
			return nil
		}
	},
	"percentage": func(constraint any) Validator {
		scale, ok := numberValue(constraint)
		if !ok || scale <= 0 {
			scale = 1
		}
		return func(value any, label string) error {
			n, isNum := numberValue(value)
			if !isNum || n < 0 || n > scale {
				return fmt.Errorf("%s must be a number between 0 and %s", label, formatNumber(scale))
			}
			return nil
		}
	},
	"color": func(any) Validator {
		return func(value any, label string) error {
			if !isValidRGB(value) {
				return fmt.Errorf("%s must be an RGB array (e.g. [255, 255, 255])", label)
			}
			return nil
		}
	},
}

// constraintValidators maps a validation key to its factory.
var constraintValidators = map[string]validatorFactory{
	"is_required": func(constraint any) Validator {
		required, _ := constraint.(bool)
		return func(value any, label string) error {
			if required && isEmpty(value) {
				return fmt.Errorf("%s is required", label)
			}
			return nil
		}
	},
	"min": func(constraint any) Validator {
		min, _ := numberValue(constraint)
		return func(value any, label string) error {
			if n, ok := numberValue(value); !ok || n < min {
				return fmt.Errorf("%s must be at least %s", label, formatNumber(min))
			}
			return nil
		}
	},
	"max": func(constraint any) Validator {
		max, _ := numberValue(constraint)
		return func(value any, label string) error {
			if n, ok := numberValue(value); !ok || n > max {
				return fmt.Errorf("%s must be no more than %s", label, formatNumber(max))
			}
			return nil
		}
	},
	"min_length": func(constraint any) Validator {
		minLen, _ := numberValue(constraint)
		return func(value any, label string) error {
			if lengthOf(value) < int(minLen) {
				return fmt.Errorf("%s must be at least %d characters long", label, int(minLen))
			}
			return nil
		}
	},
	"max_length": func(constraint any) Validator {
		maxLen, _ := numberValue(constraint)
		return func(value any, label string) error {
			if lengthOf(value) > int(maxLen) {
				return fmt.Errorf("%s must be no more than %d characters long", label, int(maxLen))
			}
			return nil
		}
	},
	"one-of": func(constraint any) Validator {
		options, _ := constraint.([]any)
		return func(value any, label string) error {
			for _, option := range options {
				if option == value {
					return nil
				}
			}
			descriptions := make([]string, len(options))
			for i, option := range options {
				descriptions[i] = fmt.Sprintf("%v (%T)", option, option)
			}
			return fmt.Errorf("%s must be one of these: %s", label, strings.Join(descriptions, ", "))
		}
	},
}

// typeValidatorFor returns the type-check validator for a definition type.
// The constraint parameterises the check (percentage scale).
func typeValidatorFor(defType string, constraint any) (Validator, error) {
	factory, ok := typeValidators[defType]
	if !ok {
		return nil, fmt.Errorf("%w: type %q", ErrUnknownValidator, defType)
	}
	return factory(constraint), nil
}

// constraintValidatorsFor returns the constraint validators declared in a
// validation map, in canonical order. Unknown validation keys are a
// configuration error, not a value error.
func constraintValidatorsFor(validation map[string]any) ([]Validator, error) {
	if len(validation) == 0 {
		return nil, nil
	}

	known := make(map[string]bool, len(constraintOrder))
	for _, name := range constraintOrder {
		known[name] = true
	}

	var unknown []string
	for name := range validation {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownValidator, strings.Join(unknown, ", "))
	}

	var validators []Validator
	for _, name := range constraintOrder {
		constraint, declared := validation[name]
		if !declared {
			continue
		}
		validators = append(validators, constraintValidators[name](constraint))
	}
	return validators, nil
}

// isEmpty reports whether a value counts as absent for is_required.
// Booleans and non-NaN numbers are never empty; nil, empty strings and
// empty slices are.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return false
	case string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		if n, ok := numberValue(value); ok {
			return math.IsNaN(n)
		}
		return false
	}
}

// numberValue normalises the numeric types JSON decoding and Go callers
// produce into a float64.
func numberValue(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}

// lengthOf returns the length of a string or slice, or -1 for other types
// so every length constraint fails on them.
func lengthOf(value any) int {
	switch v := value.(type) {
	case string:
		return len(v)
	case []any:
		return len(v)
	default:
		return -1
	}
}

// isValidRGB reports whether value is a 3-element numeric array with each
// component in 0-255.
func isValidRGB(value any) bool {
	components, ok := value.([]any)
	if !ok || len(components) != 3 {
		return false
	}
	for _, component := range components {
		n, isNum := numberValue(component)
		if !isNum || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// formatNumber renders a constraint number without a trailing ".0" for
// whole values, matching how bounds read in error messages.
func formatNumber(n float64) string {
	if n == math.Trunc(n) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
