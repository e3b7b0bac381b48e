package settings

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func lightDefinitions() Definitions {
	return Definitions{
		"name": {
			Type:  "string",
			Label: "Name",
			Validation: map[string]any{
				"is_required": true,
				"max_length":  24,
			},
		},
		"brightness": {
			Type:         "percentage",
			Label:        "Brightness",
			DefaultValue: 1.0,
			Validation:   map[string]any{"scale": 1},
		},
		"color": {
			Type:         "color",
			Label:        "Color",
			DefaultValue: []any{255, 255, 255},
		},
	}
}

func TestSetStoresValidValues(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, nil)

	if err := m.Set(map[string]any{"name": "Porch", "brightness": 0.4}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got := m.Serialize()
	want := map[string]any{
		"name":       "Porch",
		"brightness": 0.4,
		"color":      []any{255, 255, 255},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Serialize() = %#v, want %#v", got, want)
	}
}

func TestSetInvalidWriteMutatesNothing(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, map[string]any{
		"name":       "Hall",
		"brightness": 0.8,
	})
	before := m.Serialize()

	err := m.Set(map[string]any{
		"name":       "Porch",
		"brightness": 1.5,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var failures *ValidationErrors
	if !errors.As(err, &failures) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if failures.Len() != 1 {
		t.Fatalf("expected 1 failed field, got %d: %v", failures.Len(), failures.Fields())
	}
	msg, ok := failures.Field("brightness")
	if !ok {
		t.Fatal("expected a failure for brightness")
	}
	if !strings.Contains(msg, "between 0 and 1") {
		t.Fatalf("failure %q does not mention the 0-1 bound", msg)
	}

	// The valid name in the same batch must not have applied either.
	after := m.Serialize()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state mutated on failed Set: before %#v, after %#v", before, after)
	}
}

func TestSetCollectsOneFailurePerField(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, nil)

	err := m.Set(map[string]any{
		"name":       "",
		"brightness": 2.0,
		"color":      []any{500, 0, 0},
	})

	var failures *ValidationErrors
	if !errors.As(err, &failures) {
		t.Fatalf("expected *ValidationErrors, got %T (%v)", err, err)
	}
	if failures.Len() != 3 {
		t.Fatalf("expected 3 failed fields, got %d: %v", failures.Len(), failures.Fields())
	}
	for _, field := range []string{"name", "brightness", "color"} {
		if _, ok := failures.Field(field); !ok {
			t.Errorf("missing failure for %s", field)
		}
	}
}

func TestRequiredAbsentValueReportsRequirement(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, nil)

	for _, value := range []any{nil, ""} {
		err := m.Set(map[string]any{"name": value})

		var failures *ValidationErrors
		if !errors.As(err, &failures) {
			t.Fatalf("value %#v: expected *ValidationErrors, got %T (%v)", value, err, err)
		}
		msg, ok := failures.Field("name")
		if !ok {
			t.Fatalf("value %#v: expected a failure for name", value)
		}
		// Presence wins over the type check for absent values.
		if !strings.Contains(msg, "is required") {
			t.Fatalf("value %#v: failure %q does not report the requirement", value, msg)
		}
	}
}

func TestSetUnknownKey(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, nil)

	err := m.Set(map[string]any{"volume": 3})

	var failures *ValidationErrors
	if !errors.As(err, &failures) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if msg, _ := failures.Field("volume"); !strings.Contains(msg, "not a recognised setting") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestSetReadOnlyRejected(t *testing.T) {
	defs := Definitions{
		"serial": {Type: "string", Label: "Serial", ReadOnly: true},
	}
	m := NewModel(defs, nil, map[string]any{"serial": "abc-123"})

	err := m.Set(map[string]any{"serial": "xyz-999"})
	var failures *ValidationErrors
	if !errors.As(err, &failures) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if value, _ := m.Get("serial"); value != "abc-123" {
		t.Fatalf("read-only value changed to %v", value)
	}
}

func TestSetAbsentOptionalValueSkipsTypeCheck(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, map[string]any{"brightness": 0.8})

	// Clearing an optional setting with nil is allowed.
	if err := m.Set(map[string]any{"brightness": nil}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
}

func TestSetConfigErrorReturnedDirectly(t *testing.T) {
	defs := Definitions{
		"mode": {
			Type:       "string",
			Label:      "Mode",
			Validation: map[string]any{"regex": ".*"},
		},
	}
	m := NewModel(defs, nil, nil)

	err := m.Set(map[string]any{"mode": "auto"})
	if !errors.Is(err, ErrUnknownValidator) {
		t.Fatalf("expected ErrUnknownValidator, got %v", err)
	}
	var failures *ValidationErrors
	if errors.As(err, &failures) {
		t.Fatal("configuration error must not surface as ValidationErrors")
	}
}

func TestSetHooksFireOnlyOnSuccess(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, nil)

	var applied map[string]any
	saves := 0
	m.SetHooks(func(values map[string]any) { applied = values }, func() { saves++ })

	if err := m.Set(map[string]any{"brightness": 1.5}); err == nil {
		t.Fatal("expected validation error")
	}
	if applied != nil || saves != 0 {
		t.Fatalf("hooks fired on failed Set: applied=%v saves=%d", applied, saves)
	}

	if err := m.Set(map[string]any{"brightness": 0.25}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if saves != 1 {
		t.Fatalf("expected 1 save, got %d", saves)
	}
	if !reflect.DeepEqual(applied, map[string]any{"brightness": 0.25}) {
		t.Fatalf("unexpected applied values %#v", applied)
	}
}

func TestSetDefinitionsLaterLayerWins(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, nil)

	// A driver widens brightness to a 0-255 scale.
	m.SetDefinitions(Definitions{
		"brightness": {
			Type:       "percentage",
			Label:      "Brightness",
			Validation: map[string]any{"scale": 255},
		},
	})

	if err := m.Set(map[string]any{"brightness": 200}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	err := m.Set(map[string]any{"brightness": 256})
	var failures *ValidationErrors
	if !errors.As(err, &failures) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if msg, _ := failures.Field("brightness"); !strings.Contains(msg, "between 0 and 255") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestGetFallsBackToDefault(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, nil)

	value, ok := m.Get("brightness")
	if !ok || value != 1.0 {
		t.Fatalf("Get(brightness) = %v, %v; want default 1.0", value, ok)
	}

	if _, ok := m.Get("nonexistent"); ok {
		t.Fatal("Get for undefined setting should report absence")
	}
}

func TestSerializeViews(t *testing.T) {
	defs := Definitions{
		"name":    {Type: "string", Label: "Name"},
		"api_key": {Type: "string", Label: "API Key", ExcludeFromClient: true},
		"session": {Type: "string", Label: "Session", ExcludeFromDB: true},
	}
	m := NewModel(defs, nil, map[string]any{
		"name":    "Hub",
		"api_key": "secret",
		"session": "ephemeral",
	})

	client := m.Serialize()
	if _, leaked := client["api_key"]; leaked {
		t.Fatal("api_key leaked into client serialisation")
	}
	if client["session"] != "ephemeral" {
		t.Fatalf("session missing from client view: %#v", client)
	}

	db := m.DBSerialize()
	if _, leaked := db["session"]; leaked {
		t.Fatal("session leaked into db serialisation")
	}
	if db["api_key"] != "secret" {
		t.Fatalf("api_key missing from db view: %#v", db)
	}
}

func TestDBSerializeOmitsDefaults(t *testing.T) {
	m := NewModel(lightDefinitions(), nil, nil)
	if got := m.DBSerialize(); len(got) != 0 {
		t.Fatalf("DBSerialize materialised defaults: %#v", got)
	}
}

func TestDriverDefinitionsCopied(t *testing.T) {
	driver := Definitions{
		"sensitivity": {Type: "percentage", Label: "Sensitivity", DefaultValue: 0.5},
	}
	m := NewModel(nil, driver, nil)

	got := m.DriverDefinitions()
	if !reflect.DeepEqual(got, driver) {
		t.Fatalf("DriverDefinitions() = %#v, want %#v", got, driver)
	}

	got["sensitivity"] = Definition{Type: "string"}
	again := m.DriverDefinitions()
	if again["sensitivity"].Type != "percentage" {
		t.Fatal("DriverDefinitions returned shared state")
	}
}
