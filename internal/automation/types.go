package automation

// Security arm modes referenced by system-provisioned automations.
const (
	ArmedStay = 1
	ArmedAway = 2
)

// TypeSecurity marks the protected automation class: provisioned per
// account by the system and never deletable.
const TypeSecurity = "security"

// Condition is one trigger clause of an automation. The condition
// evaluation engine consuming these lives outside this registry.
type Condition struct {
	Type string `json:"type"`
	Mode int    `json:"mode,omitempty"`
}

// UserEditable flags which parts of an automation its owner may change.
// System-provisioned security automations lock all three.
type UserEditable struct {
	Name       bool `json:"name"`
	Conditions bool `json:"conditions"`
	Delete     bool `json:"delete"`
}

// Automation is one account-scoped rule.
type Automation struct {
	ID         string       `json:"id"`
	AccountID  string       `json:"account_id"`
	Name       string       `json:"name"`
	Enabled    bool         `json:"enabled"`
	Type       string       `json:"type"`
	Conditions []Condition  `json:"conditions"`
	Editable   UserEditable `json:"user_editable"`

	// SourceSystem is true for automations the system provisioned rather
	// than a user creating them.
	SourceSystem bool `json:"source_system"`
}

// ClientSerialize returns the externally shared view of the automation.
// Provenance stays internal.
func (a Automation) ClientSerialize() map[string]any {
	conditions := make([]map[string]any, len(a.Conditions))
	for i, c := range a.Conditions {
		conditions[i] = map[string]any{"type": c.Type}
		if c.Mode != 0 {
			conditions[i]["mode"] = c.Mode
		}
	}
	return map[string]any{
		"id":         a.ID,
		"name":       a.Name,
		"enabled":    a.Enabled,
		"type":       a.Type,
		"conditions": conditions,
		"user_editable": map[string]any{
			"name":       a.Editable.Name,
			"conditions": a.Editable.Conditions,
			"delete":     a.Editable.Delete,
		},
	}
}
