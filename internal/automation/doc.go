// Package automation is the account-scoped automation registry.
//
// The Manager keeps the in-memory rule set strictly behind persistence:
// persist first, register second, so memory never shows an automation that
// failed to save. Every register and deregister fans the owning account's
// full list out through the Notifier as an "automations-update" event and
// calls into the Automator collaborator that wires conditions to the live
// event stream.
//
// The first time an account's automations are requested and it owns no
// security-type rule, the baseline "Armed Stay" and "Armed Away" pair is
// provisioned with locked name, conditions and deletion. Security
// automations can never be deleted afterwards.
package automation
