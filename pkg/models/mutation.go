package models

import (
	"encoding/json"
	"time"
)

// ActionKind is the kind of change a device recorded while offline
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// EntityKind identifies which domain record a mutation targets
type EntityKind string

const (
	EntityAppointment  EntityKind = "appointment"
	EntityCustomer     EntityKind = "customer"
	EntityService      EntityKind = "service"
	EntityAvailability EntityKind = "availability"
)

// KnownActionKind reports whether the action kind is one the engine supports
func KnownActionKind(a ActionKind) bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// KnownEntityKind reports whether the entity kind is one the engine supports
func KnownEntityKind(e EntityKind) bool {
	switch e {
	case EntityAppointment, EntityCustomer, EntityService, EntityAvailability:
		return true
	}
	return false
}

// MutationRequest is one offline change replayed against server state.
// EntityRef is a server ID for updates/deletes of known records, or a
// client-generated placeholder for records created while offline.
type MutationRequest struct {
	UserID          string          `json:"user_id"`
	DeviceID        string          `json:"device_id,omitempty"`
	Action          ActionKind      `json:"action" validate:"required,oneof=create update delete"`
	Entity          EntityKind      `json:"entity" validate:"required,oneof=appointment customer service availability"`
	EntityRef       string          `json:"entity_ref" validate:"required"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ClientTimestamp time.Time       `json:"client_timestamp" validate:"required"`
}

// SyncOutcome is the terminal result of reconciling one mutation.
// Exactly one of Success, Conflict, or ErrorMessage describes the outcome.
type SyncOutcome struct {
	Success        bool            `json:"success"`
	ServerRef      string          `json:"server_ref,omitempty"`
	Conflict       bool            `json:"conflict"`
	ConflictReason string          `json:"conflict_reason,omitempty"`
	ServerSnapshot json.RawMessage `json:"server_snapshot,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	LedgerEntryID  string          `json:"ledger_entry_id,omitempty"`
}

// SuccessOutcome builds a success outcome pointing at the server record
func SuccessOutcome(serverRef string) SyncOutcome {
	return SyncOutcome{Success: true, ServerRef: serverRef}
}

// ConflictOutcome builds a conflict outcome carrying the server's current view
func ConflictOutcome(reason string, snapshot json.RawMessage) SyncOutcome {
	return SyncOutcome{Conflict: true, ConflictReason: reason, ServerSnapshot: snapshot}
}

// ErrorOutcome builds a non-conflict failure outcome
func ErrorOutcome(message string) SyncOutcome {
	return SyncOutcome{ErrorMessage: message}
}
