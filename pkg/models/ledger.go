package models

import (
	"encoding/json"
	"time"
)

// LedgerStatus is the lifecycle state of a ledger entry.
// pending -> success | conflict | error; conflict -> success via resolution.
type LedgerStatus string

const (
	LedgerStatusPending  LedgerStatus = "pending"
	LedgerStatusSuccess  LedgerStatus = "success"
	LedgerStatusConflict LedgerStatus = "conflict"
	LedgerStatusError    LedgerStatus = "error"
)

// LedgerEntry is the persistent record of one reconciliation attempt.
// Entries are never deleted; they transition to a terminal status exactly once.
type LedgerEntry struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	DeviceID        string          `json:"device_id,omitempty" db:"device_id"`
	Action          ActionKind      `json:"action" db:"action"`
	Entity          EntityKind      `json:"entity" db:"entity"`
	EntityRef       string          `json:"entity_ref" db:"entity_ref"`
	Status          LedgerStatus    `json:"status" db:"status"`
	ConflictReason  *string         `json:"conflict_reason,omitempty" db:"conflict_reason"`
	ErrorMessage    *string         `json:"error_message,omitempty" db:"error_message"`
	ClientTimestamp time.Time       `json:"client_timestamp" db:"client_timestamp"`
	ServerTimestamp time.Time       `json:"server_timestamp" db:"server_timestamp"`
	PayloadSnapshot json.RawMessage `json:"payload_snapshot,omitempty" db:"payload_snapshot"`
}

// ResolutionKind is the policy used to settle a flagged conflict
type ResolutionKind string

const (
	ResolutionClientWins ResolutionKind = "client_wins"
	ResolutionServerWins ResolutionKind = "server_wins"
	ResolutionManual     ResolutionKind = "manual"
)

// KnownResolutionKind reports whether the resolution kind is supported
func KnownResolutionKind(k ResolutionKind) bool {
	switch k {
	case ResolutionClientWins, ResolutionServerWins, ResolutionManual:
		return true
	}
	return false
}

// ConflictResolution records a resolution decision. Written before the ledger
// entry transitions so the decision is auditable independent of its outcome.
type ConflictResolution struct {
	ID              string          `json:"id" db:"id"`
	LedgerEntryID   string          `json:"ledger_entry_id" db:"ledger_entry_id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Kind            ResolutionKind  `json:"kind" db:"kind"`
	ResolvedPayload json.RawMessage `json:"resolved_payload,omitempty" db:"resolved_payload"`
	ResolvedBy      string          `json:"resolved_by" db:"resolved_by"`
	ResolvedAt      time.Time       `json:"resolved_at" db:"resolved_at"`
}

// SyncStatus is the derived per-user view of outstanding sync work
type SyncStatus struct {
	LastSuccessfulSync     *time.Time `json:"last_successful_sync,omitempty"`
	PendingChangeCount     int        `json:"pending_change_count"`
	HasUnresolvedConflicts bool       `json:"has_unresolved_conflicts"`
}

// ConflictListResponse is a paginated page of the conflict review queue
type ConflictListResponse struct {
	Items      []PendingConflict `json:"items"`
	TotalCount int               `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
}

// PendingConflict is the review-queue projection of a conflicted ledger entry
type PendingConflict struct {
	LedgerEntryID   string          `json:"ledger_entry_id" db:"id"`
	Entity          EntityKind      `json:"entity" db:"entity"`
	EntityRef       string          `json:"entity_ref" db:"entity_ref"`
	Action          ActionKind      `json:"action" db:"action"`
	ConflictReason  string          `json:"conflict_reason" db:"conflict_reason"`
	ClientTimestamp time.Time       `json:"client_timestamp" db:"client_timestamp"`
	PayloadSnapshot json.RawMessage `json:"payload_snapshot,omitempty" db:"payload_snapshot"`
}
