package models

import (
	"encoding/json"
	"time"
)

// Domain records are owned by the scheduling domain; this engine proposes
// create/update/soft-delete operations against them. Each record carries the
// full entity payload in Data plus extracted columns used for duplicate
// matching and staleness checks. UpdatedAt is the authoritative last-modified
// instant compared against a mutation's client timestamp.

const (
	// AppointmentStatusScheduled is the initial status of a created appointment
	AppointmentStatusScheduled = "scheduled"
	// AppointmentStatusCancelled marks a soft-deleted appointment
	AppointmentStatusCancelled = "cancelled"
)

// SyncRecord is the surface reconcilers need from a domain record: identity,
// the authoritative last-modified instant, the stored payload, and the
// payload-application behavior.
type SyncRecord interface {
	RecordID() string
	LastModified() time.Time
	RecordData() json.RawMessage
	ApplyPayload(payload json.RawMessage, at time.Time) error
	Snapshot() json.RawMessage
}

type Appointment struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	StartsAt     time.Time       `json:"starts_at" db:"starts_at"`
	CustomerName string          `json:"customer_name" db:"customer_name"`
	Status       string          `json:"status" db:"status"`
	Data         json.RawMessage `json:"data" db:"data"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

type appointmentPayload struct {
	StartsAt     *time.Time `json:"starts_at"`
	CustomerName *string    `json:"customer_name"`
	Status       *string    `json:"status"`
}

// ApplyPayload merges the payload into Data and refreshes the extracted
// columns. The last-modified stamp is set to the client's timestamp so later
// mutations from the same offline window pass the staleness check.
func (a *Appointment) ApplyPayload(payload json.RawMessage, at time.Time) error {
	merged, err := MergePayload(a.Data, payload)
	if err != nil {
		return err
	}

	var p appointmentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if p.StartsAt != nil {
		a.StartsAt = *p.StartsAt
	}
	if p.CustomerName != nil {
		a.CustomerName = *p.CustomerName
	}
	if p.Status != nil {
		a.Status = *p.Status
	}

	a.Data = merged
	a.UpdatedAt = at
	return nil
}

// Snapshot returns the server-side view carried on conflict outcomes
func (a *Appointment) Snapshot() json.RawMessage {
	b, _ := json.Marshal(a)
	return b
}

func (a *Appointment) RecordID() string            { return a.ID }
func (a *Appointment) LastModified() time.Time     { return a.UpdatedAt }
func (a *Appointment) RecordData() json.RawMessage { return a.Data }

type Customer struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Name      string          `json:"name" db:"name"`
	Email     string          `json:"email" db:"email"`
	Phone     string          `json:"phone" db:"phone"`
	Data      json.RawMessage `json:"data" db:"data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

type customerPayload struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

func (c *Customer) ApplyPayload(payload json.RawMessage, at time.Time) error {
	merged, err := MergePayload(c.Data, payload)
	if err != nil {
		return err
	}

	var p customerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}

	c.Data = merged
	c.UpdatedAt = at
	return nil
}

func (c *Customer) Snapshot() json.RawMessage {
	b, _ := json.Marshal(c)
	return b
}

func (c *Customer) RecordID() string            { return c.ID }
func (c *Customer) LastModified() time.Time     { return c.UpdatedAt }
func (c *Customer) RecordData() json.RawMessage { return c.Data }

type ServiceEntry struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Name      string          `json:"name" db:"name"`
	Data      json.RawMessage `json:"data" db:"data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

type serviceEntryPayload struct {
	Name *string `json:"name"`
}

func (s *ServiceEntry) ApplyPayload(payload json.RawMessage, at time.Time) error {
	merged, err := MergePayload(s.Data, payload)
	if err != nil {
		return err
	}

	var p serviceEntryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if p.Name != nil {
		s.Name = *p.Name
	}

	s.Data = merged
	s.UpdatedAt = at
	return nil
}

func (s *ServiceEntry) Snapshot() json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func (s *ServiceEntry) RecordID() string            { return s.ID }
func (s *ServiceEntry) LastModified() time.Time     { return s.UpdatedAt }
func (s *ServiceEntry) RecordData() json.RawMessage { return s.Data }

type AvailabilityWindow struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	StartsAt  time.Time       `json:"starts_at" db:"starts_at"`
	EndsAt    time.Time       `json:"ends_at" db:"ends_at"`
	Data      json.RawMessage `json:"data" db:"data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

type availabilityPayload struct {
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

func (w *AvailabilityWindow) ApplyPayload(payload json.RawMessage, at time.Time) error {
	merged, err := MergePayload(w.Data, payload)
	if err != nil {
		return err
	}

	var p availabilityPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if p.StartsAt != nil {
		w.StartsAt = *p.StartsAt
	}
	if p.EndsAt != nil {
		w.EndsAt = *p.EndsAt
	}

	w.Data = merged
	w.UpdatedAt = at
	return nil
}

func (w *AvailabilityWindow) Snapshot() json.RawMessage {
	b, _ := json.Marshal(w)
	return b
}

func (w *AvailabilityWindow) RecordID() string            { return w.ID }
func (w *AvailabilityWindow) LastModified() time.Time     { return w.UpdatedAt }
func (w *AvailabilityWindow) RecordData() json.RawMessage { return w.Data }
