// Package audit records security-relevant authentication events to an
// append-only trail. The trail is best-effort: recording failures are
// surfaced to the caller but never block the event's operation.
package audit

import "time"

// EventType classifies an audit event
type EventType string

const (
	EventLogin           EventType = "login"
	EventLoginFailure    EventType = "login_failure"
	EventLogout          EventType = "logout"
	EventUserProvisioned EventType = "user_provisioned"
	EventRoleChanged     EventType = "role_changed"
	EventUserDeleted     EventType = "user_deleted"
	EventUserDeactivated EventType = "user_deactivated"
)

// Event is one entry in the audit trail.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Username is the subject of the event.
	Username string `json:"username,omitempty"`

	// Actor is who performed the action, when different from the subject.
	Actor string `json:"actor,omitempty"`

	// Provider is the identity provider involved, for login events.
	Provider string `json:"provider,omitempty"`

	// Detail carries event-specific context, e.g. the failure stage or
	// the new role.
	Detail string `json:"detail,omitempty"`
}

// Trail is a sink for audit events
type Trail interface {
	// Record appends an event to the trail. The timestamp is filled in
	// when zero.
	Record(event Event) error

	// Close flushes and releases the trail.
	Close() error
}

// NopTrail discards every event. Used when no audit log is configured.
type NopTrail struct{}

func (NopTrail) Record(Event) error { return nil }

func (NopTrail) Close() error { return nil }
