package model

import (
	"encoding/json"
	"time"
)

// AuditAction is the kind of privileged mutation being recorded.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// AuditEntry is one append-only record of a privileged mutation.
// Before is nil for creates and After is nil for deletes.
type AuditEntry struct {
	ID         int64           `json:"id"`
	ActorEmail string          `json:"actor_email"`
	Action     AuditAction     `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   *int64          `json:"entity_id,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	SourceIP   string          `json:"ip,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
