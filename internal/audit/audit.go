// Package audit is the single port every privileged write goes through to
// leave an append-only record of what changed.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"apphub/internal/apperr"
	"apphub/internal/model"
)

// Sink stores audit entries. It is normally the audit repository bound to
// the same transaction as the mutation being recorded.
type Sink interface {
	Insert(ctx context.Context, e *model.AuditEntry) (int64, error)
}

// Mutation describes one privileged change. Before is nil for creates and
// After is nil for deletes; both are marshalled to JSON as given.
type Mutation struct {
	Actor      string
	Action     model.AuditAction
	EntityType string
	EntityID   *int64
	Before     any
	After      any
	SourceIP   string
}

// Recorder turns mutations into audit entries.
type Recorder struct {
	now func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record appends one entry for m to sink. The timestamp is taken in UTC.
func (r *Recorder) Record(ctx context.Context, sink Sink, m Mutation) (*model.AuditEntry, error) {
	if m.Actor == "" || m.EntityType == "" {
		return nil, apperr.Internal(nil, "audit entry needs an actor and an entity type")
	}
	switch m.Action {
	case model.AuditCreate, model.AuditUpdate, model.AuditDelete:
	default:
		return nil, apperr.Internal(nil, fmt.Sprintf("unknown audit action %q", m.Action))
	}

	before, err := snapshot(m.Before)
	if err != nil {
		return nil, apperr.Internal(err, "encode before snapshot")
	}
	after, err := snapshot(m.After)
	if err != nil {
		return nil, apperr.Internal(err, "encode after snapshot")
	}

	e := &model.AuditEntry{
		ActorEmail: model.NormalizeEmail(m.Actor),
		Action:     m.Action,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Before:     before,
		After:      after,
		SourceIP:   m.SourceIP,
		CreatedAt:  r.now().UTC(),
	}
	id, err := sink.Insert(ctx, e)
	if err != nil {
		return nil, err
	}
	e.ID = id
	return e, nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

// ID is a convenience for building Mutation.EntityID from a value.
func ID(id int64) *int64 { return &id }
