package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"apphub/internal/model"
	"apphub/internal/repository"
)

// AuditPostgres is a PostgreSQL implementation of repository.AuditRepository.
// Rows are only ever inserted.
type AuditPostgres struct {
	db repository.DBTX
}

func NewAuditPostgres(db repository.DBTX) *AuditPostgres {
	return &AuditPostgres{db: db}
}

var _ repository.AuditRepository = (*AuditPostgres)(nil)

// Insert appends an entry and returns its id.
func (r *AuditPostgres) Insert(ctx context.Context, e *model.AuditEntry) (int64, error) {
	const q = `
		INSERT INTO audit_log (actor_email, action, entity_type, entity_id, before_json, after_json, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		e.ActorEmail,
		string(e.Action),
		e.EntityType,
		e.EntityID,
		jsonParam(e.Before),
		jsonParam(e.After),
		e.SourceIP,
		e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, classify(err, "audit entry")
	}
	return id, nil
}

// List returns entries newest first with a total count.
func (r *AuditPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.AuditEntry], error) {
	const qCount = `SELECT COUNT(*) FROM audit_log`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, classify(err, "list audit log")
	}

	const qList = `
		SELECT id, actor_email, action, entity_type, entity_id, before_json, after_json, COALESCE(ip, ''), created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, classify(err, "list audit log")
	}
	defer rows.Close()

	items := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e             model.AuditEntry
			action        string
			entityID      sql.NullInt64
			before, after []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.ActorEmail,
			&action,
			&e.EntityType,
			&entityID,
			&before,
			&after,
			&e.SourceIP,
			&e.CreatedAt,
		); err != nil {
			return nil, classify(err, "list audit log")
		}
		e.Action = model.AuditAction(action)
		if entityID.Valid {
			e.EntityID = &entityID.Int64
		}
		if len(before) > 0 {
			e.Before = json.RawMessage(before)
		}
		if len(after) > 0 {
			e.After = json.RawMessage(after)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list audit log")
	}

	return &repository.PageResult[model.AuditEntry]{
		Items: items,
		Total: total,
	}, nil
}

// jsonParam sends an absent snapshot as SQL NULL.
func jsonParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
