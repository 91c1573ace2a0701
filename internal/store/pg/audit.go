package pg

import (
	"context"
	"fmt"

	"sitetrack.io/internal/audit"
)

// AppendAudit inserts an audit row. Rows are never updated or deleted.
func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	detail, err := audit.EncodeDetail(e.Detail)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_logs (id, actor_id, entity, entity_id, action, detail, project_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.ActorID, string(e.Entity), e.EntityID, string(e.Action), detail, nullIfEmpty(e.ProjectID), e.CreatedAt)
	return err
}

// ListAudit returns up to limit entries for projectID, newest first. A
// non-positive limit returns every entry.
func (s *Store) ListAudit(ctx context.Context, projectID string, limit int) ([]audit.Entry, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_id, entity, entity_id, action, detail, coalesce(project_id, ''), created_at
		from audit_logs
		where project_id = $1
		order by created_at desc, id desc
		limit $2
	`, projectID, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e              audit.Entry
			entity, action string
			raw            []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &entity, &e.EntityID, &action, &raw, &e.ProjectID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Entity, e.Action = audit.Entity(entity), audit.Action(action)
		if e.Detail, err = audit.DecodeDetail(raw); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
