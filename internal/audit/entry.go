package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Entity is the kind of record an audit entry refers to.
type Entity string

const (
	EntityProject Entity = "Project"
	EntityTask    Entity = "Task"
	EntityComment Entity = "Comment"
	EntityUser    Entity = "User"
)

// Action is what happened to the entity.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Entry is an append-only audit record. ProjectID is empty when the entry is
// not tied to a live project.
type Entry struct {
	ID        string
	ActorID   string
	Entity    Entity
	EntityID  string
	Action    Action
	Detail    Detail
	ProjectID string
	CreatedAt time.Time
}

// MarshalJSON encodes the entry with its tagged detail.
func (e Entry) MarshalJSON() ([]byte, error) {
	detail, err := EncodeDetail(e.Detail)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID        string          `json:"id"`
		ActorID   string          `json:"actor_id"`
		Entity    Entity          `json:"entity"`
		EntityID  string          `json:"entity_id"`
		Action    Action          `json:"action"`
		Detail    json.RawMessage `json:"detail"`
		ProjectID string          `json:"project_id,omitempty"`
		CreatedAt time.Time       `json:"created_at"`
	}{e.ID, e.ActorID, e.Entity, e.EntityID, e.Action, detail, e.ProjectID, e.CreatedAt})
}

// Store persists audit entries. Implementations never update or delete them.
type Store interface {
	AppendAudit(ctx context.Context, entry Entry) error
	// ListAudit returns the newest entries for a project, newest first.
	ListAudit(ctx context.Context, projectID string, limit int) ([]Entry, error)
}
