package audit

import (
	"encoding/json"
	"fmt"
)

// Detail is the payload attached to an audit entry. The set of variants is
// closed: Snapshot and ChangeSet.
type Detail interface {
	detailKind() string
}

const (
	kindSnapshot = "snapshot"
	kindChanges  = "changes"
)

// Snapshot identifies the record that was created or deleted.
type Snapshot struct {
	Title string `json:"title,omitempty"`
}

func (Snapshot) detailKind() string { return kindSnapshot }

// StatusChange records a status transition.
type StatusChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ProgressChange records a progress transition in percent.
type ProgressChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ChangeSet lists the tracked fields an update touched. Nil fields did not change.
type ChangeSet struct {
	Status   *StatusChange   `json:"status,omitempty"`
	Progress *ProgressChange `json:"progress,omitempty"`
}

func (ChangeSet) detailKind() string { return kindChanges }

// Empty reports whether no tracked field changed.
func (c ChangeSet) Empty() bool {
	return c.Status == nil && c.Progress == nil
}

type envelope struct {
	Kind     string          `json:"kind"`
	Title    string          `json:"title,omitempty"`
	Status   *StatusChange   `json:"status,omitempty"`
	Progress *ProgressChange `json:"progress,omitempty"`
}

// EncodeDetail renders d as JSON tagged with its kind. A nil detail encodes as null.
func EncodeDetail(d Detail) ([]byte, error) {
	switch v := d.(type) {
	case nil:
		return []byte("null"), nil
	case Snapshot:
		return json.Marshal(envelope{Kind: kindSnapshot, Title: v.Title})
	case *Snapshot:
		return EncodeDetail(*v)
	case ChangeSet:
		return json.Marshal(envelope{Kind: kindChanges, Status: v.Status, Progress: v.Progress})
	case *ChangeSet:
		return EncodeDetail(*v)
	default:
		return nil, fmt.Errorf("unsupported audit detail %T", d)
	}
}

// DecodeDetail reverses EncodeDetail.
func DecodeDetail(raw []byte) (Detail, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode audit detail: %w", err)
	}
	switch env.Kind {
	case kindSnapshot:
		return Snapshot{Title: env.Title}, nil
	case kindChanges:
		return ChangeSet{Status: env.Status, Progress: env.Progress}, nil
	default:
		return nil, fmt.Errorf("unknown audit detail kind %q", env.Kind)
	}
}
