package model

// ProjectScope selects projects by their relationship to a user.
// Set fields are OR-combined; the zero value selects every project.
type ProjectScope struct {
	// BureauOrCreatorID matches projects whose bureau or creator is the user.
	BureauOrCreatorID string
	// AssignedAgentID matches projects holding an assignment for the user.
	AssignedAgentID string
}

// IsZero reports whether the scope selects every project.
func (s ProjectScope) IsZero() bool {
	return s.BureauOrCreatorID == "" && s.AssignedAgentID == ""
}

// Matches evaluates the scope against a loaded project.
func (s ProjectScope) Matches(p Project) bool {
	if s.IsZero() {
		return true
	}
	if id := s.BureauOrCreatorID; id != "" && (p.BureauID == id || p.CreatedByID == id) {
		return true
	}
	if id := s.AssignedAgentID; id != "" && p.HasAgent(id) {
		return true
	}
	return false
}

// TaskScope selects tasks either by direct assignment or through the owning
// project's relationship. Conditions are OR-combined; the zero value selects
// every task.
//
// Matching tasks by AssigneeID lets a user see tasks assigned to them on
// projects they cannot otherwise access. This widening is deliberate and only
// applies to task listings, never to point access checks.
type TaskScope struct {
	AssigneeID string
	Project    ProjectScope
}

// IsZero reports whether the scope selects every task.
func (s TaskScope) IsZero() bool {
	return s.AssigneeID == "" && s.Project.IsZero()
}

// Matches evaluates the scope against a task and its owning project.
func (s TaskScope) Matches(t Task, p Project) bool {
	if s.IsZero() {
		return true
	}
	if s.AssigneeID != "" && t.AssigneeID == s.AssigneeID {
		return true
	}
	return !s.Project.IsZero() && s.Project.Matches(p)
}
