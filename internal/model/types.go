package model

import (
	"strings"
	"time"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleBureau  Role = "BUREAU"
	RoleTerrain Role = "TERRAIN"
)

// ParseRole normalizes raw input into a known role.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleBureau, RoleTerrain:
		return r, true
	default:
		return "", false
	}
}

// ProjectStatus tracks the lifecycle of a construction project.
type ProjectStatus string

const (
	ProjectPlanned    ProjectStatus = "PLANNED"
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectOnHold     ProjectStatus = "ON_HOLD"
	ProjectDelivered  ProjectStatus = "DELIVERED"
	ProjectClosed     ProjectStatus = "CLOSED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanned, ProjectInProgress, ProjectOnHold, ProjectDelivered, ProjectClosed:
		return true
	}
	return false
}

// TaskStatus tracks the progress of a single task.
type TaskStatus string

const (
	TaskTodo    TaskStatus = "TODO"
	TaskDoing   TaskStatus = "DOING"
	TaskReview  TaskStatus = "REVIEW"
	TaskDone    TaskStatus = "DONE"
	TaskBlocked TaskStatus = "BLOCKED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskDoing, TaskReview, TaskDone, TaskBlocked:
		return true
	}
	return false
}

// User is an account of the tracking application.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSummary decorates a user with relationship counts for the admin listing.
type UserSummary struct {
	User
	BureauProjects  int `json:"bureau_projects"`
	TerrainProjects int `json:"terrain_projects"`
	AssignedTasks   int `json:"assigned_tasks"`
}

// Project is a construction site tracked by the application.
type Project struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Client          string        `json:"client,omitempty"`
	Location        string        `json:"location,omitempty"`
	Coordinates     string        `json:"coordinates,omitempty"`
	Latitude        *float64      `json:"latitude,omitempty"`
	Longitude       *float64      `json:"longitude,omitempty"`
	StartDate       *time.Time    `json:"start_date,omitempty"`
	EndDate         *time.Time    `json:"end_date,omitempty"`
	Status          ProjectStatus `json:"status"`
	Progress        int           `json:"progress"`
	Description     string        `json:"description,omitempty"`
	Budget          *float64      `json:"budget,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
	BureauID        string        `json:"bureau_id,omitempty"`
	CreatedByID     string        `json:"created_by_id"`
	TerrainAgentIDs []string      `json:"terrain_agent_ids"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// HasAgent reports whether userID holds an assignment on the project.
func (p Project) HasAgent(userID string) bool {
	for _, id := range p.TerrainAgentIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ProjectAssignment grants a terrain agent visibility into a project.
type ProjectAssignment struct {
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectSummary is a read projection with aggregate counts for listings.
type ProjectSummary struct {
	Project
	TaskCount       int `json:"task_count"`
	AttachmentCount int `json:"attachment_count"`
}

// Task belongs to exactly one project.
type Task struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Title      string     `json:"title"`
	Status     TaskStatus `json:"status"`
	Progress   int        `json:"progress"`
	AssigneeID string     `json:"assignee_id,omitempty"`
	Due        *time.Time `json:"due,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TaskSummary is a read projection used by task listings.
type TaskSummary struct {
	Task
	ProjectTitle string `json:"project_title"`
	CommentCount int    `json:"comment_count"`
}

// Comment is a message left on a task.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
