package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is fixed-width so that stored timestamps order lexicographically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// DateLayout is the calendar-date format used for due dates and birth dates.
const DateLayout = "2006-01-02"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

type Role string

const (
	RoleDevTeam Role = "dev-team"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleDevTeam || r == RoleAdmin
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

type Stage string

const (
	StageUnregistered        Stage = "unregistered"
	StagePendingVerification Stage = "pending_verification"
	StagePendingApproval     Stage = "pending_approval"
	StageApproved            Stage = "approved"
)

// StageOf derives the registration stage from an identity and its profile.
func StageOf(identity *Identity, profile *MemberProfile) Stage {
	switch {
	case identity == nil || profile == nil:
		return StageUnregistered
	case !identity.Verified:
		return StagePendingVerification
	case !profile.IsApproved:
		return StagePendingApproval
	default:
		return StageApproved
	}
}

type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Verified    bool   `json:"verified"`
}

type MemberProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	DOB         string `json:"dob,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Designation string `json:"designation,omitempty"`
	Role        Role   `json:"role" enum:"dev-team,admin"`
	IsApproved  bool   `json:"is_approved"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

func (p MemberProfile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type Action string

const (
	ActionRegister        Action = "register"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRoleChange      Action = "role_change"
	ActionLogin           Action = "login"
	ActionSubDomainAdd    Action = "subdomain_add"
	ActionSubDomainDelete Action = "subdomain_delete"
	ActionMemberEdit      Action = "member_edit"
	ActionMemberDelete    Action = "member_delete"
	ActionTaskCreate      Action = "task_create"
	ActionTaskStatus      Action = "task_status"
	ActionTaskEdit        Action = "task_edit"
	ActionTaskDelete      Action = "task_delete"
)

var Actions = []Action{
	ActionRegister, ActionApprove, ActionReject, ActionRoleChange, ActionLogin,
	ActionSubDomainAdd, ActionSubDomainDelete, ActionMemberEdit, ActionMemberDelete,
	ActionTaskCreate, ActionTaskStatus, ActionTaskEdit, ActionTaskDelete,
}

func (a Action) Valid() bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.TrimSpace(s))
	if !a.Valid() {
		return "", fmt.Errorf("invalid action %q", s)
	}
	return a, nil
}

type ActivityRecord struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	ActorName string         `json:"actor_name"`
	Action    Action         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp" format:"date-time"`
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	return s == TaskPending || s == TaskInProgress || s == TaskCompleted
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.TrimSpace(s))
	if !st.Valid() {
		return "", fmt.Errorf("invalid task status %q", s)
	}
	return st, nil
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	AssignedTo     string     `json:"assigned_to"`
	AssignedToName string     `json:"assigned_to_name"`
	AssignedBy     string     `json:"assigned_by"`
	AssignedByName string     `json:"assigned_by_name"`
	Status         TaskStatus `json:"status" enum:"pending,in-progress,completed"`
	Priority       Priority   `json:"priority" enum:"low,medium,high"`
	DueDate        *string    `json:"due_date,omitempty" format:"date"`
	CreatedAt      string     `json:"created_at" format:"date-time"`
	UpdatedAt      string     `json:"updated_at,omitempty" format:"date-time"`
}

type SubDomainType string

const (
	SubDomainFrontend SubDomainType = "Frontend"
	SubDomainBackend  SubDomainType = "Backend"
	SubDomainAPI      SubDomainType = "API"
	SubDomainOther    SubDomainType = "Other"
)

type SubDomainStatus string

const (
	SubDomainLive        SubDomainStatus = "Live"
	SubDomainMaintenance SubDomainStatus = "Maintenance"
	SubDomainDown        SubDomainStatus = "Down"
)

type SubDomain struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	Type      SubDomainType   `json:"type" enum:"Frontend,Backend,API,Other"`
	Status    SubDomainStatus `json:"status" enum:"Live,Maintenance,Down"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}

type ThemeMode string

const (
	ThemeLight  ThemeMode = "light"
	ThemeDark   ThemeMode = "dark"
	ThemeSystem ThemeMode = "system"
)

func (m ThemeMode) Valid() bool {
	return m == ThemeLight || m == ThemeDark || m == ThemeSystem
}

type Preference struct {
	ID        string    `json:"id"`
	Theme     ThemeMode `json:"theme" enum:"light,dark,system"`
	UpdatedAt string    `json:"updated_at" format:"date-time"`
}

type MemberStats struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Admins   int `json:"admins"`
}

type Dashboard struct {
	Members        MemberStats      `json:"members"`
	SubDomains     int              `json:"subdomains"`
	OpenTasks      int              `json:"open_tasks"`
	MyOpenTasks    int              `json:"my_open_tasks"`
	RecentActivity []ActivityRecord `json:"recent_activity"`
}
