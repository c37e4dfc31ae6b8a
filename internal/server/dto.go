package server

import (
	"time"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/session"
)

// Request payloads

type SignupRequest struct {
	Email       string `json:"email" format:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	DOB         string `json:"dob,omitempty" format:"date"`
	Gender      string `json:"gender,omitempty" enum:"male,female,other,prefer-not-to-say"`
	Designation string `json:"designation,omitempty"`
}

func (r SignupRequest) input() session.SignupInput {
	return session.SignupInput{
		Email:       r.Email,
		Password:    r.Password,
		Name:        r.Name,
		DOB:         r.DOB,
		Gender:      r.Gender,
		Designation: r.Designation,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyRequest struct {
	Token string `json:"token"`
}

type RoleRequest struct {
	Role domain.Role `json:"role" enum:"dev-team,admin"`
}

type CreateTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	AssignedTo  string          `json:"assigned_to"`
	Priority    domain.Priority `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate     string          `json:"due_date,omitempty"`
}

func (r CreateTaskRequest) options() engine.TaskCreateOptions {
	return engine.TaskCreateOptions{
		Title:       r.Title,
		Description: r.Description,
		AssigneeID:  r.AssignedTo,
		Priority:    r.Priority,
		DueDate:     r.DueDate,
	}
}

type TaskStatusRequest struct {
	Status domain.TaskStatus `json:"status" enum:"pending,in-progress,completed"`
}

type CreateSubDomainRequest struct {
	Name   string                 `json:"name"`
	URL    string                 `json:"url"`
	Type   domain.SubDomainType   `json:"type,omitempty" enum:"Frontend,Backend,API,Other"`
	Status domain.SubDomainStatus `json:"status,omitempty" enum:"Live,Maintenance,Down"`
}

type ThemeRequest struct {
	Theme domain.ThemeMode `json:"theme,omitempty" enum:"light,dark,system"`
	// Toggle flips between dark and light and ignores Theme.
	Toggle bool `json:"toggle,omitempty"`
}

// Response payloads

type SignupResponse struct {
	Identity         domain.Identity      `json:"identity"`
	Profile          domain.MemberProfile `json:"profile"`
	VerificationSent bool                 `json:"verification_sent"`
}

type LoginResponse struct {
	Token     string               `json:"token"`
	ExpiresAt time.Time            `json:"expires_at"`
	Identity  domain.Identity      `json:"identity"`
	Profile   domain.MemberProfile `json:"profile"`
	Access    string               `json:"access" enum:"profile_missing,pending_approval,granted"`
}

type MeResponse struct {
	IdentityID string                `json:"identity_id"`
	Access     string                `json:"access" enum:"profile_missing,pending_approval,granted"`
	Profile    *domain.MemberProfile `json:"profile,omitempty"`
}

type ActivityResponse struct {
	domain.ActivityRecord
	Label    string `json:"label"`
	Relative string `json:"relative"`
	Summary  string `json:"summary"`
}

type ThemeResponse struct {
	Theme domain.ThemeMode `json:"theme" enum:"light,dark,system"`
}

type MemberListResponse struct {
	Items []domain.MemberProfile `json:"items"`
}

type TaskListResponse struct {
	Items []domain.Task `json:"items"`
}

type SubDomainListResponse struct {
	Items []domain.SubDomain `json:"items"`
}

type ActivityListResponse struct {
	Items []ActivityResponse `json:"items"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
