package audit

import (
	"fmt"
	"strings"
	"time"

	"teamdesk/internal/domain"
)

// Label turns an action such as role_change into "Role Change".
func Label(action domain.Action) string {
	words := strings.Split(string(action), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// RelativeTime renders ts relative to now: "Just now", "5m ago", "3h ago",
// "2d ago". Timestamps older than a week fall back to the calendar date.
func RelativeTime(ts string, now time.Time) string {
	t, err := domain.ParseTime(ts)
	if err != nil {
		return ts
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Format(domain.DateLayout)
	}
}

// Summary describes a record's details in one line for tables and logs.
func Summary(rec domain.ActivityRecord) string {
	d := rec.Details
	str := func(k string) string {
		v, _ := d[k].(string)
		return v
	}
	switch rec.Action {
	case domain.ActionApprove, domain.ActionReject, domain.ActionMemberDelete, domain.ActionMemberEdit:
		return strings.TrimSpace(fmt.Sprintf("%s %s", str("memberName"), bracket(str("memberEmail"))))
	case domain.ActionRoleChange:
		return fmt.Sprintf("%s: %s -> %s", str("memberName"), str("oldRole"), str("newRole"))
	case domain.ActionSubDomainAdd, domain.ActionSubDomainDelete:
		return strings.TrimSpace(fmt.Sprintf("%s %s", str("subdomainName"), bracket(str("subdomainUrl"))))
	case domain.ActionTaskCreate, domain.ActionTaskEdit, domain.ActionTaskDelete:
		return str("taskTitle")
	case domain.ActionTaskStatus:
		return fmt.Sprintf("%s: %s -> %s", str("taskTitle"), str("from"), str("to"))
	case domain.ActionRegister, domain.ActionLogin:
		return str("email")
	default:
		return ""
	}
}

func bracket(s string) string {
	if s == "" {
		return ""
	}
	return "(" + s + ")"
}
