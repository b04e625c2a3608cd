package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// DateLayout is how calendar dates are stored (TEXT, sorts correctly).
const DateLayout = "2006-01-02"

// ClockLayout is how times of day are stored.
const ClockLayout = "15:04"

// Task scopes.
const (
	ScopePersonal = "personal"
	ScopeFamily   = "family"
)

// Family membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type User struct {
	ID                   int64   `db:"id" json:"id"`
	FirstName            *string `db:"first_name" json:"first_name,omitempty"`
	LastName             *string `db:"last_name" json:"last_name,omitempty"`
	Username             *string `db:"username" json:"username,omitempty"`
	NotificationsEnabled bool    `db:"notifications_enabled" json:"notifications_enabled"`
}

type Family struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	InviteCode string `db:"invite_code" json:"invite_code"`
	OwnerID    int64  `db:"owner_id" json:"owner_id"`
}

type Membership struct {
	UserID   int64  `db:"user_id" json:"user_id"`
	FamilyID int64  `db:"family_id" json:"family_id"`
	Role     string `db:"role" json:"role"`
	Blocked  bool   `db:"blocked" json:"blocked"`
}

type Task struct {
	ID          int64   `db:"id" json:"id"`
	OwnerID     int64   `db:"owner_id" json:"owner_id"`
	FamilyID    *int64  `db:"family_id" json:"family_id,omitempty"`
	Title       string  `db:"title" json:"title"`
	Description *string `db:"description" json:"description,omitempty"`

	// Date is a calendar date (DateLayout); StartTime/EndTime are optional
	// times of day (ClockLayout).
	Date      string  `db:"date" json:"date"`
	StartTime *string `db:"start_time" json:"start_time,omitempty"`
	EndTime   *string `db:"end_time" json:"end_time,omitempty"`

	Scope string `db:"scope" json:"scope"`

	NotifyBeforeDays  *int `db:"notify_before_days" json:"notify_before_days,omitempty"`
	NotifyBeforeHours *int `db:"notify_before_hours" json:"notify_before_hours,omitempty"`
}

// HasReminders reports whether the scheduler has any reason to look at t.
func (t Task) HasReminders() bool {
	return t.NotifyBeforeDays != nil || t.NotifyBeforeHours != nil
}
