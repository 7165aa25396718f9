package model

import "time"

type Status string

const (
	Draft    Status = "draft"
	Active   Status = "active"
	Resolved Status = "resolved"
	Released Status = "released"
)

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == Resolved || s == Released
}

type Recipient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// FileRef points at attachment content held by the attachment store.
// The record never carries the bytes themselves.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Schedule is the authored (date, time-of-day, timezone label) triple.
// It is kept for display and editing; the committed deadline is
// DeadlineAt on the record, frozen at activation.
type Schedule struct {
	Date      string `json:"date"`      // YYYY-MM-DD
	TimeOfDay string `json:"timeOfDay"` // HH:MM, 24-hour
	Timezone  string `json:"timezone"`  // closed label table, see timeutil
}

type CheckInRecord struct {
	ID          string
	Message     string
	Attachments []FileRef
	Recipients  []Recipient
	Schedule    Schedule
	Status      Status

	// DeadlineAt is set iff the record has been activated. Changing the
	// timezone label afterwards never shifts it; only an accepted edit
	// re-freezes it.
	DeadlineAt *time.Time

	CreatedAt   *time.Time // first activation
	CheckedInAt *time.Time
	ReleasedAt  *time.Time

	ReleaseAttemptCount  int
	LastReleaseAttemptAt *time.Time
	LastReleaseError     *string
	DeliveryFailed       bool

	UpdatedAt time.Time
}

// Breached reports whether the frozen deadline has passed at now.
// Draft records have no deadline and never breach.
func (r *CheckInRecord) Breached(now time.Time) bool {
	return r.DeadlineAt != nil && !now.Before(*r.DeadlineAt)
}

// Editable reports whether field mutation is still legal: drafts always,
// active records only until breach. A breached-but-unreleased record is
// frozen so that the race with the sweep resolves in favor of release.
func (r *CheckInRecord) Editable(now time.Time) bool {
	switch r.Status {
	case Draft:
		return true
	case Active:
		return !r.Breached(now)
	default:
		return false
	}
}
