package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/LeventeLantos/safety-checkin/internal/model"
	"github.com/LeventeLantos/safety-checkin/internal/timeutil"
)

const MaxRecipients = 10

// ValidationError identifies the authoring field that failed its gate.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var v = validator.New()

// Message gates the first authoring step: a non-blank message body.
func Message(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	return nil
}

// Recipients gates the contacts step: 1 to MaxRecipients entries, each
// with a name and a syntactically plausible email. Phone is optional.
func Recipients(list []model.Recipient) error {
	if len(list) == 0 {
		return &ValidationError{Field: "recipients", Reason: "at least one recipient is required"}
	}
	if len(list) > MaxRecipients {
		return &ValidationError{Field: "recipients", Reason: fmt.Sprintf("at most %d recipients allowed", MaxRecipients)}
	}

	for i, r := range list {
		if strings.TrimSpace(r.Name) == "" {
			return &ValidationError{Field: "recipients", Reason: fmt.Sprintf("recipient %d: name is required", i+1)}
		}
		if err := v.Var(r.Email, "required,email"); err != nil {
			return &ValidationError{Field: "recipients", Reason: fmt.Sprintf("recipient %d: invalid email %q", i+1, r.Email)}
		}
	}
	return nil
}

// Schedule gates the scheduling step: all three components present, the
// triple resolvable, and the resulting instant strictly in the future
// relative to now. Returns the instant so activation can freeze it.
func Schedule(s model.Schedule, now time.Time) (time.Time, error) {
	if s.Date == "" {
		return time.Time{}, &ValidationError{Field: "schedule", Reason: "delivery date is required"}
	}
	if s.TimeOfDay == "" {
		return time.Time{}, &ValidationError{Field: "schedule", Reason: "delivery time is required"}
	}
	if s.Timezone == "" {
		return time.Time{}, &ValidationError{Field: "schedule", Reason: "timezone is required"}
	}

	instant, err := timeutil.ToInstant(s.Date, s.TimeOfDay, s.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	if timeutil.IsPast(instant, now) {
		return time.Time{}, &ValidationError{Field: "schedule", Reason: "deadline must be in the future"}
	}
	return instant, nil
}

// Activation is the conjunction of all gates. On success it returns the
// deadline instant to commit.
func Activation(rec *model.CheckInRecord, now time.Time) (time.Time, error) {
	if err := Message(rec.Message); err != nil {
		return time.Time{}, err
	}
	if err := Recipients(rec.Recipients); err != nil {
		return time.Time{}, err
	}
	return Schedule(rec.Schedule, now)
}
