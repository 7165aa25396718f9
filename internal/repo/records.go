package repo

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/safety-checkin/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a guarded update lost its race: the
	// stored status or deadline no longer satisfies the transition guard.
	ErrConflict = errors.New("record state conflict")
)

// RecordRepository is the storage collaborator for check-in records.
// Every mutating method that carries a guard (Activate, Reschedule,
// Resolve, MarkReleased, MarkReleaseFailed, UpdateDraft) must apply the
// guard and the write atomically per record, returning ErrConflict when
// the guard fails. This is what makes the lifecycle transitions safe
// against the sweep racing user actions.
type RecordRepository interface {
	Create(ctx context.Context, rec *model.CheckInRecord) error
	Get(ctx context.Context, id string) (*model.CheckInRecord, error)
	List(ctx context.Context, limit, offset int) ([]model.CheckInRecord, error)
	ListReleased(ctx context.Context, limit, offset int) ([]model.CheckInRecord, error)

	// UpdateDraft persists authoring fields while the record is still a draft.
	UpdateDraft(ctx context.Context, rec *model.CheckInRecord) error

	// Activate commits draft -> active with the frozen deadline and
	// createdAt carried on rec.
	Activate(ctx context.Context, rec *model.CheckInRecord) error

	// Reschedule persists an edit of an active record, re-freezing its
	// deadline. Guard: status active and stored deadline > now.
	Reschedule(ctx context.Context, rec *model.CheckInRecord, now time.Time) error

	// Resolve commits active -> resolved. Guard: stored deadline > now,
	// so a check-in can never beat an already-observed breach.
	Resolve(ctx context.Context, id string, now time.Time, checkedIn bool) error

	// ClaimDue selects up to limit active records whose deadline has
	// passed and whose last release attempt (if any) is older than
	// retryAfter, stamping LastReleaseAttemptAt = now on each so that
	// concurrent sweeps do not double-claim.
	ClaimDue(ctx context.Context, now time.Time, retryAfter time.Duration, limit int) ([]model.CheckInRecord, error)

	// MarkReleased commits active -> released after a dispatch outcome.
	// deliveryFailed records a gave-up-after-retries release.
	MarkReleased(ctx context.Context, id string, at time.Time, deliveryFailed bool, lastErr string) error

	// MarkReleaseFailed keeps the record active after a failed dispatch,
	// incrementing the attempt count and recording the reason.
	MarkReleaseFailed(ctx context.Context, id string, reason string) error

	// Delete removes a record. Guard: status draft or resolved.
	Delete(ctx context.Context, id string) error
}
