package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/safety-checkin/internal/model"
	"github.com/LeventeLantos/safety-checkin/internal/repo"
	"github.com/LeventeLantos/safety-checkin/internal/validate"
)

// ErrInvalidTransition is returned when an operation is not legal from
// the record's current state, including transitions lost to a race.
// It is always surfaced, never swallowed.
var ErrInvalidTransition = errors.New("invalid transition")

// DispatchFailure reports a failed release dispatch. The record stays
// active and the sweep retries on a later pass.
type DispatchFailure struct {
	RecordID string
	Attempt  int
	Err      error
}

func (e *DispatchFailure) Error() string {
	return fmt.Sprintf("dispatch failed for %s (attempt %d): %v", e.RecordID, e.Attempt, e.Err)
}

func (e *DispatchFailure) Unwrap() error { return e.Err }

// Dispatcher is the boundary to the delivery collaborator. It is an
// at-least-once sink: the collaborator deduplicates retries by record id.
type Dispatcher interface {
	Send(ctx context.Context, rec *model.CheckInRecord) (deliveryID string, err error)
}

// Input carries the authoring fields supplied by the UI or API.
type Input struct {
	Message     string
	Recipients  []model.Recipient
	Attachments []model.FileRef
	Schedule    model.Schedule
}

// Engine owns the check-in lifecycle: draft -> active -> resolved or
// released. All transitions go through the repository's guarded updates,
// so concurrent user actions and sweep evaluations serialize per record.
type Engine struct {
	repo        repo.RecordRepository
	dispatcher  Dispatcher
	maxAttempts int
	now         func() time.Time

	onReleased       func(ctx context.Context, rec *model.CheckInRecord, deliveryID string) error
	onDeliveryFailed func(ctx context.Context, rec *model.CheckInRecord, reason string) error
}

func New(r repo.RecordRepository, d Dispatcher, maxAttempts int) (*Engine, error) {
	if r == nil {
		return nil, errors.New("repo must not be nil")
	}
	if d == nil {
		return nil, errors.New("dispatcher must not be nil")
	}
	if maxAttempts <= 0 {
		return nil, errors.New("maxAttempts must be > 0")
	}
	return &Engine{
		repo:        r,
		dispatcher:  d,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// WithClock overrides the wall clock for authoring-time decisions.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithHooks installs callbacks fired after a release outcome is
// committed: onReleased after a confirmed dispatch, onDeliveryFailed
// after the attempt cap is exhausted.
func (e *Engine) WithHooks(
	onReleased func(ctx context.Context, rec *model.CheckInRecord, deliveryID string) error,
	onDeliveryFailed func(ctx context.Context, rec *model.CheckInRecord, reason string) error,
) *Engine {
	e.onReleased = onReleased
	e.onDeliveryFailed = onDeliveryFailed
	return e
}

// CreateDraft allocates a new record in draft state. Drafts may be
// partially filled; only the recipient ceiling is enforced this early.
func (e *Engine) CreateDraft(ctx context.Context, in Input) (*model.CheckInRecord, error) {
	if len(in.Recipients) > validate.MaxRecipients {
		return nil, &validate.ValidationError{
			Field:  "recipients",
			Reason: fmt.Sprintf("at most %d recipients allowed", validate.MaxRecipients),
		}
	}

	rec := &model.CheckInRecord{
		ID:          uuid.NewString(),
		Message:     in.Message,
		Recipients:  withRecipientIDs(in.Recipients),
		Attachments: in.Attachments,
		Schedule:    in.Schedule,
		Status:      model.Draft,
		UpdatedAt:   e.now().UTC(),
	}

	if err := e.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Activate validates the full authoring state and commits draft ->
// active, freezing the deadline instant. Activating a non-draft record
// is rejected; use Edit to reschedule an active one.
func (e *Engine) Activate(ctx context.Context, id string) (*model.CheckInRecord, error) {
	rec, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.Draft {
		return nil, fmt.Errorf("activate %s from %s: %w", id, rec.Status, ErrInvalidTransition)
	}

	now := e.now().UTC()
	deadline, err := validate.Activation(rec, now)
	if err != nil {
		return nil, err
	}

	rec.DeadlineAt = &deadline
	if rec.CreatedAt == nil {
		rec.CreatedAt = &now
	}
	rec.UpdatedAt = now

	if err := e.repo.Activate(ctx, rec); err != nil {
		return nil, transitionErr("activate", id, err)
	}
	rec.Status = model.Active
	return rec, nil
}

// Edit mutates authoring fields. Drafts accept any partial state; an
// active record must still be unbreached and the new schedule must pass
// validation, after which the deadline is re-frozen.
func (e *Engine) Edit(ctx context.Context, id string, in Input) (*model.CheckInRecord, error) {
	rec, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(in.Recipients) > validate.MaxRecipients {
		return nil, &validate.ValidationError{
			Field:  "recipients",
			Reason: fmt.Sprintf("at most %d recipients allowed", validate.MaxRecipients),
		}
	}

	now := e.now().UTC()

	rec.Message = in.Message
	rec.Recipients = withRecipientIDs(in.Recipients)
	rec.Attachments = in.Attachments
	rec.Schedule = in.Schedule
	rec.UpdatedAt = now

	switch rec.Status {
	case model.Draft:
		if err := e.repo.UpdateDraft(ctx, rec); err != nil {
			return nil, transitionErr("edit", id, err)
		}
		return rec, nil

	case model.Active:
		if rec.Breached(now) {
			return nil, fmt.Errorf("edit %s after breach: %w", id, ErrInvalidTransition)
		}
		deadline, err := validate.Activation(rec, now)
		if err != nil {
			return nil, err
		}
		rec.DeadlineAt = &deadline
		if err := e.repo.Reschedule(ctx, rec, now); err != nil {
			return nil, transitionErr("edit", id, err)
		}
		return rec, nil

	default:
		return nil, fmt.Errorf("edit %s in %s: %w", id, rec.Status, ErrInvalidTransition)
	}
}

// CheckIn records a timely safety confirmation, resolving the record and
// cancelling the pending release. After breach it fails: release wins.
func (e *Engine) CheckIn(ctx context.Context, id string) error {
	return e.resolve(ctx, id, true)
}

// Cancel resolves the record without a check-in. Cancelling after the
// release has been dispatched does not undo delivery.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	return e.resolve(ctx, id, false)
}

func (e *Engine) resolve(ctx context.Context, id string, checkedIn bool) error {
	now := e.now().UTC()
	if err := e.repo.Resolve(ctx, id, now, checkedIn); err != nil {
		return transitionErr("resolve", id, err)
	}
	return nil
}

// Delete removes a record. Drafts and resolved records are removed
// outright; an active record is cancelled first so that an in-flight
// breach cannot be lost by deletion racing the sweep. Released records
// are retained.
func (e *Engine) Delete(ctx context.Context, id string) error {
	rec, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	switch rec.Status {
	case model.Draft, model.Resolved:
		return transitionErr("delete", id, e.repo.Delete(ctx, id))
	case model.Active:
		if err := e.Cancel(ctx, id); err != nil {
			return err
		}
		return transitionErr("delete", id, e.repo.Delete(ctx, id))
	default:
		return fmt.Errorf("delete %s in %s: %w", id, rec.Status, ErrInvalidTransition)
	}
}

// Evaluate applies the deadline rule to one record at now. It is
// idempotent: terminal records are returned untouched with no dispatch.
// On breach the dispatch and the transition to released are one logical
// step; a failed dispatch leaves the record active with its attempt
// bookkeeping updated so the next sweep retries, until the attempt cap
// marks the record released with a recorded delivery failure.
func (e *Engine) Evaluate(ctx context.Context, id string, now time.Time) (model.Status, error) {
	rec, err := e.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return e.EvaluateRecord(ctx, rec, now)
}

// EvaluateRecord is Evaluate for an already-loaded (typically claimed)
// record snapshot.
func (e *Engine) EvaluateRecord(ctx context.Context, rec *model.CheckInRecord, now time.Time) (model.Status, error) {
	if rec.Status != model.Active {
		return rec.Status, nil
	}
	if !rec.Breached(now) {
		return model.Active, nil
	}

	deliveryID, sendErr := e.dispatcher.Send(ctx, rec)
	if sendErr == nil {
		if err := e.repo.MarkReleased(ctx, rec.ID, now.UTC(), false, ""); err != nil {
			return model.Active, transitionErr("release", rec.ID, err)
		}
		if e.onReleased != nil {
			_ = e.onReleased(ctx, rec, deliveryID)
		}
		return model.Released, nil
	}

	attempt := rec.ReleaseAttemptCount + 1
	if attempt >= e.maxAttempts {
		// Retries are exhausted. The record still becomes released so the
		// missed deadline cannot vanish silently; the failure is recorded
		// on it and surfaced through the hook.
		if err := e.repo.MarkReleased(ctx, rec.ID, now.UTC(), true, sendErr.Error()); err != nil {
			return model.Active, transitionErr("release", rec.ID, err)
		}
		if e.onDeliveryFailed != nil {
			_ = e.onDeliveryFailed(ctx, rec, sendErr.Error())
		}
		return model.Released, &DispatchFailure{RecordID: rec.ID, Attempt: attempt, Err: sendErr}
	}

	if err := e.repo.MarkReleaseFailed(ctx, rec.ID, sendErr.Error()); err != nil {
		return model.Active, transitionErr("release", rec.ID, err)
	}
	return model.Active, &DispatchFailure{RecordID: rec.ID, Attempt: attempt, Err: sendErr}
}

func transitionErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrConflict) {
		return fmt.Errorf("%s %s: %w", op, id, ErrInvalidTransition)
	}
	return err
}

func withRecipientIDs(in []model.Recipient) []model.Recipient {
	out := make([]model.Recipient, len(in))
	for i, r := range in {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		out[i] = r
	}
	return out
}
