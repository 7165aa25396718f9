package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/safety-checkin/internal/model"
)

// MemoryRecordRepo is an in-process RecordRepository with the same
// transition-guard semantics as the Postgres implementation. A single
// mutex serializes writers per store, which satisfies the per-record
// single-writer discipline the engine relies on.
type MemoryRecordRepo struct {
	mu   sync.RWMutex
	recs map[string]*model.CheckInRecord
}

func NewMemoryRecordRepo() *MemoryRecordRepo {
	return &MemoryRecordRepo{recs: make(map[string]*model.CheckInRecord)}
}

func (r *MemoryRecordRepo) Create(ctx context.Context, rec *model.CheckInRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.recs[rec.ID]; ok {
		return ErrConflict
	}
	cp := clone(rec)
	r.recs[rec.ID] = cp
	return nil
}

func (r *MemoryRecordRepo) Get(ctx context.Context, id string) (*model.CheckInRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

func (r *MemoryRecordRepo) List(ctx context.Context, limit, offset int) ([]model.CheckInRecord, error) {
	return r.listWhere(limit, offset, func(rec *model.CheckInRecord) bool { return true })
}

func (r *MemoryRecordRepo) ListReleased(ctx context.Context, limit, offset int) ([]model.CheckInRecord, error) {
	return r.listWhere(limit, offset, func(rec *model.CheckInRecord) bool {
		return rec.Status == model.Released
	})
}

func (r *MemoryRecordRepo) listWhere(limit, offset int, keep func(*model.CheckInRecord) bool) ([]model.CheckInRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []model.CheckInRecord
	for _, rec := range r.recs {
		if keep(rec) {
			all = append(all, *clone(rec))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRecordRepo) UpdateDraft(ctx context.Context, rec *model.CheckInRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.recs[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != model.Draft {
		return ErrConflict
	}

	stored.Message = rec.Message
	stored.Recipients = cloneRecipients(rec.Recipients)
	stored.Attachments = cloneAttachments(rec.Attachments)
	stored.Schedule = rec.Schedule
	stored.UpdatedAt = rec.UpdatedAt
	return nil
}

func (r *MemoryRecordRepo) Activate(ctx context.Context, rec *model.CheckInRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.recs[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != model.Draft {
		return ErrConflict
	}

	stored.Status = model.Active
	stored.Message = rec.Message
	stored.Recipients = cloneRecipients(rec.Recipients)
	stored.Attachments = cloneAttachments(rec.Attachments)
	stored.Schedule = rec.Schedule
	stored.DeadlineAt = copyTime(rec.DeadlineAt)
	if stored.CreatedAt == nil {
		stored.CreatedAt = copyTime(rec.CreatedAt)
	}
	stored.UpdatedAt = rec.UpdatedAt
	return nil
}

func (r *MemoryRecordRepo) Reschedule(ctx context.Context, rec *model.CheckInRecord, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.recs[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != model.Active || stored.Breached(now) {
		return ErrConflict
	}

	stored.Message = rec.Message
	stored.Recipients = cloneRecipients(rec.Recipients)
	stored.Attachments = cloneAttachments(rec.Attachments)
	stored.Schedule = rec.Schedule
	stored.DeadlineAt = copyTime(rec.DeadlineAt)
	stored.UpdatedAt = rec.UpdatedAt
	return nil
}

func (r *MemoryRecordRepo) Resolve(ctx context.Context, id string, now time.Time, checkedIn bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.recs[id]
	if !ok {
		return ErrNotFound
	}
	// Release wins once the deadline has been reached.
	if stored.Status != model.Active || stored.Breached(now) {
		return ErrConflict
	}

	stored.Status = model.Resolved
	if checkedIn {
		t := now
		stored.CheckedInAt = &t
	}
	stored.UpdatedAt = now
	return nil
}

func (r *MemoryRecordRepo) ClaimDue(ctx context.Context, now time.Time, retryAfter time.Duration, limit int) ([]model.CheckInRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-retryAfter)

	var due []*model.CheckInRecord
	for _, rec := range r.recs {
		if rec.Status != model.Active || !rec.Breached(now) {
			continue
		}
		if rec.LastReleaseAttemptAt != nil && rec.LastReleaseAttemptAt.After(cutoff) {
			continue
		}
		due = append(due, rec)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DeadlineAt.Before(*due[j].DeadlineAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]model.CheckInRecord, 0, len(due))
	for _, rec := range due {
		t := now
		rec.LastReleaseAttemptAt = &t
		rec.UpdatedAt = now
		out = append(out, *clone(rec))
	}
	return out, nil
}

func (r *MemoryRecordRepo) MarkReleased(ctx context.Context, id string, at time.Time, deliveryFailed bool, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.recs[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != model.Active {
		return ErrConflict
	}

	stored.Status = model.Released
	t := at
	stored.ReleasedAt = &t
	stored.DeliveryFailed = deliveryFailed
	if lastErr != "" {
		s := lastErr
		stored.LastReleaseError = &s
	}
	stored.UpdatedAt = at
	return nil
}

func (r *MemoryRecordRepo) MarkReleaseFailed(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.recs[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != model.Active {
		return ErrConflict
	}

	stored.ReleaseAttemptCount++
	s := reason
	stored.LastReleaseError = &s
	return nil
}

func (r *MemoryRecordRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.recs[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != model.Draft && stored.Status != model.Resolved {
		return ErrConflict
	}

	delete(r.recs, id)
	return nil
}

func clone(rec *model.CheckInRecord) *model.CheckInRecord {
	cp := *rec
	cp.Recipients = cloneRecipients(rec.Recipients)
	cp.Attachments = cloneAttachments(rec.Attachments)
	cp.DeadlineAt = copyTime(rec.DeadlineAt)
	cp.CreatedAt = copyTime(rec.CreatedAt)
	cp.CheckedInAt = copyTime(rec.CheckedInAt)
	cp.ReleasedAt = copyTime(rec.ReleasedAt)
	cp.LastReleaseAttemptAt = copyTime(rec.LastReleaseAttemptAt)
	if rec.LastReleaseError != nil {
		s := *rec.LastReleaseError
		cp.LastReleaseError = &s
	}
	return &cp
}

func cloneRecipients(in []model.Recipient) []model.Recipient {
	if in == nil {
		return nil
	}
	out := make([]model.Recipient, len(in))
	copy(out, in)
	return out
}

func cloneAttachments(in []model.FileRef) []model.FileRef {
	if in == nil {
		return nil
	}
	out := make([]model.FileRef, len(in))
	copy(out, in)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
