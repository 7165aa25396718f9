package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeventeLantos/safety-checkin/internal/model"
)

type PostgresRecordRepo struct {
	db *sql.DB
}

func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

const recordColumns = `
	id, message, recipients, attachments,
	schedule_date, schedule_time, schedule_tz,
	status, deadline_at, created_at, checked_in_at, released_at,
	release_attempt_count, last_release_attempt_at, last_release_error,
	delivery_failed, updated_at
`

func (r *PostgresRecordRepo) Create(ctx context.Context, rec *model.CheckInRecord) error {
	recipients, attachments, err := marshalLists(rec)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO checkins (
			id, message, recipients, attachments,
			schedule_date, schedule_time, schedule_tz,
			status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID, rec.Message, recipients, attachments,
		rec.Schedule.Date, rec.Schedule.TimeOfDay, rec.Schedule.Timezone,
		string(rec.Status), rec.UpdatedAt,
	)
	return err
}

func (r *PostgresRecordRepo) Get(ctx context.Context, id string) (*model.CheckInRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM checkins
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRecordRepo) List(ctx context.Context, limit, offset int) ([]model.CheckInRecord, error) {
	return r.list(ctx, `
		SELECT `+recordColumns+`
		FROM checkins
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *PostgresRecordRepo) ListReleased(ctx context.Context, limit, offset int) ([]model.CheckInRecord, error) {
	return r.list(ctx, `
		SELECT `+recordColumns+`
		FROM checkins
		WHERE status = 'released'
		ORDER BY released_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *PostgresRecordRepo) list(ctx context.Context, query string, limit, offset int) ([]model.CheckInRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CheckInRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *PostgresRecordRepo) UpdateDraft(ctx context.Context, rec *model.CheckInRecord) error {
	recipients, attachments, err := marshalLists(rec)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE checkins
		SET message = $2,
		    recipients = $3,
		    attachments = $4,
		    schedule_date = $5,
		    schedule_time = $6,
		    schedule_tz = $7,
		    updated_at = $8
		WHERE id = $1 AND status = 'draft'
	`,
		rec.ID, rec.Message, recipients, attachments,
		rec.Schedule.Date, rec.Schedule.TimeOfDay, rec.Schedule.Timezone,
		rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, rec.ID)
}

func (r *PostgresRecordRepo) Activate(ctx context.Context, rec *model.CheckInRecord) error {
	recipients, attachments, err := marshalLists(rec)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE checkins
		SET status = 'active',
		    message = $2,
		    recipients = $3,
		    attachments = $4,
		    schedule_date = $5,
		    schedule_time = $6,
		    schedule_tz = $7,
		    deadline_at = $8,
		    created_at = COALESCE(created_at, $9),
		    updated_at = $9
		WHERE id = $1 AND status = 'draft'
	`,
		rec.ID, rec.Message, recipients, attachments,
		rec.Schedule.Date, rec.Schedule.TimeOfDay, rec.Schedule.Timezone,
		rec.DeadlineAt, rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, rec.ID)
}

func (r *PostgresRecordRepo) Reschedule(ctx context.Context, rec *model.CheckInRecord, now time.Time) error {
	recipients, attachments, err := marshalLists(rec)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE checkins
		SET message = $2,
		    recipients = $3,
		    attachments = $4,
		    schedule_date = $5,
		    schedule_time = $6,
		    schedule_tz = $7,
		    deadline_at = $8,
		    updated_at = $9
		WHERE id = $1 AND status = 'active' AND deadline_at > $10
	`,
		rec.ID, rec.Message, recipients, attachments,
		rec.Schedule.Date, rec.Schedule.TimeOfDay, rec.Schedule.Timezone,
		rec.DeadlineAt, rec.UpdatedAt, now,
	)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, rec.ID)
}

func (r *PostgresRecordRepo) Resolve(ctx context.Context, id string, now time.Time, checkedIn bool) error {
	var checkedInAt *time.Time
	if checkedIn {
		checkedInAt = &now
	}

	// deadline_at > now is the release-wins rule: once the deadline has
	// been reached, a check-in can no longer preempt release.
	res, err := r.db.ExecContext(ctx, `
		UPDATE checkins
		SET status = 'resolved',
		    checked_in_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'active' AND deadline_at > $3
	`, id, checkedInAt, now)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, id)
}

func (r *PostgresRecordRepo) ClaimDue(ctx context.Context, now time.Time, retryAfter time.Duration, limit int) ([]model.CheckInRecord, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := now.Add(-retryAfter)

	rows, err := tx.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM checkins
		WHERE status = 'active'
		  AND deadline_at <= $1
		  AND (last_release_attempt_at IS NULL OR last_release_attempt_at <= $2)
		ORDER BY deadline_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $3
	`, now, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.CheckInRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(recs) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE checkins
			SET last_release_attempt_at = $2, updated_at = $2
			WHERE id = $1
		`, rec.ID, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range recs {
		t := now
		recs[i].LastReleaseAttemptAt = &t
		recs[i].UpdatedAt = now
	}
	return recs, nil
}

func (r *PostgresRecordRepo) MarkReleased(ctx context.Context, id string, at time.Time, deliveryFailed bool, lastErr string) error {
	var lastError *string
	if lastErr != "" {
		lastError = &lastErr
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE checkins
		SET status = 'released',
		    released_at = $2,
		    delivery_failed = $3,
		    last_release_error = COALESCE($4, last_release_error),
		    updated_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, at, deliveryFailed, lastError)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, id)
}

func (r *PostgresRecordRepo) MarkReleaseFailed(ctx context.Context, id string, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE checkins
		SET release_attempt_count = release_attempt_count + 1,
		    last_release_error = $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, id, reason)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, id)
}

func (r *PostgresRecordRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM checkins
		WHERE id = $1 AND status IN ('draft', 'resolved')
	`, id)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, id)
}

// guarded maps a zero-row guarded update to ErrNotFound or ErrConflict
// depending on whether the record exists at all.
func (r *PostgresRecordRepo) guarded(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM checkins WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.CheckInRecord, error) {
	var (
		rec            model.CheckInRecord
		status         string
		recipients     []byte
		attachments    []byte
		deadlineAt     sql.NullTime
		createdAt      sql.NullTime
		checkedInAt    sql.NullTime
		releasedAt     sql.NullTime
		lastAttemptAt  sql.NullTime
		lastReleaseErr sql.NullString
	)

	if err := row.Scan(
		&rec.ID,
		&rec.Message,
		&recipients,
		&attachments,
		&rec.Schedule.Date,
		&rec.Schedule.TimeOfDay,
		&rec.Schedule.Timezone,
		&status,
		&deadlineAt,
		&createdAt,
		&checkedInAt,
		&releasedAt,
		&rec.ReleaseAttemptCount,
		&lastAttemptAt,
		&lastReleaseErr,
		&rec.DeliveryFailed,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = model.Status(status)

	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &rec.Recipients); err != nil {
			return nil, fmt.Errorf("decode recipients: %w", err)
		}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &rec.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}

	rec.DeadlineAt = nullTime(deadlineAt)
	rec.CreatedAt = nullTime(createdAt)
	rec.CheckedInAt = nullTime(checkedInAt)
	rec.ReleasedAt = nullTime(releasedAt)
	rec.LastReleaseAttemptAt = nullTime(lastAttemptAt)

	if lastReleaseErr.Valid {
		s := lastReleaseErr.String
		rec.LastReleaseError = &s
	}

	return &rec, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func marshalLists(rec *model.CheckInRecord) (recipients, attachments []byte, err error) {
	recipients, err = json.Marshal(rec.Recipients)
	if err != nil {
		return nil, nil, fmt.Errorf("encode recipients: %w", err)
	}
	attachments, err = json.Marshal(rec.Attachments)
	if err != nil {
		return nil, nil, fmt.Errorf("encode attachments: %w", err)
	}
	return recipients, attachments, nil
}
