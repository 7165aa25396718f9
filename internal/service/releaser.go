package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/LeventeLantos/safety-checkin/internal/engine"
	"github.com/LeventeLantos/safety-checkin/internal/model"
	"github.com/LeventeLantos/safety-checkin/internal/repo"
)

// Releaser is the body of one scheduler sweep: it claims active records
// whose deadline has passed and pushes each through the engine's
// evaluation. Claiming stamps the attempt time, so overlapping sweeps
// and the retry backoff are both handled by the repository.
type Releaser struct {
	repo       repo.RecordRepository
	eng        *engine.Engine
	batchSize  int
	retryAfter time.Duration
	now        func() time.Time
}

func NewReleaser(r repo.RecordRepository, eng *engine.Engine, batchSize int, retryAfter time.Duration) (*Releaser, error) {
	if r == nil {
		return nil, errors.New("repo must not be nil")
	}
	if eng == nil {
		return nil, errors.New("engine must not be nil")
	}
	if batchSize <= 0 {
		return nil, errors.New("batchSize must be > 0")
	}
	if retryAfter < 0 {
		return nil, errors.New("retryAfter must be >= 0")
	}
	return &Releaser{
		repo:       r,
		eng:        eng,
		batchSize:  batchSize,
		retryAfter: retryAfter,
		now:        time.Now,
	}, nil
}

// WithClock overrides the wall clock, for tests.
func (r *Releaser) WithClock(now func() time.Time) *Releaser {
	r.now = now
	return r
}

// Sweep evaluates one batch of due records. It keeps going through
// dispatch failures so one unreachable sink cannot starve the rest of
// the batch.
func (r *Releaser) Sweep(ctx context.Context) (released, failed int) {
	now := r.now().UTC()

	recs, err := r.repo.ClaimDue(ctx, now, r.retryAfter, r.batchSize)
	if err != nil {
		slog.Error("sweep claim failed", "error", err)
		return 0, 0
	}
	if len(recs) == 0 {
		return 0, 0
	}

	for i := range recs {
		rec := recs[i]

		status, err := r.eng.EvaluateRecord(ctx, &rec, now)

		var df *engine.DispatchFailure
		switch {
		case errors.As(err, &df) && status == model.Released:
			// Attempt cap reached: released with a recorded delivery
			// failure. This is the operator signal, it must not vanish.
			released++
			slog.Error("release delivery abandoned after retries",
				"checkin_id", rec.ID, "attempts", df.Attempt, "error", df.Err)
		case errors.As(err, &df):
			failed++
			slog.Warn("release dispatch failed, will retry",
				"checkin_id", rec.ID, "attempt", df.Attempt, "error", df.Err)
		case err != nil:
			failed++
			slog.Error("release evaluation failed", "checkin_id", rec.ID, "error", err)
		case status == model.Released:
			released++
			slog.Info("check-in released", "checkin_id", rec.ID)
		}
	}

	if released > 0 || failed > 0 {
		slog.Info("sweep processed due check-ins",
			"claimed", len(recs), "released", released, "failed", failed)
	}
	return released, failed
}
