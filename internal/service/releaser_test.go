package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/safety-checkin/internal/engine"
	"github.com/LeventeLantos/safety-checkin/internal/model"
	"github.com/LeventeLantos/safety-checkin/internal/repo"
	"github.com/LeventeLantos/safety-checkin/internal/service"
)

var (
	authoring = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	deadline  = time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC) // 2025-06-01 18:00 PST
)

type stubDispatcher struct {
	mu      sync.Mutex
	calls   int
	failing bool
	sentIDs []string
}

func (d *stubDispatcher) Send(ctx context.Context, rec *model.CheckInRecord) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if d.failing {
		return "", errors.New("sink unreachable")
	}
	d.sentIDs = append(d.sentIDs, rec.ID)
	return "delivery-1", nil
}

func (d *stubDispatcher) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sentIDs...)
}

type harness struct {
	repo *repo.MemoryRecordRepo
	disp *stubDispatcher
	rel  *service.Releaser
	now  time.Time
}

func newHarness(t *testing.T, batchSize int, retryAfter time.Duration) *harness {
	t.Helper()

	h := &harness{
		repo: repo.NewMemoryRecordRepo(),
		disp: &stubDispatcher{},
		now:  authoring,
	}

	eng, err := engine.New(h.repo, h.disp, 5)
	if err != nil {
		t.Fatalf("engine.New() error: %v", err)
	}
	eng.WithClock(func() time.Time { return h.now })

	rel, err := service.NewReleaser(h.repo, eng, batchSize, retryAfter)
	if err != nil {
		t.Fatalf("NewReleaser() error: %v", err)
	}
	h.rel = rel.WithClock(func() time.Time { return h.now })
	return h
}

func (h *harness) addActive(t *testing.T, id string, d time.Time) {
	t.Helper()

	dl := d
	c := authoring
	rec := &model.CheckInRecord{
		ID:         id,
		Message:    "m",
		Recipients: []model.Recipient{{ID: "r1", Name: "A", Email: "a@b.com"}},
		Schedule:   model.Schedule{Date: "2025-06-01", TimeOfDay: "18:00", Timezone: "PST"},
		Status:     model.Draft,
		UpdatedAt:  authoring,
	}
	if err := h.repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	act := *rec
	act.Status = model.Active
	act.DeadlineAt = &dl
	act.CreatedAt = &c
	if err := h.repo.Activate(context.Background(), &act); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
}

func TestSweep_ReleasesDueRecordsOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, time.Minute)
	h.addActive(t, "due", deadline)
	h.addActive(t, "future", deadline.Add(48*time.Hour))

	h.now = deadline.Add(time.Second)

	released, failed := h.rel.Sweep(context.Background())
	if released != 1 || failed != 0 {
		t.Fatalf("expected released=1 failed=0, got released=%d failed=%d", released, failed)
	}

	if got := h.disp.sent(); len(got) != 1 || got[0] != "due" {
		t.Fatalf("expected dispatch for 'due' only, got %v", got)
	}

	dueRec, _ := h.repo.Get(context.Background(), "due")
	if dueRec.Status != model.Released {
		t.Fatalf("expected due record released, got %s", dueRec.Status)
	}
	futureRec, _ := h.repo.Get(context.Background(), "future")
	if futureRec.Status != model.Active {
		t.Fatalf("expected future record untouched, got %s", futureRec.Status)
	}
}

func TestSweep_EmptyWhenNothingDue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, time.Minute)
	h.addActive(t, "future", deadline.Add(48*time.Hour))

	h.now = deadline

	released, failed := h.rel.Sweep(context.Background())
	if released != 0 || failed != 0 {
		t.Fatalf("expected nothing processed, got released=%d failed=%d", released, failed)
	}
}

func TestSweep_FailureKeepsRecordActiveAndBacksOff(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, 5*time.Minute)
	h.disp.failing = true
	h.addActive(t, "due", deadline)

	h.now = deadline.Add(time.Second)

	released, failed := h.rel.Sweep(context.Background())
	if released != 0 || failed != 1 {
		t.Fatalf("expected released=0 failed=1, got released=%d failed=%d", released, failed)
	}

	rec, _ := h.repo.Get(context.Background(), "due")
	if rec.Status != model.Active {
		t.Fatalf("expected record still active, got %s", rec.Status)
	}
	if rec.ReleaseAttemptCount != 1 {
		t.Fatalf("expected attempt count 1, got %d", rec.ReleaseAttemptCount)
	}

	// Within the backoff window the record is not reclaimed.
	h.now = h.now.Add(time.Minute)
	released, failed = h.rel.Sweep(context.Background())
	if released != 0 || failed != 0 {
		t.Fatalf("expected backoff to skip record, got released=%d failed=%d", released, failed)
	}

	// After the window, the sink recovers and the record releases.
	h.disp.failing = false
	h.now = h.now.Add(6 * time.Minute)
	released, _ = h.rel.Sweep(context.Background())
	if released != 1 {
		t.Fatalf("expected release after backoff, got %d", released)
	}

	rec, _ = h.repo.Get(context.Background(), "due")
	if rec.Status != model.Released || rec.DeliveryFailed {
		t.Fatalf("unexpected record after recovery: %+v", rec)
	}
}

func TestSweep_AttemptCapAbandonsDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, 0)
	h.disp.failing = true
	h.addActive(t, "due", deadline)

	h.now = deadline.Add(time.Second)

	// maxAttempts is 5 in the harness engine; the fifth sweep gives up.
	var released int
	for i := 0; i < 5; i++ {
		r, _ := h.rel.Sweep(context.Background())
		released += r
		h.now = h.now.Add(time.Minute)
	}
	if released != 1 {
		t.Fatalf("expected the capped attempt to count as released, got %d", released)
	}

	rec, _ := h.repo.Get(context.Background(), "due")
	if rec.Status != model.Released {
		t.Fatalf("expected released, got %s", rec.Status)
	}
	if !rec.DeliveryFailed {
		t.Fatalf("expected DeliveryFailed recorded")
	}

	// No further claims after the terminal transition.
	r, f := h.rel.Sweep(context.Background())
	if r != 0 || f != 0 {
		t.Fatalf("expected no further processing, got released=%d failed=%d", r, f)
	}
}

func TestSweep_HonorsBatchSize(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, 0)
	h.addActive(t, "a", deadline)
	h.addActive(t, "b", deadline)
	h.addActive(t, "c", deadline)

	h.now = deadline.Add(time.Second)

	released, _ := h.rel.Sweep(context.Background())
	if released != 2 {
		t.Fatalf("expected batch of 2, got %d", released)
	}

	released, _ = h.rel.Sweep(context.Background())
	if released != 1 {
		t.Fatalf("expected remaining 1, got %d", released)
	}
}

func TestNewReleaser_InvalidArgs(t *testing.T) {
	t.Parallel()

	r := repo.NewMemoryRecordRepo()
	eng, err := engine.New(r, &stubDispatcher{}, 5)
	if err != nil {
		t.Fatalf("engine.New() error: %v", err)
	}

	if _, err := service.NewReleaser(nil, eng, 1, 0); err == nil {
		t.Fatalf("expected error for nil repo")
	}
	if _, err := service.NewReleaser(r, nil, 1, 0); err == nil {
		t.Fatalf("expected error for nil engine")
	}
	if _, err := service.NewReleaser(r, eng, 0, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
	if _, err := service.NewReleaser(r, eng, 1, -time.Second); err == nil {
		t.Fatalf("expected error for negative retry window")
	}
}
