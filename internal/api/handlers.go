package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/LeventeLantos/safety-checkin/internal/attach"
	"github.com/LeventeLantos/safety-checkin/internal/engine"
	"github.com/LeventeLantos/safety-checkin/internal/model"
	"github.com/LeventeLantos/safety-checkin/internal/repo"
	"github.com/LeventeLantos/safety-checkin/internal/scheduler"
	"github.com/LeventeLantos/safety-checkin/internal/timeutil"
	"github.com/LeventeLantos/safety-checkin/internal/validate"
)

type Handler struct {
	eng   *engine.Engine
	repo  repo.RecordRepository
	sched *scheduler.Scheduler
	files attach.Store
}

func NewHandler(eng *engine.Engine, r repo.RecordRepository, s *scheduler.Scheduler, files attach.Store) *Handler {
	return &Handler{eng: eng, repo: r, sched: s, files: files}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedulerView())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.schedulerView())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.schedulerView())
}

func (h *Handler) schedulerView() map[string]any {
	released, failed := h.sched.ReleaseTotals()
	view := map[string]any{
		"running":  h.sched.IsRunning(),
		"sweeps":   h.sched.SweepCount(),
		"released": released,
		"failed":   failed,
	}
	if last := h.sched.LastSweepAt(); !last.IsZero() {
		view["lastSweepAt"] = last
	}
	return view
}

// checkinRequest mirrors the authoring surface: message, contacts, and
// the schedule triple, plus references to already-stored attachments.
type checkinRequest struct {
	Message      string            `json:"message"`
	Recipients   []model.Recipient `json:"recipients"`
	Attachments  []model.FileRef   `json:"attachments"`
	DeliveryDate string            `json:"deliveryDate"`
	DeliveryTime string            `json:"deliveryTime"`
	Timezone     string            `json:"timezone"`
}

func (req *checkinRequest) toInput() engine.Input {
	return engine.Input{
		Message:     req.Message,
		Recipients:  req.Recipients,
		Attachments: req.Attachments,
		Schedule: model.Schedule{
			Date:      req.DeliveryDate,
			TimeOfDay: req.DeliveryTime,
			Timezone:  req.Timezone,
		},
	}
}

func (h *Handler) CreateCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	rec, err := h.eng.CreateDraft(r.Context(), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, present(rec))
}

func (h *Handler) ListCheckIns(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	recs, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": presentAll(recs)})
}

func (h *Handler) ListReleased(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	recs, err := h.repo.ListReleased(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": presentAll(recs)})
}

func (h *Handler) GetCheckIn(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, present(rec))
}

func (h *Handler) EditCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	rec, err := h.eng.Edit(r.Context(), r.PathValue("id"), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, present(rec))
}

func (h *Handler) ActivateCheckIn(w http.ResponseWriter, r *http.Request) {
	rec, err := h.eng.Activate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, present(rec))
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.eng.CheckIn)
}

func (h *Handler) CancelCheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.eng.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	id := r.PathValue("id")
	if err := op(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, present(rec))
}

// maxAttachmentBytes caps a single upload at 25 MiB.
const maxAttachmentBytes = 25 << 20

func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	ref, err := h.files.Store(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachmentView{
		ID:        ref.ID,
		Name:      ref.Name,
		Size:      ref.Size,
		SizeLabel: attach.FormatSize(ref.Size),
	})
}

func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	ref := model.FileRef{ID: r.PathValue("id")}

	data, err := h.files.Retrieve(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	ref := model.FileRef{ID: r.PathValue("id")}

	if err := h.files.Remove(r.Context(), ref); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteCheckIn(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": verr.Error(),
			"field": verr.Field,
		})
		return
	}

	var inputErr *timeutil.InvalidTimeInputError
	if errors.As(err, &inputErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": inputErr.Error()})
		return
	}

	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "check-in not found"})
	case errors.Is(err, attach.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "attachment not found"})
	case errors.Is(err, engine.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
