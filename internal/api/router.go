package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("POST /v1/checkins", h.CreateCheckIn)
	mux.HandleFunc("GET /v1/checkins", h.ListCheckIns)
	mux.HandleFunc("GET /v1/checkins/released", h.ListReleased)
	mux.HandleFunc("GET /v1/checkins/{id}", h.GetCheckIn)
	mux.HandleFunc("PUT /v1/checkins/{id}", h.EditCheckIn)
	mux.HandleFunc("DELETE /v1/checkins/{id}", h.DeleteCheckIn)
	mux.HandleFunc("POST /v1/checkins/{id}/activate", h.ActivateCheckIn)
	mux.HandleFunc("POST /v1/checkins/{id}/checkin", h.CheckIn)
	mux.HandleFunc("POST /v1/checkins/{id}/cancel", h.CancelCheckIn)

	mux.HandleFunc("POST /v1/attachments", h.UploadAttachment)
	mux.HandleFunc("GET /v1/attachments/{id}", h.DownloadAttachment)
	mux.HandleFunc("DELETE /v1/attachments/{id}", h.DeleteAttachment)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("safety-checkin"))
	})

	return mux
}
