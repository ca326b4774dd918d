package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voyagen/channelfold/internal/service"
)

type syncRequest struct {
	ProfileID int64 `json:"profile_id"`
}

// handleSyncSource pushes the selected channels of a source to the catalog.
// With Redis configured the sync is queued and 202 is returned with the job;
// otherwise it runs within the request and the report is returned.
func (s *Server) handleSyncSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if s.connect == nil {
		s.writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("catalog is not configured (CATALOG_URL not set)"))
		return
	}
	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.ProfileID == 0 {
		s.writeErr(w, http.StatusBadRequest, service.ErrNoProfile)
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetSourceByID(ctx, sourceID); err != nil {
		s.writeServiceErr(w, fmt.Errorf("source %d: %w", sourceID, err))
		return
	}

	if s.redis != nil {
		status, err := service.EnqueueSync(ctx, s.redis, sourceID, req.ProfileID)
		if err != nil {
			s.writeServiceErr(w, fmt.Errorf("enqueue sync: %w", err))
			return
		}
		w.Header().Set("Location", "/api/jobs/"+status.Job.ID)
		writeJSON(w, http.StatusAccepted, status)
		return
	}

	cat, err := s.connect(ctx)
	if err != nil {
		s.writeErr(w, http.StatusBadGateway, fmt.Errorf("connect catalog: %w", err))
		return
	}
	report, err := service.SyncSource(ctx, s.store, cat, sourceID, service.SyncOptions{
		ProfileID:    req.ProfileID,
		DefaultGroup: s.cfg.Catalog.DefaultGroup,
		Logger:       s.log,
	})
	if err != nil {
		s.writeServiceErr(w, fmt.Errorf("sync: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("jobs require REDIS_URL"))
		return
	}
	id := chi.URLParam(r, "id")
	status, err := service.GetJobStatus(r.Context(), s.redis, id)
	if err != nil {
		s.writeServiceErr(w, fmt.Errorf("job %s: %w", id, err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}
