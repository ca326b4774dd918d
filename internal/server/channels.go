package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/embedding"
	"github.com/voyagen/channelfold/internal/models"
	"github.com/voyagen/channelfold/internal/service"
	"github.com/voyagen/channelfold/internal/store"
)

// parseFilter reads the shared channel query parameters.
func parseFilter(q url.Values) (store.ChannelFilter, error) {
	var filter store.ChannelFilter
	if v := q.Get("source_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid source_id: %s", v)
		}
		filter.SourceID = &id
	}
	if v := q.Get("selected"); v != "" {
		sel, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid selected: %s (use true or false)", v)
		}
		filter.Selected = &sel
	}
	filter.Group = q.Get("group")
	filter.Search = q.Get("search")
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %s", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset: %s", v)
		}
		filter.Offset = n
	}
	return filter, nil
}

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > 200:
		return 200
	}
	return limit
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	// Apply defaults so the response reflects actual values used.
	filter.Limit = clampLimit(filter.Limit, 50)

	channels, total, err := s.store.ListChannels(r.Context(), filter)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if channels == nil {
		channels = []models.ChannelAggregate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	ch, err := s.store.GetChannelByID(r.Context(), channelID)
	if err != nil {
		s.writeServiceErr(w, fmt.Errorf("channel %s: %w", channelID, err))
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

type updateChannelRequest struct {
	Name     *string `json:"name"`
	Selected *bool   `json:"selected"`
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	var req updateChannelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == nil && req.Selected == nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("name or selected is required"))
		return
	}

	ctx := r.Context()
	if req.Name != nil {
		if err := service.RenameChannel(ctx, s.store, channelID, *req.Name); err != nil {
			s.writeChannelErr(w, channelID, err)
			return
		}
	}
	if req.Selected != nil {
		if err := s.store.UpdateChannel(ctx, channelID, store.ChannelUpdate{Selected: req.Selected}); err != nil {
			s.writeChannelErr(w, channelID, err)
			return
		}
	}

	ch, err := s.store.GetChannelByID(ctx, channelID)
	if err != nil {
		s.writeChannelErr(w, channelID, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) writeChannelErr(w http.ResponseWriter, channelID string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("channel %s not found", channelID))
	case errors.Is(err, service.ErrInvalidName):
		s.writeErr(w, http.StatusBadRequest, err)
	default:
		s.writeErr(w, http.StatusInternalServerError, err)
	}
}

type selectionRequest struct {
	IDs      []string `json:"ids"`
	Selected bool     `json:"selected"`
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if len(req.IDs) == 0 {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("ids is required"))
		return
	}
	n, err := service.SelectChannels(r.Context(), s.store, req.IDs, req.Selected)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handleSearchChannels(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil {
		s.writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("semantic search is not configured (VOYAGE_API_KEY not set)"))
		return
	}
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("q parameter is required"))
		return
	}
	filter, err := parseFilter(q)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	filter.Limit = clampLimit(filter.Limit, 20)
	s.log.Debug("semantic search", zap.String("q", query), zap.Int("limit", filter.Limit))

	vecs, err := s.embedder.Embed(r.Context(), []string{query}, embedding.InputQuery)
	if err != nil {
		s.writeErr(w, http.StatusBadGateway, fmt.Errorf("embed query: %w", err))
		return
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		s.writeErr(w, http.StatusInternalServerError, fmt.Errorf("empty embedding returned"))
		return
	}

	results, err := s.store.SemanticSearch(r.Context(), vecs[0], filter)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []store.SemanticResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": results,
		"limit":    filter.Limit,
	})
}
