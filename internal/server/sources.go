package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/fetcher"
	"github.com/voyagen/channelfold/internal/models"
	"github.com/voyagen/channelfold/internal/service"
	"github.com/voyagen/channelfold/internal/store"
)

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

type addSourceRequest struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	UserAgent string `json:"user_agent"`
}

func validPlaylistURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("url is required"))
		return
	}
	if !validPlaylistURL(req.URL) {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("url must be a valid http or https URL"))
		return
	}

	opts := s.ingestOptions(req.Name)
	if req.UserAgent != "" {
		opts.Fetch.UserAgent = req.UserAgent
	}
	res, err := service.Ingest(r.Context(), s.store, req.URL, opts)
	if err != nil {
		s.writeServiceErr(w, fmt.Errorf("ingest: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	src, err := s.store.GetSourceByID(r.Context(), sourceID)
	if err != nil {
		s.writeServiceErr(w, fmt.Errorf("source %d: %w", sourceID, err))
		return
	}
	writeJSON(w, http.StatusOK, src)
}

type updateSourceRequest struct {
	Name      *string `json:"name"`
	URL       *string `json:"url"`
	UserAgent *string `json:"user_agent"`
	Enabled   *bool   `json:"enabled"`
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	var req updateSourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.URL != nil && !validPlaylistURL(*req.URL) {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("url must be a valid http or https URL"))
		return
	}

	fields := store.SourceUpdate{Name: req.Name, URL: req.URL, UserAgent: req.UserAgent, Enabled: req.Enabled}
	if err := s.store.UpdateSource(r.Context(), sourceID, fields); err != nil {
		s.writeServiceErr(w, fmt.Errorf("source %d: %w", sourceID, err))
		return
	}
	src, err := s.store.GetSourceByID(r.Context(), sourceID)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteSource(r.Context(), sourceID); err != nil {
		s.writeServiceErr(w, fmt.Errorf("source %d: %w", sourceID, err))
		return
	}
	writeNoContent(w)
}

func (s *Server) handleRefreshSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	res, err := service.Refresh(r.Context(), s.store, sourceID, s.ingestOptions(""))
	if err != nil {
		s.writeServiceErr(w, fmt.Errorf("refresh: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCleanupNames(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	n, err := service.CleanupNames(r.Context(), s.store, sourceID)
	if err != nil {
		s.writeServiceErr(w, fmt.Errorf("source %d: %w", sourceID, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"renamed": n})
}

// handleExportPlaylist writes the consolidated playlist of a source: one
// entry per selected channel, pointing at its first stream. ?all=true
// includes unselected channels.
func (s *Server) handleExportPlaylist(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.store.GetSourceByID(r.Context(), sourceID); err != nil {
		s.writeServiceErr(w, fmt.Errorf("source %d: %w", sourceID, err))
		return
	}
	channels, err := s.store.ListChannelsBySource(r.Context(), sourceID)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if r.URL.Query().Get("all") != "true" {
		selected := channels[:0]
		for _, ch := range channels {
			if ch.Selected {
				selected = append(selected, ch)
			}
		}
		channels = selected
	}

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="source-%d.m3u"`, sourceID))
	if err := fetcher.ExportChannels(w, channels); err != nil {
		s.log.Warn("playlist export interrupted", zap.Int64("source_id", sourceID), zap.Error(err))
	}
}

// handlePreview consolidates a playlist without storing it. The body is
// either JSON ({"text"} or {"url"}) or the raw playlist text.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var in service.PreviewInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(w, r, &in); err != nil {
			s.writeErr(w, http.StatusBadRequest, err)
			return
		}
	} else {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
			return
		}
		in.Text = string(data)
	}
	if strings.TrimSpace(in.Text) == "" && in.URL != "" && !validPlaylistURL(in.URL) {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("url must be a valid http or https URL"))
		return
	}

	channels, err := service.Preview(r.Context(), in, s.fetchOptions(""), s.newID)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"total":    len(channels),
	})
}
