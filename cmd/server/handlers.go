package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/storage"
)

// sessionStore is the part of the archive the API reads.
type sessionStore interface {
	ListSessions() ([]storage.Session, error)
	GetSession(id string) (*storage.Session, []storage.SessionFile, error)
	DeleteSession(id string) error
	ListAnchors(sessionID string) ([]models.Anchor, error)
	LatestResult(sessionID string) (*models.SyncResult, error)
	ResultHistory(sessionID string) ([]storage.ResultRecord, error)
}

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	store  sessionStore
	config *ServerConfig
	log    syncsession.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr           string
	DBPath         string
	AllowedOrigins []string
	AllowDelete    bool
	LogRequests    bool
}

// NewServer creates a new server instance
func NewServer(store sessionStore, config *ServerConfig, log syncsession.Logger) *Server {
	return &Server{
		store:  store,
		config: config,
		log:    log,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondStoreError maps archive errors onto status codes.
func (s *Server) respondStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, storage.ErrSessionNotFound) {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Errorf("Failed to %s: %v", what, err)
	s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to %s", what))
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, http.StatusNotFound, "Unknown endpoint")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "AcousticSync API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":        "GET /health",
			"sessions":      "GET /api/sessions",
			"session":       "GET /api/sessions/{id}",
			"deleteSession": "DELETE /api/sessions/{id}",
			"result":        "GET /api/sessions/{id}/result",
			"anchors":       "GET /api/sessions/{id}/anchors",
			"history":       "GET /api/sessions/{id}/history",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleListSessions handles GET /api/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		s.respondStoreError(w, err, "list sessions")
		return
	}

	dtos := make([]SessionDTO, len(sessions))
	for i, sess := range sessions {
		dtos[i] = newSessionDTO(sess)
	}
	s.respondJSON(w, http.StatusOK, ListSessionsResponse{
		Sessions: dtos,
		Count:    len(dtos),
	})
}

// handleGetSession handles GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, files, err := s.store.GetSession(r.PathValue("id"))
	if err != nil {
		s.respondStoreError(w, err, "load session")
		return
	}

	resp := SessionDetailResponse{
		SessionDTO: newSessionDTO(*sess),
		Files:      make([]FileDTO, len(files)),
	}
	for i, f := range files {
		resp.Files[i] = FileDTO{Path: f.Path, Color: f.Color}
	}

	runs, err := s.store.ResultHistory(sess.ID)
	if err != nil {
		s.respondStoreError(w, err, "load session history")
		return
	}
	resp.Runs = len(runs)
	if len(runs) > 0 {
		resp.Summary = &models.Summary{
			TotalClips:        runs[0].TotalClips,
			MatchedClips:      runs[0].MatchedClips,
			UnmatchedClips:    runs[0].TotalClips - runs[0].MatchedClips,
			AverageConfidence: runs[0].AverageConfidence,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleDeleteSession handles DELETE /api/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.config.AllowDelete {
		s.respondError(w, http.StatusForbidden, "Deleting sessions is disabled on this server")
		return
	}
	id := r.PathValue("id")
	if err := s.store.DeleteSession(id); err != nil {
		s.respondStoreError(w, err, "delete session")
		return
	}
	s.log.Infof("Deleted session %s", id)
	s.respondJSON(w, http.StatusOK, DeleteSessionResponse{
		Message: "Session deleted",
		ID:      id,
	})
}

// handleResult handles GET /api/sessions/{id}/result
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.LatestResult(r.PathValue("id"))
	if err != nil {
		s.respondStoreError(w, err, "load result")
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// handleAnchors handles GET /api/sessions/{id}/anchors
func (s *Server) handleAnchors(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.store.GetSession(r.PathValue("id"))
	if err != nil {
		s.respondStoreError(w, err, "load session")
		return
	}
	anchors, err := s.store.ListAnchors(sess.ID)
	if err != nil {
		s.respondStoreError(w, err, "list anchors")
		return
	}
	if anchors == nil {
		anchors = []models.Anchor{}
	}
	s.respondJSON(w, http.StatusOK, AnchorsResponse{
		Anchors: anchors,
		Count:   len(anchors),
	})
}

// handleHistory handles GET /api/sessions/{id}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.store.GetSession(r.PathValue("id"))
	if err != nil {
		s.respondStoreError(w, err, "load session")
		return
	}
	records, err := s.store.ResultHistory(sess.ID)
	if err != nil {
		s.respondStoreError(w, err, "load session history")
		return
	}
	runs := make([]RunDTO, len(records))
	for i, rec := range records {
		runs[i] = RunDTO{
			ID:                rec.ID,
			TotalClips:        rec.TotalClips,
			MatchedClips:      rec.MatchedClips,
			AverageConfidence: rec.AverageConfidence,
			TimelineSeconds:   rec.TimelineSeconds,
			CreatedAt:         rec.CreatedAt,
		}
	}
	s.respondJSON(w, http.StatusOK, HistoryResponse{Runs: runs, Count: len(runs)})
}
