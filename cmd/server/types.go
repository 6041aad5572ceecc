package main

import (
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/storage"
)

// SessionDTO represents a session in API responses
type SessionDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Strictness    string    `json:"strictness"`
	PlacementMode string    `json:"placement_mode"`
	FrameRate     float64   `json:"frame_rate"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newSessionDTO(s storage.Session) SessionDTO {
	return SessionDTO{
		ID:            s.ID,
		Name:          s.Name,
		Strictness:    s.Strictness,
		PlacementMode: s.PlacementMode,
		FrameRate:     s.FrameRate,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// FileDTO is one input file of a session, in input order
type FileDTO struct {
	Path  string `json:"path"`
	Color string `json:"color,omitempty"`
}

// ListSessionsResponse is the response for GET /api/sessions
type ListSessionsResponse struct {
	Sessions []SessionDTO `json:"sessions"`
	Count    int          `json:"count"`
}

// SessionDetailResponse is the response for GET /api/sessions/{id}
type SessionDetailResponse struct {
	SessionDTO
	Files   []FileDTO       `json:"files"`
	Summary *models.Summary `json:"summary,omitempty"`
	Runs    int             `json:"runs"`
}

// AnchorsResponse is the response for GET /api/sessions/{id}/anchors
type AnchorsResponse struct {
	Anchors []models.Anchor `json:"anchors"`
	Count   int             `json:"count"`
}

// RunDTO summarises one archived run without its payload
type RunDTO struct {
	ID                uint      `json:"id"`
	TotalClips        int       `json:"total_clips"`
	MatchedClips      int       `json:"matched_clips"`
	AverageConfidence float64   `json:"average_confidence"`
	TimelineSeconds   float64   `json:"timeline_seconds"`
	CreatedAt         time.Time `json:"created_at"`
}

// HistoryResponse is the response for GET /api/sessions/{id}/history
type HistoryResponse struct {
	Runs  []RunDTO `json:"runs"`
	Count int      `json:"count"`
}

// DeleteSessionResponse is the response for DELETE /api/sessions/{id}
type DeleteSessionResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
