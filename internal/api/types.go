package api

import (
	"time"

	"scribe/internal/deps"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/preflight"
	"scribe/internal/workflow"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JobListResponse wraps a page of jobs. Results are omitted from list
// entries; fetch a single job to read its transcript.
type JobListResponse struct {
	Jobs   []jobs.Job          `json:"jobs"`
	Counts map[jobs.Status]int `json:"counts"`
}

// HistoryResponse wraps archived job records.
type HistoryResponse struct {
	Records []history.Record `json:"records"`
	Stats   history.Stats    `json:"stats"`
}

// LanguageInfo pairs an ISO 639-1 code with its English name.
type LanguageInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DiarizationStatus describes how speaker turns are produced.
type DiarizationStatus struct {
	Default bool   `json:"default"`
	Backend string `json:"backend"`
}

// StatusResponse is the health and capability report of a daemon.
type StatusResponse struct {
	Status          string                 `json:"status"`
	Version         string                 `json:"version"`
	Timestamp       time.Time              `json:"timestamp"`
	PID             int                    `json:"pid"`
	CUDAEnabled     bool                   `json:"cuda_enabled"`
	Device          string                 `json:"device"`
	ComputeType     string                 `json:"compute_type"`
	Models          []string               `json:"models_available"`
	DefaultModel    string                 `json:"default_model"`
	Languages       []LanguageInfo         `json:"languages"`
	DefaultLanguage string                 `json:"default_language"`
	Extensions      []string               `json:"extensions"`
	MaxFileSizeMB   int64                  `json:"max_file_size_mb"`
	Diarization     DiarizationStatus      `json:"diarization"`
	Workflow        workflow.StatusSummary `json:"workflow"`
	Dependencies    []deps.Status          `json:"dependencies"`
	Checks          []preflight.Result     `json:"checks"`
	HistoryPath     string                 `json:"history_path,omitempty"`
	LockPath        string                 `json:"lock_path,omitempty"`
}

// ActiveJobs returns the number of jobs currently processing.
func (s StatusResponse) ActiveJobs() int {
	return s.Workflow.Counts[jobs.StatusProcessing]
}

// LogStreamResponse is a page of buffered daemon log events.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
