package http

import (
	"time"

	"scout/internal/jobs"
	"scout/internal/pipeline"
	"scout/internal/report"
)

// ErrorResponse is the shared error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// ResearchRequest is the submission body for POST /v1/research.
type ResearchRequest struct {
	CrewName string `json:"crewName"`
	Goal     string `json:"goal"`
	JobID    string `json:"jobId,omitempty"`
}

// ResearchResponse acknowledges an accepted submission.
type ResearchResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StageLogItem is one stage outcome in a job detail response.
type StageLogItem struct {
	Name          string `json:"name"`
	Agent         string `json:"agent,omitempty"`
	Success       bool   `json:"success"`
	Output        string `json:"output,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	DurationMs    int64  `json:"durationMs"`
}

// JobItem is the list view of one job.
type JobItem struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Stages    int       `json:"stages"`
}

// JobDetailItem is the full view of one job.
type JobDetailItem struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Goal         string         `json:"goal"`
	State        string         `json:"state"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	StageLog     []StageLogItem `json:"stageLog"`
	Result       string         `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	ReportPath   string         `json:"reportPath,omitempty"`
	PersistError string         `json:"persistError,omitempty"`
}

// ListJobsResponse wraps GET /v1/jobs.
type ListJobsResponse struct {
	Success bool      `json:"success"`
	Code    string    `json:"code,omitempty"`
	Error   string    `json:"error,omitempty"`
	Jobs    []JobItem `json:"jobs"`
}

// JobDetailResponse wraps GET /v1/jobs/:id.
type JobDetailResponse struct {
	Success bool           `json:"success"`
	Code    string         `json:"code,omitempty"`
	Error   string         `json:"error,omitempty"`
	Job     *JobDetailItem `json:"job,omitempty"`
}

// ReportItem is one persisted report in a listing, enriched with the
// producing job when the artifact index is configured.
type ReportItem struct {
	Label    string    `json:"label"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	JobID    string    `json:"jobId,omitempty"`
}

// ReportListResponse wraps GET /v1/reports.
type ReportListResponse struct {
	Success bool         `json:"success"`
	Reports []ReportItem `json:"reports"`
}

// ReportJSONResponse wraps GET /v1/reports/:label?format=json.
type ReportJSONResponse struct {
	Success  bool             `json:"success"`
	Label    string           `json:"label"`
	JobID    string           `json:"jobId,omitempty"`
	Title    string           `json:"title"`
	Sections []report.Section `json:"sections"`
}

// RetentionResponse wraps POST /v1/admin/retention/cleanup.
type RetentionResponse struct {
	Success bool                `json:"success"`
	Stats   jobs.RetentionStats `json:"stats"`
}

func toStageLog(results []pipeline.StageResult) []StageLogItem {
	out := make([]StageLogItem, 0, len(results))
	for _, r := range results {
		out = append(out, StageLogItem{
			Name:          r.Name,
			Agent:         r.Agent,
			Success:       r.Success,
			Output:        r.Output,
			FailureReason: r.FailureReason,
			DurationMs:    r.Duration.Milliseconds(),
		})
	}
	return out
}

func toJobItem(j jobs.Job) JobItem {
	return JobItem{
		ID:        j.ID,
		Label:     j.Label,
		State:     string(j.State),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		Stages:    len(j.StageLog),
	}
}

func toJobDetail(j jobs.Job) *JobDetailItem {
	return &JobDetailItem{
		ID:           j.ID,
		Label:        j.Label,
		Goal:         j.Goal,
		State:        string(j.State),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StageLog:     toStageLog(j.StageLog),
		Result:       j.Result,
		Error:        j.Error,
		ReportPath:   j.ReportPath,
		PersistError: j.PersistError,
	}
}
