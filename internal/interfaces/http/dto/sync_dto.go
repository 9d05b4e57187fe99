package dto

import (
	"time"

	"github.com/google/uuid"

	syncdomain "github.com/storesync/backend/internal/domain/sync"
)

// ListJobsRequest filters the job listing
type ListJobsRequest struct {
	ListRequest
	Mode  string `form:"mode"`
	State string `form:"state" binding:"omitempty,oneof=draft queued running success failed"`
}

// TriggerJobRequest enqueues a sync job by mode. ExternalID targets a single
// remote record, LocalIDs a batch of local ones; most modes take neither.
type TriggerJobRequest struct {
	Mode       string   `json:"mode" binding:"required"`
	ExternalID string   `json:"external_id"`
	LocalIDs   []string `json:"local_ids" binding:"omitempty,dive,uuid"`
}

// SyncJobResponse is the wire form of a sync job
type SyncJobResponse struct {
	ID            uuid.UUID   `json:"id"`
	Mode          string      `json:"mode"`
	State         string      `json:"state"`
	ExternalID    string      `json:"external_id,omitempty"`
	LocalIDs      []uuid.UUID `json:"local_ids,omitempty"`
	TotalCount    int         `json:"total_count"`
	UpdatedCount  int         `json:"updated_count"`
	RetryAttempts int         `json:"retry_attempts"`
	StartTime     *time.Time  `json:"start_time,omitempty"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	ErrorKind     string      `json:"error_kind,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewSyncJobResponse converts a domain job to its wire form
func NewSyncJobResponse(job *syncdomain.Job) SyncJobResponse {
	return SyncJobResponse{
		ID:            job.ID,
		Mode:          job.Mode.String(),
		State:         job.State.String(),
		ExternalID:    job.Selector.ExternalID,
		LocalIDs:      job.Selector.LocalIDs,
		TotalCount:    job.TotalCount,
		UpdatedCount:  job.UpdatedCount,
		RetryAttempts: job.RetryAttempts,
		StartTime:     job.StartTime,
		EndTime:       job.EndTime,
		ErrorMessage:  job.ErrorMessage,
		ErrorKind:     string(job.ErrorKind),
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

// NewSyncJobListResponse converts a page of domain jobs
func NewSyncJobListResponse(jobs []syncdomain.Job) []SyncJobResponse {
	out := make([]SyncJobResponse, len(jobs))
	for i := range jobs {
		out[i] = NewSyncJobResponse(&jobs[i])
	}
	return out
}

// TriggerJobResponse reports the enqueue outcome. Deduplicated means an
// equivalent queued job already existed and no new row was created.
type TriggerJobResponse struct {
	Job          *SyncJobResponse `json:"job,omitempty"`
	Deduplicated bool             `json:"deduplicated"`
}

// WebhookAckResponse is the immediate acknowledgement for a webhook delivery
type WebhookAckResponse struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
	Mode      string `json:"mode,omitempty"`
}
