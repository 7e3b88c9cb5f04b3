package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Format identifies the container format of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Field names of the customer upload schema, in validation order.
const (
	FieldExternalRef = "external_ref"
	FieldEmail       = "email"
	FieldName        = "name"
	FieldPhone       = "phone"
	FieldCompany     = "company"
)

// SchemaFields lists the customer columns in the order rules are evaluated.
var SchemaFields = []string{FieldExternalRef, FieldEmail, FieldName, FieldPhone, FieldCompany}

// Profile holds the mutable customer attributes an upload can set.
type Profile struct {
	ExternalRef string `json:"external_ref,omitempty"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Company     string `json:"company,omitempty"`
}

// Customer is the persisted entity.
type Customer struct {
	ID         uuid.UUID `json:"id"`
	NaturalKey string    `json:"natural_key"`
	Profile
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RowCandidate is one raw record pulled from the upload stream.
type RowCandidate struct {
	Line   int      // 1-based physical line where the record starts
	Fields []string // cell values indexed like Header
	Err    *ValidationError
}

// NormalizedRecord is a RowCandidate that passed validation.
type NormalizedRecord struct {
	Line       int
	NaturalKey string
	Profile    Profile
}

// JobStatus is the lifecycle state of an upload job.
type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome is the per-row result of an upload.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// UploadOptions describes how an upload stream should be interpreted.
type UploadOptions struct {
	FileName  string
	Format    Format // inferred from FileName when empty
	Delimiter rune   // CSV only, defaults to ','
	Encoding  string // only utf-8 is supported
	Size      int64  // total bytes if known, for progress
}

// UploadJob tracks one submitted file for the lifetime of its processing.
type UploadJob struct {
	ID          string
	FileName    string
	Format      Format
	SubmittedAt time.Time

	mu        sync.RWMutex
	status    JobStatus
	totalRows int
	counts    Counts
	bytesRead int64
	percent   int
	report    *OutcomeReport
	cancel    func()
	done      chan struct{}
}

func newUploadJob(opts UploadOptions) *UploadJob {
	format := opts.Format
	if format == "" {
		format = DetectFormat(opts.FileName, "")
	}
	return &UploadJob{
		ID:          uuid.New().String(),
		FileName:    opts.FileName,
		Format:      format,
		SubmittedAt: time.Now().UTC(),
		status:      StatusRunning,
		done:        make(chan struct{}),
	}
}

// JobSnapshot is a point-in-time view of a job, safe to hand to other goroutines.
type JobSnapshot struct {
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	FileName    string    `json:"file_name,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	TotalRows   int       `json:"total_rows"`
	BytesRead   int64     `json:"bytes_read"`
	Percent     int       `json:"percent,omitempty"` // 0 when the size is unknown
	Counts      Counts    `json:"counts"`
}

// Snapshot returns the current progress of the job.
func (j *UploadJob) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		JobID:       j.ID,
		Status:      j.status,
		FileName:    j.FileName,
		SubmittedAt: j.SubmittedAt,
		TotalRows:   j.totalRows,
		BytesRead:   j.bytesRead,
		Percent:     j.percent,
		Counts:      j.counts,
	}
}

// Status returns the current lifecycle state.
func (j *UploadJob) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *UploadJob) progress(total int, counts Counts, r *CountingReader) {
	j.mu.Lock()
	j.totalRows = total
	j.counts = counts
	j.bytesRead = r.BytesRead()
	j.percent = r.Progress()
	j.mu.Unlock()
}

// Done is closed when the job reaches a terminal status.
func (j *UploadJob) Done() <-chan struct{} { return j.done }

// finish moves the job to a terminal status and attaches its report.
// Returns false if the job was already terminal or status is not terminal.
func (j *UploadJob) finish(status JobStatus, report *OutcomeReport) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() || !status.Terminal() {
		return false
	}
	j.status = status
	j.report = report
	j.totalRows = report.TotalRows
	j.counts = report.Counts
	close(j.done)
	return true
}

func (j *UploadJob) finalReport() *OutcomeReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.report
}
