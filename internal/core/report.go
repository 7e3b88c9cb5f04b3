package core

import (
	"errors"
	"time"
)

// Counts tallies row outcomes for a job.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Total returns the number of rows that reached an outcome.
func (c Counts) Total() int {
	return c.Created + c.Updated + c.Skipped + c.Failed
}

func (c *Counts) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		c.Created++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	}
}

// RowOutcome is the report entry for one data row.
type RowOutcome struct {
	Line    int     `json:"line"`
	Outcome Outcome `json:"outcome"`
	Reason  *string `json:"reason"`
	Field   string  `json:"field,omitempty"`
	Kind    string  `json:"kind,omitempty"`
}

// OutcomeReport is the final, immutable result of an upload job.
type OutcomeReport struct {
	JobID       string       `json:"job_id"`
	Status      JobStatus    `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	FileName    string       `json:"file_name,omitempty"`
	Counts      Counts       `json:"counts"`
	TotalRows   int          `json:"total_rows"`
	OmittedRows int          `json:"omitted_rows,omitempty"`
	Rows        []RowOutcome `json:"rows"`
	SubmittedAt time.Time    `json:"submitted_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// reportBuilder accumulates row outcomes in line order. Detail entries stop
// at maxRows; counts keep advancing past the cap.
type reportBuilder struct {
	maxRows int
	counts  Counts
	rows    []RowOutcome
	omitted int
}

func newReportBuilder(maxRows int) *reportBuilder {
	initial := maxRows
	if initial <= 0 || initial > 64 {
		initial = 64
	}
	return &reportBuilder{maxRows: maxRows, rows: make([]RowOutcome, 0, initial)}
}

func (b *reportBuilder) record(line int, o Outcome, err error) {
	b.counts.add(o)

	if b.maxRows > 0 && len(b.rows) >= b.maxRows {
		b.omitted++
		return
	}

	entry := RowOutcome{Line: line, Outcome: o}
	if err != nil {
		reason := err.Error()
		var ve *ValidationError
		if errors.As(err, &ve) {
			reason = ve.Message
			entry.Field = ve.Field
			entry.Kind = ve.Kind
		}
		entry.Reason = &reason
	}
	b.rows = append(b.rows, entry)
}

func (b *reportBuilder) build(job *UploadJob, status JobStatus, reason string) *OutcomeReport {
	return &OutcomeReport{
		JobID:       job.ID,
		Status:      status,
		Reason:      reason,
		FileName:    job.FileName,
		Counts:      b.counts,
		TotalRows:   b.counts.Total(),
		OmittedRows: b.omitted,
		Rows:        b.rows,
		SubmittedAt: job.SubmittedAt,
		CompletedAt: time.Now().UTC(),
	}
}
