package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/custupload/internal/logging"
)

// Defaults applied by NewService for zero-valued ServiceConfig fields.
const (
	DefaultUploadTimeout = 10 * time.Minute
	DefaultMaxReportRows = 10000
	DefaultRetention     = time.Hour
	DefaultNaturalKey    = FieldEmail
)

const reportSaveTimeout = 5 * time.Second

// ServiceConfig holds the tunables of the ingestion pipeline.
type ServiceConfig struct {
	MaxConcurrent int           // simultaneous jobs
	MaxWait       time.Duration // wait for a free slot before ErrTooManyUploads
	Timeout       time.Duration // deadline for one job
	MaxReportRows int           // per-row detail cap, <0 for unlimited
	Retention     time.Duration // how long terminal reports stay queryable
	NaturalKey    string        // FieldEmail or FieldExternalRef
}

// JobStore keeps terminal reports for later retrieval.
type JobStore interface {
	Save(ctx context.Context, report *OutcomeReport, ttl time.Duration) error
	// Get returns ErrJobNotFound for unknown or expired jobs.
	Get(ctx context.Context, jobID string) (*OutcomeReport, error)
}

// Service runs upload jobs through the parse, validate and reconcile pipeline.
type Service struct {
	reconciler *Reconciler
	store      JobStore
	limiter    *UploadLimiter
	cfg        ServiceConfig

	mu   sync.RWMutex
	jobs map[string]*UploadJob
}

// NewService creates a Service.
func NewService(repo Repository, locks KeyLocker, store JobStore, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultUploadTimeout
	}
	if cfg.MaxReportRows == 0 {
		cfg.MaxReportRows = DefaultMaxReportRows
	}
	if cfg.MaxReportRows < 0 {
		cfg.MaxReportRows = 0
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.NaturalKey == "" {
		cfg.NaturalKey = DefaultNaturalKey
	}

	return &Service{
		reconciler: NewReconciler(repo, locks),
		store:      store,
		limiter:    NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:        cfg,
		jobs:       make(map[string]*UploadJob),
	}
}

// Limiter exposes the upload limiter for health reporting.
func (s *Service) Limiter() *UploadLimiter { return s.limiter }

// IngestUpload processes r synchronously and returns the final report.
//
// The error is non-nil only when the job could not start: no free slot
// (ErrTooManyUploads) or ctx already done. Every failure after that is
// described by the report.
func (s *Service) IngestUpload(ctx context.Context, r io.Reader, opts UploadOptions) (*OutcomeReport, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	job := s.register(opts, cancel)
	return s.run(jobCtx, job, r, opts, newReportBuilder(s.cfg.MaxReportRows)), nil
}

// StartUpload begins processing r on a background goroutine and returns the
// job ID immediately. r is closed when the job ends. The job keeps ctx's
// values but not its cancellation; ctx only bounds the wait for a free slot.
func (s *Service) StartUpload(ctx context.Context, r io.ReadCloser, opts UploadOptions) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	job := s.register(opts, cancel)
	b := newReportBuilder(s.cfg.MaxReportRows)

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer r.Close()
		defer func() {
			if p := recover(); p != nil {
				jobLogger(jobCtx, job).Error("panic in upload", "panic", p)
				s.complete(jobCtx, job, b, fmt.Errorf("internal error: %v", p))
			}
		}()
		s.run(jobCtx, job, r, opts, b)
	}()

	return job.ID, nil
}

// CancelUpload requests cancellation of a running job. The job stops at its
// next row boundary and ends with status failed.
func (s *Service) CancelUpload(jobID string) error {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()

	if !ok || job.Status().Terminal() {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	job.cancel()
	return nil
}

// JobStatus returns the live snapshot of a running job, or the stored report
// of a finished one. Exactly one of the two results is non-nil on success.
func (s *Service) JobStatus(ctx context.Context, jobID string) (*JobSnapshot, *OutcomeReport, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()

	if ok {
		snap := job.Snapshot()
		if !snap.Status.Terminal() {
			return &snap, nil, nil
		}
		if rep := job.finalReport(); rep != nil {
			return nil, rep, nil
		}
	}

	if s.store == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	rep, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return nil, rep, nil
}

// WaitForUploads blocks until every running job has finished or ctx is done.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) register(opts UploadOptions, cancel context.CancelFunc) *UploadJob {
	job := newUploadJob(opts)
	job.cancel = cancel

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// run drives one job to a terminal status on the calling goroutine.
func (s *Service) run(ctx context.Context, job *UploadJob, r io.Reader, opts UploadOptions, b *reportBuilder) *OutcomeReport {
	log := jobLogger(ctx, job)
	log.Info("upload started")

	counter := NewCountingReader(r, opts.Size)

	parser, err := NewParser(counter, ParseOptions{
		Format:    job.Format,
		Delimiter: opts.Delimiter,
		Encoding:  opts.Encoding,
		Required:  RequiredFields(s.cfg.NaturalKey),
	})
	if err != nil {
		return s.complete(ctx, job, b, err)
	}
	defer parser.Close()

	validator := NewValidator(parser.Header(), s.cfg.NaturalKey)

	var fatal error
	for {
		cand, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fatal = err
			break
		}

		// cancellation checkpoint between rows
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}

		rec, verr := validator.Validate(cand)
		if verr != nil {
			log.Debug("row rejected", "line", cand.Line, "field", verr.Field, "kind", verr.Kind)
			b.record(cand.Line, OutcomeFailed, verr)
		} else {
			outcome, err := s.reconciler.Reconcile(ctx, rec)
			if err != nil && interrupted(ctx, err) {
				// the row was cut short by the job ending, not rejected
				fatal = ctx.Err()
				break
			}
			if err != nil {
				log.Debug("row failed", "line", cand.Line, "error", err)
			}
			b.record(cand.Line, outcome, err)
		}

		job.progress(b.counts.Total(), b.counts, counter)
	}

	// a cancel or deadline during the last row still fails the job
	if fatal == nil {
		fatal = ctx.Err()
	}

	return s.complete(ctx, job, b, fatal)
}

// complete moves the job to its terminal status and stores the report.
func (s *Service) complete(ctx context.Context, job *UploadJob, b *reportBuilder, fatal error) *OutcomeReport {
	status := StatusCompleted
	reason := ""
	if fatal != nil {
		status = StatusFailed
		reason = s.failureReason(fatal)
	}

	report := b.build(job, status, reason)
	if !job.finish(status, report) {
		// already terminal, keep the first outcome
		return job.finalReport()
	}

	log := jobLogger(ctx, job)
	attrs := []any{
		"status", status,
		"total_rows", report.TotalRows,
		"created", report.Counts.Created,
		"updated", report.Counts.Updated,
		"skipped", report.Counts.Skipped,
		"failed", report.Counts.Failed,
	}
	if fatal != nil {
		log.Warn("upload failed", append(attrs, "reason", reason, "error", fatal)...)
	} else {
		log.Info("upload completed", attrs...)
	}

	s.persist(ctx, job, report)
	return report
}

// persist hands the report to the JobStore. The live entry is dropped once
// the store has it, otherwise it is kept in memory for the retention window.
func (s *Service) persist(ctx context.Context, job *UploadJob, report *OutcomeReport) {
	if s.store != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportSaveTimeout)
		defer cancel()

		err := s.store.Save(saveCtx, report, s.cfg.Retention)
		if err == nil {
			s.mu.Lock()
			delete(s.jobs, job.ID)
			s.mu.Unlock()
			return
		}
		jobLogger(ctx, job).Warn("save upload report", "error", err)
	}
	s.cleanup(job.ID, s.cfg.Retention)
}

// cleanup removes the job from tracking after a delay.
func (s *Service) cleanup(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
	})
}

func jobLogger(ctx context.Context, job *UploadJob) *slog.Logger {
	return logging.WithFields(ctx, "job_id", job.ID, "file", job.FileName, "format", string(job.Format))
}

// interrupted reports whether err comes from ctx ending rather than from
// the row itself.
func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "upload cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("upload timed out after %s", s.cfg.Timeout)
	}
	return err.Error()
}
