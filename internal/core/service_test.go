package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu      sync.Mutex
	reports map[string]*OutcomeReport
}

func (s *mapStore) Save(_ context.Context, r *OutcomeReport, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reports == nil {
		s.reports = make(map[string]*OutcomeReport)
	}
	s.reports[r.JobID] = r
	return nil
}

func (s *mapStore) Get(_ context.Context, id string) (*OutcomeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return r, nil
}

func newTestService(repo Repository, cfg ServiceConfig) *Service {
	return NewService(repo, nil, &mapStore{}, cfg)
}

func ingest(t *testing.T, svc *Service, csv string) *OutcomeReport {
	t.Helper()
	rep, err := svc.IngestUpload(context.Background(), strings.NewReader(csv), UploadOptions{FileName: "customers.csv"})
	require.NoError(t, err)
	require.NotNil(t, rep)
	return rep
}

func outcomes(rep *OutcomeReport) []Outcome {
	out := make([]Outcome, len(rep.Rows))
	for i, r := range rep.Rows {
		out[i] = r.Outcome
	}
	return out
}

func TestIngestUpload_MixedOutcomes(t *testing.T) {
	repo := newFakeRepo()
	repo.put("b@x.io", Profile{Email: "b@x.io", Name: "Bob"})
	svc := newTestService(repo, ServiceConfig{})

	rep := ingest(t, svc, "name,email\nAnn,a@x.io\nBob,b@x.io\nCid,not-an-email\n")

	assert.Equal(t, StatusCompleted, rep.Status)
	assert.Empty(t, rep.Reason)
	assert.Equal(t, Counts{Created: 1, Updated: 0, Skipped: 1, Failed: 1}, rep.Counts)
	assert.Equal(t, 3, rep.TotalRows)
	assert.Equal(t, []Outcome{OutcomeCreated, OutcomeSkipped, OutcomeFailed}, outcomes(rep))

	failed := rep.Rows[2]
	assert.Equal(t, 4, failed.Line)
	require.NotNil(t, failed.Reason)
	assert.Equal(t, FieldEmail, failed.Field)
	assert.Equal(t, KindFormat, failed.Kind)
	assert.Nil(t, rep.Rows[0].Reason)
}

func TestIngestUpload_RepeatAndMissingName(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})

	rep := ingest(t, svc, "name,email\nAnn,a@x.io\nAnn,a@x.io\n,c@x.io\n")

	assert.Equal(t, StatusCompleted, rep.Status)
	assert.Equal(t, []Outcome{OutcomeCreated, OutcomeSkipped, OutcomeFailed}, outcomes(rep))
	assert.Equal(t, Counts{Created: 1, Updated: 0, Skipped: 1, Failed: 1}, rep.Counts)

	missing := rep.Rows[2]
	assert.Equal(t, 4, missing.Line)
	assert.Equal(t, FieldName, missing.Field)
	assert.Equal(t, KindRequired, missing.Kind)
	assert.Equal(t, 1, repo.writes)
}

func TestIngestUpload_IdempotentReupload(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	file := "name,email,company\nAnn,a@x.io,Acme\nBob,b@x.io,\n"

	first := ingest(t, svc, file)
	require.Equal(t, Counts{Created: 2}, first.Counts)
	writes := repo.writes

	second := ingest(t, svc, file)
	assert.Equal(t, Counts{Skipped: 2}, second.Counts)
	assert.Equal(t, writes, repo.writes)
}

func TestIngestUpload_PartialProgressOnFatalRow(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})

	rep := ingest(t, svc, "name,email\nAnn,a@x.io\nBob,b@x.io\n\"Cid,c@x.io\n")

	assert.Equal(t, StatusFailed, rep.Status)
	assert.Contains(t, rep.Reason, "line 4")
	assert.Equal(t, 2, rep.Counts.Created)

	_, ok := repo.get("a@x.io")
	assert.True(t, ok)
	_, ok = repo.get("b@x.io")
	assert.True(t, ok)
}

func TestIngestUpload_RowIndependence(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{})

	rep := ingest(t, svc, "name,email\nAnn,invalid\nBob,b@x.io\n")

	assert.Equal(t, []Outcome{OutcomeFailed, OutcomeCreated}, outcomes(rep))
	assert.Equal(t, StatusCompleted, rep.Status)
}

func TestIngestUpload_SameKeyTwiceInFile(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})

	rep := ingest(t, svc, "name,email\nX,a@x.io\nY,A@X.IO\n")

	assert.Equal(t, []Outcome{OutcomeCreated, OutcomeUpdated}, outcomes(rep))
	c, ok := repo.get("a@x.io")
	require.True(t, ok)
	assert.Equal(t, "Y", c.Name)
}

func TestIngestUpload_LinesStrictlyIncrease(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{})

	rep := ingest(t, svc, "name,email\n\nAnn,a@x.io\n\"Multi\nLine\",m@x.io\n,,\nBob,b@x.io,extra\nCid,c@x.io\n")

	require.Len(t, rep.Rows, 4)
	for i := 1; i < len(rep.Rows); i++ {
		assert.Less(t, rep.Rows[i-1].Line, rep.Rows[i].Line)
	}
	assert.Equal(t, []int{3, 4, 7, 8}, []int{rep.Rows[0].Line, rep.Rows[1].Line, rep.Rows[2].Line, rep.Rows[3].Line})
}

func TestIngestUpload_ReportCap(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{MaxReportRows: 2})

	var b strings.Builder
	b.WriteString("name,email\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "User%d,u%d@x.io\n", i, i)
	}

	rep := ingest(t, svc, b.String())
	assert.Len(t, rep.Rows, 2)
	assert.Equal(t, 3, rep.OmittedRows)
	assert.Equal(t, 5, rep.Counts.Created)
	assert.Equal(t, 5, rep.TotalRows)
}

func TestIngestUpload_StructuralHeaderFailure(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{})

	rep := ingest(t, svc, "name,phone\nAnn,5551234567\n")

	assert.Equal(t, StatusFailed, rep.Status)
	assert.Contains(t, rep.Reason, "missing required columns: email")
	assert.Equal(t, 0, rep.TotalRows)
}

func TestIngestUpload_TerminalReportIsStored(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{})

	rep := ingest(t, svc, "name,email\nAnn,a@x.io\n")

	snap, stored, err := svc.JobStatus(context.Background(), rep.JobID)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, rep, stored)
}

// ctxRepo delays lookups until wait elapses or ctx ends, like a real
// database round trip. onFind runs at the start of every lookup.
type ctxRepo struct {
	*fakeRepo
	wait   time.Duration
	onFind func()
}

func (r *ctxRepo) FindByNaturalKey(ctx context.Context, key string) (Customer, error) {
	if r.onFind != nil {
		r.onFind()
	}
	select {
	case <-time.After(r.wait):
	case <-ctx.Done():
		return Customer{}, ctx.Err()
	}
	return r.fakeRepo.FindByNaturalKey(ctx, key)
}

func TestIngestUpload_Timeout(t *testing.T) {
	repo := &ctxRepo{fakeRepo: newFakeRepo(), wait: 500 * time.Millisecond}
	svc := newTestService(repo, ServiceConfig{Timeout: 20 * time.Millisecond})

	rep := ingest(t, svc, "name,email\nAnn,a@x.io\n")

	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, "upload timed out after 20ms", rep.Reason)
	assert.Equal(t, Counts{}, rep.Counts)
	assert.Empty(t, rep.Rows)

	_, ok := repo.get("a@x.io")
	assert.False(t, ok)
}

func TestIngestUpload_CancelDuringLastRow(t *testing.T) {
	repo := &ctxRepo{fakeRepo: newFakeRepo(), wait: 500 * time.Millisecond}
	svc := newTestService(repo, ServiceConfig{})

	var once sync.Once
	repo.onFind = func() {
		once.Do(func() {
			svc.mu.RLock()
			defer svc.mu.RUnlock()
			for _, job := range svc.jobs {
				job.cancel()
			}
		})
	}

	rep := ingest(t, svc, "name,email\nAnn,a@x.io\n")

	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, "upload cancelled", rep.Reason)
	assert.Equal(t, 0, rep.Counts.Failed)
}

func TestIngestUpload_CallerGoneAfterLastRow(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	r := &cancelAtEOF{Reader: strings.NewReader("name,email\nAnn,a@x.io\n"), cancel: cancel}

	rep, err := svc.IngestUpload(ctx, r, UploadOptions{FileName: "c.csv"})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, "upload cancelled", rep.Reason)
	assert.Equal(t, Counts{Created: 1}, rep.Counts)
}

// cancelAtEOF cancels the job once its input is exhausted, after the last
// row has been handed out.
type cancelAtEOF struct {
	io.Reader
	cancel func()
}

func (r *cancelAtEOF) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if err == io.EOF {
		r.cancel()
	}
	return n, err
}

func TestStartUpload_Cancel(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	pr, pw := io.Pipe()

	id, err := svc.StartUpload(context.Background(), pr, UploadOptions{FileName: "c.csv"})
	require.NoError(t, err)

	_, err = io.WriteString(pw, "name,email\nAnn,a@x.io\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _, err := svc.JobStatus(context.Background(), id)
		return err == nil && snap != nil && snap.TotalRows == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.CancelUpload(id))

	_, _ = io.WriteString(pw, "Bob,b@x.io\n")
	pw.Close()

	var rep *OutcomeReport
	require.Eventually(t, func() bool {
		_, r, err := svc.JobStatus(context.Background(), id)
		rep = r
		return err == nil && r != nil
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, "upload cancelled", rep.Reason)
	assert.Equal(t, Counts{Created: 1}, rep.Counts)

	_, ok := repo.get("b@x.io")
	assert.False(t, ok)

	assert.ErrorIs(t, svc.CancelUpload(id), ErrJobNotFound)
}

func TestIngestUpload_TooManyUploads(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{MaxConcurrent: 1, MaxWait: 20 * time.Millisecond})
	pr, pw := io.Pipe()
	defer pw.Close()

	_, err := svc.StartUpload(context.Background(), pr, UploadOptions{})
	require.NoError(t, err)

	_, err = svc.IngestUpload(context.Background(), strings.NewReader("name,email\n"), UploadOptions{})
	assert.True(t, errors.Is(err, ErrTooManyUploads))
}

func TestWaitForUploads(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{})
	pr, pw := io.Pipe()

	_, err := svc.StartUpload(context.Background(), pr, UploadOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.WaitForUploads(ctx), context.DeadlineExceeded)

	_, _ = io.WriteString(pw, "name,email\nAnn,a@x.io\n")
	pw.Close()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, svc.WaitForUploads(ctx2))
}

func TestJobStatus_Unknown(t *testing.T) {
	svc := newTestService(newFakeRepo(), ServiceConfig{})

	_, _, err := svc.JobStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestUploadJob_SingleTransition(t *testing.T) {
	job := newUploadJob(UploadOptions{FileName: "x.xlsx"})
	assert.Equal(t, FormatXLSX, job.Format)

	rep := &OutcomeReport{JobID: job.ID, Status: StatusCompleted}
	assert.False(t, job.finish(StatusRunning, rep))
	assert.True(t, job.finish(StatusCompleted, rep))
	assert.False(t, job.finish(StatusFailed, rep))
	assert.Equal(t, StatusCompleted, job.Status())

	select {
	case <-job.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestUploadJob_ProgressSnapshot(t *testing.T) {
	job := newUploadJob(UploadOptions{FileName: "c.csv"})
	r := NewCountingReader(strings.NewReader("name,email\n"), 22)
	_, err := io.ReadAll(r)
	require.NoError(t, err)

	job.progress(1, Counts{Created: 1}, r)

	snap := job.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, int64(11), snap.BytesRead)
	assert.Equal(t, 50, snap.Percent)
	assert.Equal(t, 1, snap.TotalRows)
	assert.Equal(t, Counts{Created: 1}, snap.Counts)
}
