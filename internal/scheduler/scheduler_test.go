package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/arcresearch/factorlab/pkg/logger"
)

// stubJob fails its first N runs, then succeeds.
type stubJob struct {
	name     string
	schedule string
	failures int
	calls    int
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }

func (j *stubJob) Run(ctx context.Context) error {
	j.calls++
	if j.calls <= j.failures {
		return errors.New("transient failure")
	}
	return nil
}

func testScheduler() *Scheduler {
	s := New(logger.Nop())
	s.retryDelay = time.Millisecond
	return s
}

func TestAddJob(t *testing.T) {
	s := testScheduler()

	if err := s.AddJob(&stubJob{name: "scoring", schedule: "@daily"}); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	jobs := s.GetAllJobs()
	if len(jobs) != 1 || jobs[0] != "scoring" {
		t.Errorf("GetAllJobs() = %v, want [scoring]", jobs)
	}
}

func TestAddJobRejectsDuplicate(t *testing.T) {
	s := testScheduler()

	if err := s.AddJob(&stubJob{name: "scoring", schedule: "@daily"}); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.AddJob(&stubJob{name: "scoring", schedule: "@hourly"}); err == nil {
		t.Error("expected error adding duplicate job name")
	}
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := testScheduler()

	if err := s.AddJob(&stubJob{name: "broken", schedule: "every so often"}); err == nil {
		t.Error("expected error for unparseable schedule")
	}
}

func TestRunJobUnknown(t *testing.T) {
	s := testScheduler()

	if err := s.RunJob("missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestRunJobRetriesUntilSuccess(t *testing.T) {
	s := testScheduler()
	job := &stubJob{name: "flaky", schedule: "@daily", failures: 2}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	s.runJob(job)

	if job.calls != 3 {
		t.Errorf("calls = %d, want 3 (two failures then success)", job.calls)
	}

	history, err := s.GetJobHistory("flaky")
	if err != nil {
		t.Fatalf("GetJobHistory() error = %v", err)
	}
	if len(history.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(history.Results))
	}
	if !history.Results[0].Success {
		t.Errorf("expected success after retries, got error %q", history.Results[0].Error)
	}
}

func TestRunJobRecordsFailure(t *testing.T) {
	s := testScheduler()
	job := &stubJob{name: "doomed", schedule: "@daily", failures: 100}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	s.runJob(job)

	// Initial attempt plus maxRetries
	if job.calls != s.maxRetries+1 {
		t.Errorf("calls = %d, want %d", job.calls, s.maxRetries+1)
	}

	history, _ := s.GetJobHistory("doomed")
	if len(history.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(history.Results))
	}
	result := history.Results[0]
	if result.Success {
		t.Error("expected recorded failure")
	}
	if result.Error == "" {
		t.Error("expected error message in result")
	}
}

func TestGetJobStats(t *testing.T) {
	s := testScheduler()
	good := &stubJob{name: "good", schedule: "@daily"}
	bad := &stubJob{name: "bad", schedule: "@daily", failures: 100}
	if err := s.AddJob(good); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.AddJob(bad); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	s.runJob(good)
	s.runJob(good)
	s.runJob(bad)

	stats := s.GetJobStats()

	g := stats["good"]
	if g.TotalRuns != 2 || g.SuccessCount != 2 || g.FailureCount != 0 {
		t.Errorf("good stats = %+v", g)
	}
	if g.SuccessRate != 1.0 {
		t.Errorf("good SuccessRate = %v, want 1.0", g.SuccessRate)
	}
	if g.LastSuccess == nil || g.LastRun == nil {
		t.Error("good job should have LastRun and LastSuccess")
	}

	b := stats["bad"]
	if b.TotalRuns != 1 || b.FailureCount != 1 {
		t.Errorf("bad stats = %+v", b)
	}
	if b.LastFailure == nil {
		t.Error("bad job should have LastFailure")
	}
}

func TestJobHistoryCapped(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 105; i++ {
		h.AddResult(JobResult{JobName: fmt.Sprintf("r%d", i), Success: i%2 == 0})
	}

	if len(h.Results) != 100 {
		t.Errorf("len(Results) = %d, want 100", len(h.Results))
	}
	// Oldest entries are dropped first
	if h.Results[0].JobName != "r5" {
		t.Errorf("first retained = %q, want r5", h.Results[0].JobName)
	}

	latest := h.GetLatestResults(3)
	if len(latest) != 3 || latest[2].JobName != "r104" {
		t.Errorf("GetLatestResults(3) = %v", latest)
	}
}

func TestJobHistorySuccessRate(t *testing.T) {
	h := &JobHistory{}
	if h.GetSuccessRate() != 0.0 {
		t.Errorf("empty history rate = %v, want 0", h.GetSuccessRate())
	}

	h.AddResult(JobResult{Success: true})
	h.AddResult(JobResult{Success: true})
	h.AddResult(JobResult{Success: false})
	h.AddResult(JobResult{Success: true})

	if rate := h.GetSuccessRate(); rate != 0.75 {
		t.Errorf("GetSuccessRate() = %v, want 0.75", rate)
	}
}
