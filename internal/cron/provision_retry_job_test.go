package cron

import (
	"context"
	"errors"
	"testing"
)

type stubRetrier struct {
	completed int
	err       error
	lastLimit int
}

func (s *stubRetrier) ProcessPendingTasks(ctx context.Context, limit int) (int, error) {
	s.lastLimit = limit
	return s.completed, s.err
}

func TestProvisionRetryJobUsesDefaultBatch(t *testing.T) {
	retrier := &stubRetrier{completed: 2}
	job, err := NewProvisionRetryJob(ProvisionRetryJobParams{Logger: testLogger(), Subscriptions: retrier})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if job.Name() != "provision-retry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if retrier.lastLimit != provisionRetryBatchSize {
		t.Fatalf("expected default batch %d, got %d", provisionRetryBatchSize, retrier.lastLimit)
	}
}

func TestProvisionRetryJobPropagatesError(t *testing.T) {
	retrier := &stubRetrier{err: errors.New("outbox unavailable")}
	job, err := NewProvisionRetryJob(ProvisionRetryJobParams{Logger: testLogger(), Subscriptions: retrier, BatchSize: 5})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error from failing retrier")
	}
	if retrier.lastLimit != 5 {
		t.Fatalf("expected configured batch 5, got %d", retrier.lastLimit)
	}
}
