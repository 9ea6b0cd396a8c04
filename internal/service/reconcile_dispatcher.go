package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/pkg/jobs"
	"github.com/noah-isme/batch-enrollment-api/pkg/middleware/requestid"
)

// ReconcileJobType tags section reconciliation jobs on the background queue.
const ReconcileJobType = "section.reconcile"

// ReconcileDispatcher schedules a section rebuild after a write. Dispatch never
// fails the caller; scheduling problems are only logged.
type ReconcileDispatcher interface {
	Dispatch(ctx context.Context, section string)
}

type sectionReconciler interface {
	Reconcile(ctx context.Context, name string) ([]models.ViewRecord, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ReconcileJobHandler adapts the reconciler to the job queue.
func ReconcileJobHandler(reconciler sectionReconciler) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		section, ok := job.Payload.(string)
		if !ok || section == "" {
			return fmt.Errorf("reconcile job %s: unexpected payload %T", job.ID, job.Payload)
		}
		_, err := reconciler.Reconcile(ctx, section)
		return err
	}
}

// QueueReconcileDispatcher pushes reconcile jobs onto the in-process queue.
// Jobs for the same section coalesce while one is still waiting.
type QueueReconcileDispatcher struct {
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewQueueReconcileDispatcher constructs a dispatcher backed by queue.
func NewQueueReconcileDispatcher(queue jobEnqueuer, logger *zap.Logger) *QueueReconcileDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueReconcileDispatcher{queue: queue, logger: logger}
}

// Dispatch enqueues a rebuild of section.
func (d *QueueReconcileDispatcher) Dispatch(ctx context.Context, section string) {
	if d == nil || d.queue == nil {
		return
	}
	job := jobs.Job{Key: "section:" + section, Type: ReconcileJobType, Payload: section}
	if err := d.queue.Enqueue(job); err != nil {
		d.logger.Warn("reconcile dispatch failed",
			zap.String("section", section),
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.Error(err))
	}
}
