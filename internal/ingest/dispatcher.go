package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/taskqueue"
	"github.com/corpusd/corpusd/pkg/types"
)

// Dispatcher partitions file lists into batches and fans them out over
// the task queue.
type Dispatcher struct {
	jobs      *jobstore.Store
	broker    taskqueue.Broker
	merger    *Merger
	batchSize int
}

// NewDispatcher creates a dispatcher. A non-positive batchSize falls
// back to DefaultBatchSize.
func NewDispatcher(jobs *jobstore.Store, broker taskqueue.Broker, merger *Merger, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{jobs: jobs, broker: broker, merger: merger, batchSize: batchSize}
}

// Dispatch creates a parent job with ceil(len(files)/batchSize) sub-jobs
// and enqueues one task per batch. Every parent gets a fresh UUID, so
// repeated dispatches of the same source are distinct runs.
//
// Enqueue failures do not stop the fan-out: the affected sub-job is
// marked FAILED immediately so the parent can still reach a terminal
// aggregate state, and the remaining batches are enqueued anyway.
func (d *Dispatcher) Dispatch(ctx context.Context, source, sourceRoot string, files []string) (*types.Job, error) {
	totalBatches := (len(files) + d.batchSize - 1) / d.batchSize

	parent := &types.Job{
		ID:             uuid.NewString(),
		Source:         source,
		CollectionName: source,
		Status:         types.JobPending,
		TotalBatches:   totalBatches,
		Stats:          types.JobStats{TotalFiles: len(files)},
	}
	if err := d.jobs.CreateJob(ctx, parent); err != nil {
		return nil, fmt.Errorf("failed to create parent job: %w", err)
	}

	if len(files) == 0 {
		// Nothing to do; short-circuit to COMPLETED
		if err := d.jobs.UpdateStatus(ctx, parent.ID, types.JobCompleted, ""); err != nil {
			return nil, err
		}
		parent.Status = types.JobCompleted
		return parent, nil
	}

	if err := d.jobs.UpdateStatus(ctx, parent.ID, types.JobRunning, ""); err != nil {
		return nil, err
	}
	parent.Status = types.JobRunning

	for idx := 0; idx < totalBatches; idx++ {
		start := idx * d.batchSize
		end := start + d.batchSize
		if end > len(files) {
			end = len(files)
		}
		batchFiles := files[start:end]

		sub := &types.Job{
			ID:             types.SubJobID(parent.ID, idx),
			ParentID:       parent.ID,
			Source:         source,
			CollectionName: types.BatchCollection(parent.ID, idx),
			Status:         types.JobPending,
			BatchIndex:     idx,
			Stats:          types.JobStats{TotalFiles: len(batchFiles)},
		}
		if err := d.jobs.CreateJob(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to create sub-job %s: %w", sub.ID, err)
		}

		if err := d.enqueueBatch(ctx, parent.ID, idx, source, sourceRoot, batchFiles); err != nil {
			d.failSubJob(ctx, parent.ID, sub.ID, len(batchFiles), err)
		}
	}

	return parent, nil
}

func (d *Dispatcher) enqueueBatch(ctx context.Context, parentID string, idx int, source, sourceRoot string, files []string) error {
	payload, err := json.Marshal(BatchTask{
		ParentJobID: parentID,
		BatchIndex:  idx,
		Source:      source,
		SourceRoot:  sourceRoot,
		Files:       files,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal batch %d: %v", types.ErrDispatch, idx, err)
	}

	if _, err := d.broker.Enqueue(ctx, QueueBatches, payload); err != nil {
		return fmt.Errorf("%w: batch %d: %v", types.ErrDispatch, idx, err)
	}
	return nil
}

// failSubJob marks a sub-job FAILED after an enqueue failure. If that
// happened to be the parent's last outstanding batch, the merge runs here
// because no worker will ever trigger it.
func (d *Dispatcher) failSubJob(ctx context.Context, parentID, subJobID string, fileCount int, cause error) {
	log.Printf("ingest: enqueue failed for %s: %v", subJobID, cause)

	stats := types.JobStats{TotalFiles: fileCount, FailedFiles: fileCount}
	last, err := d.jobs.CompleteSubJob(ctx, subJobID, types.JobFailed, stats, cause.Error())
	if err != nil {
		log.Printf("ingest: failed to mark sub-job %s FAILED: %v", subJobID, err)
		return
	}
	if last {
		if _, err := d.merger.Finalize(ctx, parentID); err != nil {
			log.Printf("ingest: merge after dispatch failure: %v", err)
		}
	}
}
