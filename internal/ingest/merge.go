package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/vectorstore"
	"github.com/corpusd/corpusd/pkg/types"
)

// Merger unions a parent job's batch collections into the canonical
// collection and finalizes the parent.
type Merger struct {
	jobs    *jobstore.Store
	vectors vectorstore.Store

	onFinalize []func(ctx context.Context, parent *types.Job)
}

// NewMerger creates a merge coordinator.
func NewMerger(jobs *jobstore.Store, vectors vectorstore.Store) *Merger {
	return &Merger{jobs: jobs, vectors: vectors}
}

// OnFinalize registers a callback invoked once per parent job, right
// after it reaches a terminal state. Register during wiring, before
// any worker runs.
func (m *Merger) OnFinalize(fn func(ctx context.Context, parent *types.Job)) {
	m.onFinalize = append(m.onFinalize, fn)
}

// Finalize merges the batch collections of a terminal parent run into
// the canonical collection, sets the parent's summed stats and terminal
// status, and deletes the batch collections.
//
// The union is a pure copy over immutable batch collections, so a failed
// merge is retryable from scratch: the parent stays RUNNING with its
// error recorded and the batch collections are kept.
//
// Calling Finalize on an already-terminal parent only re-runs cleanup.
// That also covers operator-failed parents, whose in-flight results are
// discarded here.
func (m *Merger) Finalize(ctx context.Context, parentID string) (*types.JobStats, error) {
	parent, err := m.jobs.GetJob(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent() {
		return nil, fmt.Errorf("%w: job %s is not a parent job", types.ErrMerge, parentID)
	}

	if parent.Status.Terminal() {
		m.cleanupBatchCollections(ctx, parentID)
		return &parent.Stats, nil
	}

	subs, err := m.jobs.ListSubJobs(ctx, parentID)
	if err != nil {
		return nil, err
	}

	var (
		stats     types.JobStats
		anyFailed bool
	)
	completed := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if !sub.Status.Terminal() {
			return nil, fmt.Errorf("%w: sub-job %s is still %s", types.ErrMerge, sub.ID, sub.Status)
		}
		stats.Add(sub.Stats)
		switch sub.Status {
		case types.JobCompleted:
			completed[sub.CollectionName] = true
		case types.JobFailed:
			anyFailed = true
		}
	}

	if err := m.jobs.UpdateStats(ctx, parentID, stats); err != nil {
		return nil, err
	}

	if err := m.union(ctx, parentID, parent.CollectionName, completed); err != nil {
		// Parent stays RUNNING; batch collections are kept for retry
		if recErr := m.jobs.RecordError(ctx, parentID, err.Error()); recErr != nil {
			log.Printf("ingest: failed to record merge error on %s: %v", parentID, recErr)
		}
		return nil, err
	}

	status := types.JobCompleted
	var jobErr string
	if anyFailed {
		status = types.JobFailed
		jobErr = fmt.Sprintf("%d of %d batches failed", countFailed(subs), len(subs))
	}
	if err := m.jobs.UpdateStatus(ctx, parentID, status, jobErr); err != nil {
		return nil, err
	}

	// Cleanup is unconditional once the union is durable
	m.cleanupBatchCollections(ctx, parentID)

	parent.Status = status
	parent.Stats = stats
	parent.Error = jobErr
	for _, fn := range m.onFinalize {
		fn(ctx, parent)
	}
	return &stats, nil
}

// union copies every batch collection of a completed sub-job into the
// canonical collection. Batch partitions are disjoint by file, so chunk
// IDs cannot collide across batches.
func (m *Merger) union(ctx context.Context, parentID, canonical string, completed map[string]bool) error {
	collections, err := m.vectors.ListCollections(ctx, types.BatchCollectionPrefix(parentID))
	if err != nil {
		return fmt.Errorf("%w: list batch collections: %v", types.ErrMerge, err)
	}

	for _, col := range collections {
		if !completed[col] {
			// Failed batches contribute nothing
			continue
		}
		if err := m.vectors.CopyCollection(ctx, col, canonical); err != nil {
			return fmt.Errorf("%w: copy %s into %s: %v", types.ErrMerge, col, canonical, err)
		}
	}
	return nil
}

func (m *Merger) cleanupBatchCollections(ctx context.Context, parentID string) {
	collections, err := m.vectors.ListCollections(ctx, types.BatchCollectionPrefix(parentID))
	if err != nil {
		log.Printf("ingest: failed to list batch collections of %s: %v", parentID, err)
		return
	}
	for _, col := range collections {
		if err := m.vectors.DeleteCollection(ctx, col); err != nil {
			log.Printf("ingest: failed to delete batch collection %s: %v", col, err)
		}
	}
}

func countFailed(subs []*types.Job) int {
	n := 0
	for _, sub := range subs {
		if sub.Status == types.JobFailed {
			n++
		}
	}
	return n
}
