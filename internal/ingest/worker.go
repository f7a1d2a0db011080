package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/corpusd/corpusd/internal/chunker"
	"github.com/corpusd/corpusd/internal/embedder"
	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/parser"
	"github.com/corpusd/corpusd/internal/taskqueue"
	"github.com/corpusd/corpusd/internal/vectorstore"
	"github.com/corpusd/corpusd/pkg/types"
)

// Worker consumes batch tasks: parse, chunk, embed, and write into the
// batch's private collection.
type Worker struct {
	jobs     *jobstore.Store
	vectors  vectorstore.Store
	parsers  *parser.Registry
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	merger   *Merger
}

// NewWorker wires a batch worker from its collaborators.
func NewWorker(jobs *jobstore.Store, vectors vectorstore.Store, parsers *parser.Registry,
	ch *chunker.Chunker, emb embedder.Embedder, merger *Merger) *Worker {
	return &Worker{
		jobs:     jobs,
		vectors:  vectors,
		parsers:  parsers,
		chunker:  ch,
		embedder: emb,
		merger:   merger,
	}
}

// Handle processes one task delivery. Returning an error lets the queue
// redeliver; chunk upserts and status re-marks make repetition safe.
func (w *Worker) Handle(ctx context.Context, task *taskqueue.Task) error {
	var bt BatchTask
	if err := json.Unmarshal(task.Payload, &bt); err != nil {
		// Malformed payloads can never succeed; drop without retry
		log.Printf("ingest: dropping malformed batch task %d: %v", task.ID, err)
		return nil
	}

	subJobID := types.SubJobID(bt.ParentJobID, bt.BatchIndex)
	sub, err := w.jobs.GetJob(ctx, subJobID)
	if err != nil {
		return fmt.Errorf("batch task for unknown sub-job %s: %w", subJobID, err)
	}
	if sub.Status.Terminal() {
		// Redelivery after completion; nothing left to do
		return nil
	}

	// No-op on a second delivery that already marked it RUNNING
	if err := w.jobs.UpdateStatus(ctx, subJobID, types.JobRunning, ""); err != nil {
		return err
	}

	stats := types.JobStats{TotalFiles: len(bt.Files)}
	var (
		chunks      []types.Chunk
		failedFiles []string
	)

	for _, file := range bt.Files {
		fileChunks, err := w.processFile(bt.SourceRoot, file, bt.Source)
		if err != nil {
			// Per-file failure: record and continue with the rest
			log.Printf("ingest: %s/%s: %v", bt.Source, file, err)
			failedFiles = append(failedFiles, file)
			stats.FailedFiles++
			continue
		}
		chunks = append(chunks, fileChunks...)
		stats.ProcessedFiles++
		stats.TotalChunks += len(fileChunks)
	}

	if len(chunks) > 0 {
		if err := w.embedChunks(ctx, chunks); err != nil {
			// Batch-level failure: redeliver the whole task
			return err
		}

		collection := types.BatchCollection(bt.ParentJobID, bt.BatchIndex)
		if err := w.vectors.Add(ctx, collection, chunks); err != nil {
			return fmt.Errorf("failed to write batch collection %s: %w", collection, err)
		}
	}

	status := types.JobCompleted
	var jobErr string
	if stats.TotalFiles > 0 && stats.ProcessedFiles == 0 {
		status = types.JobFailed
		jobErr = fmt.Sprintf("all %d files failed", stats.TotalFiles)
	} else if len(failedFiles) > 0 {
		jobErr = fmt.Sprintf("%d of %d files failed: %v", stats.FailedFiles, stats.TotalFiles, failedFiles)
	}

	last, err := w.jobs.CompleteSubJob(ctx, subJobID, status, stats, jobErr)
	if err != nil {
		return err
	}
	if last {
		// Merge failure is recorded on the parent and retried via the
		// merge endpoint, not by redelivering this batch.
		if _, err := w.merger.Finalize(ctx, bt.ParentJobID); err != nil {
			log.Printf("ingest: merge for parent %s failed: %v", bt.ParentJobID, err)
		}
	}
	return nil
}

// HandleDead finalizes a batch whose task exhausted its delivery
// attempts. Without it the sub-job would stay RUNNING forever, the
// parent could never reach the terminal count, and the source's run
// lock would never release.
func (w *Worker) HandleDead(ctx context.Context, task *taskqueue.Task, cause error) {
	var bt BatchTask
	if err := json.Unmarshal(task.Payload, &bt); err != nil {
		log.Printf("ingest: dropping malformed dead batch task %d: %v", task.ID, err)
		return
	}

	subJobID := types.SubJobID(bt.ParentJobID, bt.BatchIndex)
	sub, err := w.jobs.GetJob(ctx, subJobID)
	if err != nil {
		log.Printf("ingest: dead batch task for unknown sub-job %s: %v", subJobID, err)
		return
	}
	if sub.Status.Terminal() {
		return
	}

	stats := types.JobStats{TotalFiles: len(bt.Files), FailedFiles: len(bt.Files)}
	msg := fmt.Sprintf("delivery attempts exhausted: %v", cause)
	last, err := w.jobs.CompleteSubJob(ctx, subJobID, types.JobFailed, stats, msg)
	if err != nil {
		log.Printf("ingest: failed to mark sub-job %s FAILED: %v", subJobID, err)
		return
	}
	if last {
		if _, err := w.merger.Finalize(ctx, bt.ParentJobID); err != nil {
			log.Printf("ingest: merge after dead batch: %v", err)
		}
	}
}

// processFile reads, parses, and chunks one file.
func (w *Worker) processFile(root, file, source string) ([]types.Chunk, error) {
	data, err := os.ReadFile(filepath.Join(root, file))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
	}

	doc, err := w.parsers.Parse(file, data)
	if err != nil {
		return nil, err
	}

	return w.chunker.Chunk(doc, source), nil
}

// embedChunks fills chunk embeddings, batching requests to the provider.
func (w *Worker) embedChunks(ctx context.Context, chunks []types.Chunk) error {
	for start := 0; start < len(chunks); start += embedder.DefaultBatchSize {
		end := start + embedder.DefaultBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Content
		}

		resp, err := w.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrEmbedding, err)
		}
		if len(resp.Embeddings) != len(texts) {
			return fmt.Errorf("%w: got %d embeddings for %d texts", types.ErrEmbedding, len(resp.Embeddings), len(texts))
		}

		for i, emb := range resp.Embeddings {
			chunks[start+i].Embedding = emb.Vector
		}
	}
	return nil
}
