package ingest

// QueueBatches is the task queue carrying batch ingestion tasks.
const QueueBatches = "ingest-batches"

// DefaultBatchSize is the number of files per batch task.
const DefaultBatchSize = 100

// BatchTask is the payload of one enqueued batch.
type BatchTask struct {
	ParentJobID string   `json:"parent_job_id"`
	BatchIndex  int      `json:"batch_index"`
	Source      string   `json:"source"`
	SourceRoot  string   `json:"source_root"`
	Files       []string `json:"files"`
}
