package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/parser"
	"github.com/corpusd/corpusd/internal/syncdetect"
	"github.com/corpusd/corpusd/internal/vectorstore"
	"github.com/corpusd/corpusd/pkg/types"
)

// Source names a corpus and its filesystem root.
type Source struct {
	Name string
	Root string
}

// Pipeline runs one ingestion cycle per source: detect changes since the
// last run and dispatch the added and modified files as a batched parent
// job. Deletions and sync state are committed only after the parent
// completes, via the merger's finalize hook — a failed run leaves both
// the canonical collection and the last processed commit untouched, so
// the next run retries the same change set.
type Pipeline struct {
	jobs       *jobstore.Store
	vectors    vectorstore.Store
	dispatcher *Dispatcher
	parsers    *parser.Registry
	sources    map[string]Source
	locks      map[string]*runLock

	mu      sync.Mutex
	pending map[string]pendingState // source → state to commit on completion
}

type pendingState struct {
	commit  string
	files   []string
	deleted []string
}

// NewPipeline wires the ingestion orchestrator and hooks it into the
// merger so sync state advances when parent jobs finish.
func NewPipeline(jobs *jobstore.Store, vectors vectorstore.Store, dispatcher *Dispatcher,
	parsers *parser.Registry, merger *Merger, sources []Source) *Pipeline {
	p := &Pipeline{
		jobs:       jobs,
		vectors:    vectors,
		dispatcher: dispatcher,
		parsers:    parsers,
		sources:    make(map[string]Source, len(sources)),
		locks:      make(map[string]*runLock, len(sources)),
		pending:    make(map[string]pendingState),
	}
	for _, src := range sources {
		p.sources[src.Name] = src
		p.locks[src.Name] = &runLock{}
	}
	merger.OnFinalize(p.onJobFinalized)
	return p
}

// SourceRoot returns the filesystem root of a configured source.
func (p *Pipeline) SourceRoot(name string) (string, bool) {
	src, ok := p.sources[name]
	return src.Root, ok
}

// Sources returns the configured source names, sorted.
func (p *Pipeline) Sources() []string {
	names := make([]string, 0, len(p.sources))
	for name := range p.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ingest plans and dispatches one ingestion run for the named source.
// Returns the parent job, which may already be COMPLETED when nothing
// changed since the last run. At most one run per source may be in
// flight; a second caller gets ErrAlreadyExists.
func (p *Pipeline) Ingest(ctx context.Context, source string) (*types.Job, error) {
	src, ok := p.sources[source]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", source, types.ErrNotFound)
	}

	lock := p.locks[source]
	if !lock.TryAcquire() {
		return nil, fmt.Errorf("source %s: ingestion run in flight: %w", source, types.ErrAlreadyExists)
	}

	state, err := p.jobs.GetPipelineState(ctx, source)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		lock.Release()
		return nil, err
	}
	lastCommit := ""
	var priorFiles []string
	if state != nil {
		lastCommit = state.LastCommit
		priorFiles = state.ProcessedFiles
	}

	plan, err := p.plan(ctx, src, lastCommit, priorFiles)
	if err != nil {
		lock.Release()
		return nil, err
	}

	files := append(append([]string(nil), plan.Added...), plan.Modified...)
	sort.Strings(files)

	// Registered before dispatch: the merge can fire from a worker (or
	// from the dispatcher's own enqueue-failure path) at any point after
	// the first task exists. At most one run per source is in flight.
	// Deletions ride along and are applied only after the run completes,
	// so the canonical collection stays untouched by failed runs.
	p.mu.Lock()
	p.pending[source] = pendingState{commit: plan.CurrentCommit, files: files, deleted: plan.Deleted}
	p.mu.Unlock()

	parent, err := p.dispatcher.Dispatch(ctx, source, src.Root, files)
	if err != nil {
		if _, ok := p.takePending(source); ok {
			lock.Release()
		}
		return nil, err
	}

	if parent.Status.Terminal() {
		// Either nothing was dispatched, or the run already finalized
		// during dispatch; the finalize hook owns the latter case.
		if pend, ok := p.takePending(source); ok {
			if parent.Status == types.JobCompleted {
				p.commitRun(ctx, source, pend, parent.Stats.TotalChunks)
			}
			lock.Release()
		}
	}
	return parent, nil
}

// takePending removes the source's pending entry, reporting whether this
// caller won it. Exactly one winner exists per run, and it releases the
// run lock.
func (p *Pipeline) takePending(source string) (pendingState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pend, ok := p.pending[source]
	delete(p.pending, source)
	return pend, ok
}

// plan computes the change set for one source. Git-tracked roots diff
// against the last processed commit; plain directories are walked and
// fully re-ingested every run. Unusable git history degrades to a full
// resync rather than skipping files.
func (p *Pipeline) plan(ctx context.Context, src Source, lastCommit string, priorFiles []string) (*syncdetect.Plan, error) {
	det := syncdetect.NewDetector(src.Root)
	det.Filter = p.parsers.Supports
	if !det.IsGitRepo(ctx) {
		return p.walkPlan(src, priorFiles)
	}

	plan, err := det.Detect(ctx, lastCommit)
	if errors.Is(err, types.ErrFullResyncRequired) {
		log.Printf("ingest: %s: %v; falling back to full resync", src.Name, err)
		plan, err = det.Detect(ctx, "")
	}
	if err != nil {
		return nil, err
	}

	if plan.FullSync {
		// A full resync only reports additions; anything we processed
		// before that no longer exists must still be dropped.
		plan.Deleted = append(plan.Deleted, missingFrom(priorFiles, plan.Added)...)
	}
	return plan, nil
}

// walkPlan lists every supported file under a non-git root.
func (p *Pipeline) walkPlan(src Source, priorFiles []string) (*syncdetect.Plan, error) {
	var files []string
	err := filepath.WalkDir(src.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if p.parsers.Supports(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", src.Root, err)
	}
	sort.Strings(files)

	return &syncdetect.Plan{
		FullSync: true,
		Added:    files,
		Deleted:  missingFrom(priorFiles, files),
	}, nil
}

// onJobFinalized commits sync state for a completed run. Failed runs
// keep the old commit so the next run retries the same change set.
func (p *Pipeline) onJobFinalized(ctx context.Context, parent *types.Job) {
	pend, ok := p.takePending(parent.Source)
	if !ok {
		// A re-finalized run from an earlier process; no state to commit
		return
	}
	defer p.locks[parent.Source].Release()

	if parent.Status != types.JobCompleted {
		log.Printf("ingest: %s run %s finished %s; sync state not advanced", parent.Source, parent.ID, parent.Status)
		return
	}

	p.commitRun(ctx, parent.Source, pend, parent.Stats.TotalChunks)
}

// commitRun applies a completed run's deletions to the canonical
// collection and advances the sync state. A deletion failure leaves the
// old state in place, so the next run re-plans the same deletions.
func (p *Pipeline) commitRun(ctx context.Context, source string, pend pendingState, totalChunks int) {
	for _, path := range pend.deleted {
		if err := p.vectors.DeleteByPath(ctx, source, path); err != nil {
			log.Printf("ingest: failed to drop deleted file %s/%s: %v; sync state not advanced", source, path, err)
			return
		}
	}
	p.putState(ctx, source, pend.commit, pend.files, totalChunks)
}

func (p *Pipeline) putState(ctx context.Context, source, commit string, files []string, totalChunks int) {
	state := &types.PipelineState{
		Source:         source,
		LastCommit:     commit,
		ProcessedFiles: files,
		TotalChunks:    totalChunks,
		LastRun:        time.Now(),
	}
	if err := p.jobs.PutPipelineState(ctx, state); err != nil {
		log.Printf("ingest: failed to record sync state for %s: %v", source, err)
	}
}

// missingFrom returns the prior entries absent from current.
func missingFrom(prior, current []string) []string {
	if len(prior) == 0 {
		return nil
	}
	have := make(map[string]bool, len(current))
	for _, f := range current {
		have[f] = true
	}
	var gone []string
	for _, f := range prior {
		if !have[f] {
			gone = append(gone, f)
		}
	}
	return gone
}
