package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/PageImport/internal/logging"
	"github.com/JonMunkholm/PageImport/internal/pages"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned for unknown or expired run IDs.
var ErrRunNotFound = errors.New("import run not found")

// ServiceConfig tunes run scheduling.
type ServiceConfig struct {
	MaxConcurrent int
	MaxWaitTime   time.Duration
	// RunTimeout bounds a single run.
	RunTimeout time.Duration
	// ResultTTL is how long a finished run stays queryable.
	ResultTTL time.Duration
}

// Service runs imports in the background and tracks their progress.
type Service struct {
	importer *Importer
	store    pages.Store
	cfg      ServiceConfig
	limiter  *ImportLimiter
	scopes   *scopeLocks

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID       string
	FileName string
	Config   RunConfig
	Cancel   context.CancelFunc
	Done     chan struct{}

	mu        sync.Mutex
	progress  ImportProgress
	result    *RunResult
	listeners []chan ImportProgress
}

// ImportRequest describes one file to import.
type ImportRequest struct {
	FileName string
	// Source is read by the background run. If it is an io.Closer it is
	// closed when the run ends.
	Source io.Reader
	// Size is the source length in bytes, 0 if unknown.
	Size      int64
	Config    RunConfig
	Overrides map[int]string
}

// NewService builds a Service importing into store. files may be nil.
func NewService(store pages.Store, files FileAttacher, cfg ServiceConfig) *Service {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 15 * time.Minute
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 10 * time.Minute
	}
	return &Service{
		importer: NewImporter(store, files),
		store:    store,
		cfg:      cfg,
		limiter:  NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		scopes:   newScopeLocks(),
		runs:     make(map[string]*activeRun),
	}
}

// Importer exposes the synchronous importer, used by the CLI.
func (s *Service) Importer() *Importer {
	return s.importer
}

// StartImport validates req, waits for a run slot and starts the import in
// the background. The source must stay readable until the run finishes.
// Returns ErrTooManyImports when no slot frees up in time.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	if err := req.Config.Validate(); err != nil {
		return "", err
	}
	if _, ok := pages.GetTemplate(req.Config.Template); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, req.Config.Template)
	}
	if req.Source == nil {
		return "", fmt.Errorf("%w: no input", ErrSourceUnreadable)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithTimeout(logging.WithRunID(context.Background(), runID), s.cfg.RunTimeout)

	counter := NewCountingReader(req.Source, req.Size)
	run := &activeRun{
		ID:       runID,
		FileName: req.FileName,
		Config:   req.Config,
		Cancel:   cancel,
		Done:     make(chan struct{}),
		progress: ImportProgress{
			RunID:      runID,
			Template:   req.Config.Template,
			FileName:   req.FileName,
			Phase:      PhaseQueued,
			BytesTotal: req.Size,
		},
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	go func() {
		defer s.limiter.Release()
		defer cancel()
		if c, ok := req.Source.(io.Closer); ok {
			defer c.Close()
		}
		s.process(runCtx, run, counter, req.Overrides)
	}()

	return runID, nil
}

func (s *Service) process(ctx context.Context, run *activeRun, src *CountingReader, overrides map[int]string) {
	logger := logging.WithFields(ctx, "template", run.Config.Template, "file", run.FileName)
	start := time.Now()

	var (
		result *RunResult
		err    error
	)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic in import", "panic", p)
			err = fmt.Errorf("internal error: %v", p)
		}
		s.finish(run, result, err, time.Since(start))
	}()

	// Runs under the same parent are serialized so duplicate checks see
	// each other's writes.
	unlock, err := s.scopes.lock(ctx, strings.Trim(run.Config.ParentPath, "/"))
	if err != nil {
		return
	}
	defer unlock()

	run.update(func(p *ImportProgress) { p.Phase = PhaseBinding })

	result, err = s.importer.Run(ctx, src, run.Config, overrides, func(p ImportProgress) {
		run.update(func(cur *ImportProgress) {
			cur.Phase = PhaseImporting
			cur.Rows = p.Rows
			cur.Imported = p.Imported
			cur.Skipped = p.Skipped
			cur.Failed = p.Failed
			cur.BytesRead = src.BytesRead()
		})
	})
}

func (s *Service) finish(run *activeRun, result *RunResult, err error, elapsed time.Duration) {
	if result == nil {
		result = &RunResult{Template: run.Config.Template}
	}
	result.RunID = run.ID
	result.FileName = run.FileName
	if result.Duration == 0 {
		result.Duration = elapsed
	}

	phase := PhaseComplete
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		phase = PhaseCancelled
		result.Cancelled = true
		result.Error = FormatUserError(err)
	case err != nil:
		phase = PhaseFailed
		result.Error = FormatUserError(err)
	case result.Cancelled:
		phase = PhaseCancelled
	}

	run.mu.Lock()
	run.result = result
	run.progress.Phase = phase
	run.progress.Rows = result.Rows
	run.progress.Imported = result.Imported
	run.progress.Skipped = result.Skipped
	run.progress.Failed = result.Failed
	run.progress.Error = result.Error
	run.notifyLocked()
	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
	run.mu.Unlock()

	close(run.Done)
	recordRun(run.Config.Template, phase, elapsed)
	s.cleanup(run.ID, s.cfg.ResultTTL)

	logging.WithFields(context.Background(), "run_id", run.ID).Info("import run closed",
		"phase", phase, "imported", result.Imported, "failed", result.Failed)
}

// SubscribeProgress returns a channel of progress snapshots, closed when the
// run ends. Slow listeners miss intermediate updates.
func (s *Service) SubscribeProgress(runID string) (<-chan ImportProgress, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 16)
	run.mu.Lock()
	defer run.mu.Unlock()

	ch <- run.progress
	select {
	case <-run.Done:
		close(ch)
	default:
		run.listeners = append(run.listeners, ch)
	}
	return ch, nil
}

// CancelImport stops a run before its next row.
func (s *Service) CancelImport(runID string) error {
	run, err := s.get(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// GetImportResult waits for the run to finish and returns its result.
func (s *Service) GetImportResult(ctx context.Context, runID string) (*RunResult, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.result, nil
}

// GetImportProgress returns the latest snapshot without blocking.
func (s *Service) GetImportProgress(runID string) (ImportProgress, error) {
	run, err := s.get(runID)
	if err != nil {
		return ImportProgress{}, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.progress, nil
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until every run has released its slot, for graceful
// shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every tracked run.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		run.Cancel()
	}
}

func (s *Service) get(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// cleanup forgets the run after delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}

func (r *activeRun) update(fn func(*ImportProgress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.progress)
	r.notifyLocked()
}

// notifyLocked sends the current snapshot to listeners. r.mu must be held.
func (r *activeRun) notifyLocked() {
	for _, ch := range r.listeners {
		select {
		case ch <- r.progress:
		default:
		}
	}
}
