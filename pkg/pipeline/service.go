package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/clara-go/pkg/audit"
	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
)

// Service is the public surface of the pipeline: applications go in
// through Submit, run on a bounded worker pool, and their state and
// history come back out through Get and History. Cancel stops an
// in-flight application at the next stage boundary.
type Service struct {
	orch   *Orchestrator
	store  audit.Store
	pool   *pool.Pool
	logger *logging.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	pending  sync.WaitGroup
	closed   bool
}

// NewService creates a service running at most workers applications
// concurrently.
func NewService(orch *Orchestrator, store audit.Store, workers int) *Service {
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		orch:     orch,
		store:    store,
		pool:     pool.New().WithMaxGoroutines(workers),
		logger:   logging.GetLogger(),
		inflight: make(map[string]context.CancelFunc),
	}
}

// SubmitOptions adjusts a single submission.
type SubmitOptions struct {
	// ID pins the application id. Empty means a generated UUID.
	ID string
	// Overrides replaces recognized processing options for this
	// application only. Nil keeps the configured defaults.
	Overrides *core.Overrides
}

// Submit registers the application and schedules it for processing.
// Submitting an id that is already in flight or already stored is
// rejected; submitting after Wait has shut the service down fails
// with Canceled.
func (s *Service) Submit(ctx context.Context, inputs core.RawInputs, opts SubmitOptions) (string, error) {
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	if opts.Overrides != nil {
		inputs.Overrides = opts.Overrides
	}

	app := core.Application{
		ID:        id,
		Inputs:    inputs,
		CreatedAt: time.Now().UTC(),
		Status:    core.StatusPending,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.New(errors.Canceled, "service has been shut down")
	}
	if _, running := s.inflight[id]; running {
		s.mu.Unlock()
		return "", errors.WithFields(
			errors.New(errors.DuplicateRecord, "application is already in flight"),
			errors.Fields{"application_id": id},
		)
	}
	// Processing is detached from the submitter's context; Cancel is
	// the way to stop it.
	runCtx, cancel := context.WithCancel(context.Background())
	s.inflight[id] = cancel
	s.pending.Add(1)
	s.mu.Unlock()

	// A stored application, terminal or not, owns its id for good:
	// accepting it again would let a new run clobber sealed history.
	if _, err := s.store.GetApplication(ctx, id); err == nil {
		s.pending.Done()
		s.release(id)
		return "", errors.WithFields(
			errors.New(errors.DuplicateRecord, "application id already exists"),
			errors.Fields{"application_id": id},
		)
	} else if errors.Code(err) != errors.ResourceNotFound {
		s.pending.Done()
		s.release(id)
		return "", err
	}

	if err := s.store.PutApplication(ctx, app); err != nil {
		s.pending.Done()
		s.release(id)
		return "", err
	}

	s.pool.Go(func() {
		defer s.pending.Done()
		defer s.release(id)
		if _, err := s.orch.Process(runCtx, app); err != nil {
			s.logger.Error(runCtx, "application %s terminated with failure: %v", id, err)
		}
	})

	s.logger.Info(ctx, "application %s submitted", id)
	return id, nil
}

// Cancel requests cancellation of an in-flight application. The
// application stops at the next stage boundary; completed stage
// records are retained.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	cancel, ok := s.inflight[id]
	s.mu.Unlock()
	if !ok {
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "application is not in flight"),
			errors.Fields{"application_id": id},
		)
	}
	cancel()
	return nil
}

// Get returns the application's current state.
func (s *Service) Get(ctx context.Context, id string) (core.Application, error) {
	return s.store.GetApplication(ctx, id)
}

// History returns the application's full stage record trail.
func (s *Service) History(ctx context.Context, id string) ([]core.StageRecord, error) {
	return s.store.History(ctx, id)
}

// Wait blocks until every accepted application has terminated and
// shuts the service down: later Submit calls fail with Canceled.
// Wait may be called more than once.
func (s *Service) Wait() {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()

	// Submissions that passed the closed check still hold a pending
	// slot; draining them first keeps the pool shutdown race-free.
	s.pending.Wait()
	if !alreadyClosed {
		s.pool.Wait()
	}
}

func (s *Service) release(id string) {
	s.mu.Lock()
	if cancel, ok := s.inflight[id]; ok {
		cancel()
		delete(s.inflight, id)
	}
	s.mu.Unlock()
}
