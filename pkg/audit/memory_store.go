package audit

import (
	"context"
	"sync"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

type recordKey struct {
	stage    core.StageName
	revision int
}

// MemoryStore is an in-memory Store, suitable for tests and for
// single-process runs that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	apps    map[string]core.Application
	history map[string][]core.StageRecord
	seen    map[string]map[recordKey]struct{}
	// latest indexes the highest-revision record per stage into
	// history, so Latest never rescans the trail.
	latest map[string]map[core.StageName]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:    make(map[string]core.Application),
		history: make(map[string][]core.StageRecord),
		seen:    make(map[string]map[recordKey]struct{}),
		latest:  make(map[string]map[core.StageName]int),
	}
}

func (s *MemoryStore) PutApplication(ctx context.Context, app core.Application) error {
	if err := errors.CheckContext(ctx, "audit.PutApplication"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = app
	return nil
}

func (s *MemoryStore) GetApplication(ctx context.Context, id string) (core.Application, error) {
	if err := errors.CheckContext(ctx, "audit.GetApplication"); err != nil {
		return core.Application{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return core.Application{}, errors.WithFields(
			errors.New(errors.ResourceNotFound, "application not found"),
			errors.Fields{"application_id": id},
		)
	}
	return app, nil
}

func (s *MemoryStore) Append(ctx context.Context, rec core.StageRecord) error {
	if err := errors.CheckContext(ctx, "audit.Append"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{stage: rec.Stage, revision: rec.Revision}
	if _, exists := s.seen[rec.ApplicationID][key]; exists {
		return errors.WithFields(
			errors.New(errors.DuplicateRecord, "stage record already exists"),
			errors.Fields{
				"application_id": rec.ApplicationID,
				"stage":          string(rec.Stage),
				"revision":       rec.Revision,
			},
		)
	}
	if s.seen[rec.ApplicationID] == nil {
		s.seen[rec.ApplicationID] = make(map[recordKey]struct{})
	}
	s.seen[rec.ApplicationID][key] = struct{}{}

	if s.latest[rec.ApplicationID] == nil {
		s.latest[rec.ApplicationID] = make(map[core.StageName]int)
	}
	trail := s.history[rec.ApplicationID]
	if idx, ok := s.latest[rec.ApplicationID][rec.Stage]; !ok || rec.Revision > trail[idx].Revision {
		s.latest[rec.ApplicationID][rec.Stage] = len(trail)
	}
	s.history[rec.ApplicationID] = append(trail, rec)
	return nil
}

func (s *MemoryStore) Latest(ctx context.Context, applicationID string, stage core.StageName) (core.StageRecord, error) {
	if err := errors.CheckContext(ctx, "audit.Latest"); err != nil {
		return core.StageRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.latest[applicationID][stage]
	if !ok {
		return core.StageRecord{}, errors.WithFields(
			errors.New(errors.ResourceNotFound, "no record for stage"),
			errors.Fields{"application_id": applicationID, "stage": string(stage)},
		)
	}
	return s.history[applicationID][idx], nil
}

func (s *MemoryStore) History(ctx context.Context, applicationID string) ([]core.StageRecord, error) {
	if err := errors.CheckContext(ctx, "audit.History"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[applicationID]
	out := make([]core.StageRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
