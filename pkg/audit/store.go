// Package audit provides append-only persistence for applications and
// their stage execution history.
package audit

import (
	"context"

	"github.com/XiaoConstantine/clara-go/pkg/core"
)

// Store persists applications and stage records. Stage records are
// append-only: a (application, stage, revision) triple is written at
// most once, and a second write fails with DuplicateRecord. Records
// are never updated or deleted.
type Store interface {
	// PutApplication inserts or updates an application's top-level state.
	PutApplication(ctx context.Context, app core.Application) error

	// GetApplication returns the application, or ResourceNotFound.
	GetApplication(ctx context.Context, id string) (core.Application, error)

	// Append writes one stage record. Returns DuplicateRecord if the
	// (application, stage, revision) triple already exists.
	Append(ctx context.Context, rec core.StageRecord) error

	// Latest returns the highest-revision record for the given stage,
	// or ResourceNotFound if the stage has never run.
	Latest(ctx context.Context, applicationID string, stage core.StageName) (core.StageRecord, error)

	// History returns all stage records for the application in insertion
	// order.
	History(ctx context.Context, applicationID string) ([]core.StageRecord, error)

	// Close releases any underlying resources.
	Close() error
}
