// Package pipeline orchestrates the staged assessment of loan
// applications: a forward pass over the registered stages, followed by
// evaluator-driven revision rounds bounded by the revision budget.
package pipeline

import (
	"context"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

// Artifacts is the set of dependency records handed to a stage run,
// keyed by stage. Each record is the latest revision of that stage.
type Artifacts map[core.StageName]core.StageRecord

// Decode unmarshals the named artifact's payload into v. Returns
// MissingDependency when the artifact is absent.
func (a Artifacts) Decode(stage core.StageName, v any) error {
	rec, ok := a[stage]
	if !ok {
		return errors.WithFields(
			errors.New(errors.MissingDependency, "required stage artifact is absent"),
			errors.Fields{"stage": string(stage)},
		)
	}
	if err := rec.DecodePayload(v); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.InvalidResponse, "failed to decode stage artifact"),
			errors.Fields{"stage": string(stage)},
		)
	}
	return nil
}

// Stage is one unit of the assessment pipeline. Run receives the
// application and the latest records of the stage's declared
// dependencies, and returns a JSON-serializable payload.
type Stage interface {
	Name() core.StageName
	Dependencies() []core.StageName
	Run(ctx context.Context, app core.Application, deps Artifacts) (any, error)
}
