package pipeline

import (
	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

// Registry holds the pipeline's stages in execution order. The stage
// set is fixed at construction; dependencies must point at earlier
// stages only.
type Registry struct {
	order  []core.StageName
	stages map[core.StageName]Stage
}

// NewRegistry builds a registry from stages, validating that every
// declared dependency is registered and precedes its dependent.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{stages: make(map[core.StageName]Stage, len(stages))}
	for _, stage := range stages {
		name := stage.Name()
		if !name.Valid() {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "unknown stage name"),
				errors.Fields{"stage": string(name)},
			)
		}
		if _, dup := r.stages[name]; dup {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "stage registered twice"),
				errors.Fields{"stage": string(name)},
			)
		}
		for _, dep := range stage.Dependencies() {
			if dep.Position() >= name.Position() {
				return nil, errors.WithFields(
					errors.New(errors.InvalidInput, "stage depends on a later stage"),
					errors.Fields{"stage": string(name), "dependency": string(dep)},
				)
			}
			if _, ok := r.stages[dep]; !ok {
				return nil, errors.WithFields(
					errors.New(errors.MissingDependency, "stage dependency not registered"),
					errors.Fields{"stage": string(name), "dependency": string(dep)},
				)
			}
		}
		r.stages[name] = stage
		r.order = append(r.order, name)
	}
	return r, nil
}

// Order returns the stage names in execution order.
func (r *Registry) Order() []core.StageName {
	out := make([]core.StageName, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the named stage.
func (r *Registry) Get(name core.StageName) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}
