package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/XiaoConstantine/clara-go/pkg/audit"
	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
)

// RetryConfig bounds the retries applied to transiently failing
// stages. Delay between attempts grows as BaseDelay *
// BackoffMultiplier^attempt.
type RetryConfig struct {
	MaxAttempts       int
	BackoffMultiplier float64
	BaseDelay         time.Duration
}

// DefaultRetryConfig mirrors the service defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BackoffMultiplier: 2.0, BaseDelay: time.Second}
}

// Options configures an Orchestrator.
type Options struct {
	// RevisionBudget is how many revision rounds the evaluator may
	// request before the application is sealed as exhausted.
	RevisionBudget int
	Retry          RetryConfig
}

// Orchestrator drives one application through the stage pipeline:
// a full forward pass, then evaluator-directed revision rounds until
// acceptance, failure, or budget exhaustion. Every stage execution is
// recorded in the audit store before the orchestrator moves on.
type Orchestrator struct {
	registry *Registry
	store    audit.Store
	opts     Options
	logger   *logging.Logger
}

// NewOrchestrator creates an orchestrator over the given stage
// registry and audit store.
func NewOrchestrator(registry *Registry, store audit.Store, opts Options) *Orchestrator {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = time.Second
	}
	return &Orchestrator{
		registry: registry,
		store:    store,
		opts:     opts,
		logger:   logging.GetLogger(),
	}
}

// Process runs the application to a terminal status. The returned
// application reflects the final state; the error reports processing
// failures after they have been recorded.
func (o *Orchestrator) Process(ctx context.Context, app core.Application) (core.Application, error) {
	ctx = logging.WithApplication(ctx, app.ID)
	app.Status = core.StatusPending
	if err := o.store.PutApplication(ctx, app); err != nil {
		return app, err
	}

	opts := o.effectiveOptions(app)
	pending := o.registry.Order()
	revision := 0
	budgetUsed := 0

	// Each iteration is one pass over the pending stages; a revision
	// directive starts another pass. The loop runs at most
	// RevisionBudget+1 times.
	for {
		verdict, err := o.runPass(ctx, app, pending, revision, opts)
		if err != nil {
			return o.seal(app, core.StatusFailed, err.Error(), false)
		}

		if verdict.Accept {
			return o.seal(app, core.StatusCompleted, "accepted by evaluator", false)
		}

		directive := verdict.Directive
		if directive == nil || len(directive.Targets) == 0 {
			return o.seal(app, core.StatusFailed, "evaluator rejected without a revision directive", false)
		}
		if budgetUsed >= opts.RevisionBudget {
			reason := fmt.Sprintf("revision budget exhausted with unresolved %s concern", directive.Reason)
			return o.seal(app, core.StatusExhausted, reason, true)
		}
		budgetUsed++
		revision++
		pending = o.revisionStages(directive.Targets)
		o.logger.Info(ctx, "revision round %d targeting %v (%s)", revision, directive.Targets, directive.Reason)
	}
}

// effectiveOptions folds the application's submission overrides into
// the configured defaults.
func (o *Orchestrator) effectiveOptions(app core.Application) Options {
	opts := o.opts
	ov := app.Inputs.Overrides
	if ov == nil {
		return opts
	}
	if ov.RevisionBudget != nil && *ov.RevisionBudget >= 0 {
		opts.RevisionBudget = *ov.RevisionBudget
	}
	if ov.MaxAttempts != nil && *ov.MaxAttempts > 0 {
		opts.Retry.MaxAttempts = *ov.MaxAttempts
	}
	return opts
}

// runPass executes the pending stages in order at the given revision
// and returns the evaluator's verdict.
func (o *Orchestrator) runPass(ctx context.Context, app core.Application, pending []core.StageName, revision int, opts Options) (core.EvaluatorVerdict, error) {
	var verdict core.EvaluatorVerdict
	for _, name := range pending {
		// Cancellation is honored at stage boundaries only: a running
		// stage finishes and its record lands before the check.
		if err := errors.CheckContext(ctx, "pipeline.runPass"); err != nil {
			return verdict, errors.Wrap(err, errors.Canceled, core.ReasonUserCancelled)
		}

		stage, ok := o.registry.Get(name)
		if !ok {
			return verdict, errors.WithFields(
				errors.New(errors.MissingDependency, "stage not registered"),
				errors.Fields{"stage": string(name)},
			)
		}

		deps, err := o.collect(ctx, app.ID, stage.Dependencies())
		if err != nil {
			return verdict, err
		}
		digest, err := inputDigest(app, deps, revision)
		if err != nil {
			return verdict, err
		}

		stageCtx := logging.WithStage(ctx, string(name), revision)
		payload, err := o.runWithRetry(stageCtx, stage, app, deps, opts.Retry)
		if err != nil {
			o.recordFailure(ctx, app.ID, name, revision, digest, err)
			return verdict, errors.Wrap(err, errors.StageFailed, fmt.Sprintf("%s stage failed", name))
		}

		if name == core.StageEvaluator {
			v, ok := payload.(core.EvaluatorVerdict)
			if !ok {
				return verdict, errors.New(errors.InvalidResponse, "evaluator produced an unexpected payload")
			}
			if v.Directive != nil {
				// Honoring the directive consumes one round.
				v.Directive.BudgetRemaining = opts.RevisionBudget - revision - 1
				if v.Directive.BudgetRemaining < 0 {
					v.Directive.BudgetRemaining = 0
				}
			}
			verdict = v
			payload = v
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return verdict, errors.Wrap(err, errors.InvalidResponse, "failed to serialize stage payload")
		}
		rec := core.StageRecord{
			ApplicationID: app.ID,
			Stage:         name,
			Revision:      revision,
			InputDigest:   digest,
			Payload:       raw,
			Status:        core.StageOK,
			CreatedAt:     time.Now().UTC(),
		}
		// A finished stage is recorded even when cancellation arrived
		// mid-run; the boundary check above is what stops the pass.
		if err := o.store.Append(context.WithoutCancel(ctx), rec); err != nil {
			return verdict, err
		}
	}
	return verdict, nil
}

// collect fetches the latest record of each dependency.
func (o *Orchestrator) collect(ctx context.Context, appID string, deps []core.StageName) (Artifacts, error) {
	artifacts := make(Artifacts, len(deps))
	for _, dep := range deps {
		rec, err := o.store.Latest(ctx, appID, dep)
		if err != nil {
			if errors.Code(err) == errors.ResourceNotFound {
				return nil, errors.WithFields(
					errors.New(errors.MissingDependency, "dependency stage has no record"),
					errors.Fields{"application_id": appID, "dependency": string(dep)},
				)
			}
			return nil, err
		}
		if rec.Status != core.StageOK {
			return nil, errors.WithFields(
				errors.New(errors.MissingDependency, "dependency stage did not succeed"),
				errors.Fields{"dependency": string(dep), "status": string(rec.Status)},
			)
		}
		artifacts[dep] = rec
	}
	return artifacts, nil
}

// runWithRetry retries transiently failing stage runs with exponential
// backoff. Non-transient errors fail immediately.
func (o *Orchestrator) runWithRetry(ctx context.Context, stage Stage, app core.Application, deps Artifacts, retry RetryConfig) (any, error) {
	var lastErr error
	for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(retry.BaseDelay) *
				math.Pow(retry.BackoffMultiplier, float64(attempt-1)))
			o.logger.Warn(ctx, "retrying %s after %v (attempt %d of %d)",
				stage.Name(), backoff, attempt+1, retry.MaxAttempts)
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), errors.Canceled, "stage retry interrupted")
			case <-time.After(backoff):
			}
		}
		payload, err := stage.Run(ctx, app, deps)
		if err == nil {
			return payload, nil
		}
		if !errors.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, errors.TransientCapability,
		fmt.Sprintf("stage failed after %d attempts", retry.MaxAttempts))
}

func (o *Orchestrator) recordFailure(ctx context.Context, appID string, name core.StageName, revision int, digest string, runErr error) {
	rec := core.StageRecord{
		ApplicationID: appID,
		Stage:         name,
		Revision:      revision,
		InputDigest:   digest,
		Status:        core.StageFailed,
		Err:           runErr.Error(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Error(ctx, "failed to record stage failure: %v", err)
	}
}

// revisionStages expands a directive's targets to every stage from the
// earliest target onward: downstream stages consume revised artifacts
// and must re-run.
func (o *Orchestrator) revisionStages(targets []core.StageName) []core.StageName {
	earliest := core.StageEvaluator.Position()
	for _, target := range targets {
		if p := target.Position(); p < earliest {
			earliest = p
		}
	}
	var pending []core.StageName
	for _, name := range o.registry.Order() {
		if name.Position() >= earliest {
			pending = append(pending, name)
		}
	}
	return pending
}

func (o *Orchestrator) seal(app core.Application, status core.ApplicationStatus, reason string, unresolved bool) (core.Application, error) {
	app.Status = status
	app.Reason = reason
	app.Unresolved = unresolved

	// Sealing must not be lost to the cancellation that caused it.
	sealCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.PutApplication(sealCtx, app); err != nil {
		return app, err
	}
	if status == core.StatusFailed {
		return app, errors.New(errors.StageFailed, reason)
	}
	return app, nil
}

func inputDigest(app core.Application, deps Artifacts, revision int) (string, error) {
	parts := []any{app.ID, app.Inputs, revision}
	for _, dep := range core.StageNames() {
		if rec, ok := deps[dep]; ok {
			parts = append(parts, string(dep), rec.Revision, json.RawMessage(rec.Payload))
		}
	}
	return core.Digest(parts...)
}
