package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/clara-go/pkg/audit"
	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

type fakeStage struct {
	name core.StageName
	deps []core.StageName
	run  func(ctx context.Context, app core.Application, deps Artifacts) (any, error)
}

func (f *fakeStage) Name() core.StageName           { return f.name }
func (f *fakeStage) Dependencies() []core.StageName { return f.deps }
func (f *fakeStage) Run(ctx context.Context, app core.Application, deps Artifacts) (any, error) {
	return f.run(ctx, app, deps)
}

func passthrough(name core.StageName, deps ...core.StageName) *fakeStage {
	return &fakeStage{
		name: name,
		deps: deps,
		run: func(ctx context.Context, app core.Application, a Artifacts) (any, error) {
			return map[string]string{"stage": string(name)}, nil
		},
	}
}

// scriptedEvaluator returns the queued verdicts in order, repeating
// the last one if the queue runs dry.
func scriptedEvaluator(verdicts ...core.EvaluatorVerdict) (*fakeStage, *atomic.Int64) {
	calls := &atomic.Int64{}
	return &fakeStage{
		name: core.StageEvaluator,
		deps: []core.StageName{core.StageValidation},
		run: func(ctx context.Context, app core.Application, a Artifacts) (any, error) {
			n := int(calls.Add(1)) - 1
			if n >= len(verdicts) {
				n = len(verdicts) - 1
			}
			return verdicts[n], nil
		},
	}, calls
}

func accept() core.EvaluatorVerdict {
	return core.EvaluatorVerdict{Accept: true}
}

func reject(reason string, targets ...core.StageName) core.EvaluatorVerdict {
	return core.EvaluatorVerdict{
		Directive: &core.RevisionDirective{Targets: targets, Reason: reason},
	}
}

func fullRegistry(t *testing.T, evaluator Stage) *Registry {
	t.Helper()
	reg, err := NewRegistry(
		passthrough(core.StageBehavioral),
		passthrough(core.StageInterest, core.StageBehavioral),
		passthrough(core.StageRisk, core.StageBehavioral, core.StageInterest),
		passthrough(core.StageDecision, core.StageBehavioral, core.StageInterest, core.StageRisk),
		passthrough(core.StageValidation, core.StageBehavioral, core.StageDecision),
		evaluator,
	)
	require.NoError(t, err)
	return reg
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BackoffMultiplier: 2.0, BaseDelay: time.Millisecond}
}

func newApp(id string) core.Application {
	return core.Application{ID: id, CreatedAt: time.Now().UTC()}
}

func TestProcessHappyPath(t *testing.T) {
	store := audit.NewMemoryStore()
	evaluator, calls := scriptedEvaluator(accept())
	orch := NewOrchestrator(fullRegistry(t, evaluator), store, Options{RevisionBudget: 3, Retry: fastRetry()})

	app, err := orch.Process(context.Background(), newApp("app-1"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, app.Status)
	assert.False(t, app.Unresolved)
	assert.Equal(t, int64(1), calls.Load())

	history, err := store.History(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, history, 6)
	for i, name := range core.StageNames() {
		assert.Equal(t, name, history[i].Stage)
		assert.Equal(t, 0, history[i].Revision)
		assert.Equal(t, core.StageOK, history[i].Status)
		assert.NotEmpty(t, history[i].InputDigest)
	}
}

func TestProcessRevisionLoop(t *testing.T) {
	store := audit.NewMemoryStore()
	evaluator, calls := scriptedEvaluator(
		reject(core.ReasonFaithfulness, core.StageDecision),
		accept(),
	)
	orch := NewOrchestrator(fullRegistry(t, evaluator), store, Options{RevisionBudget: 3, Retry: fastRetry()})

	app, err := orch.Process(context.Background(), newApp("app-1"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, app.Status)
	assert.Equal(t, int64(2), calls.Load())

	history, err := store.History(context.Background(), "app-1")
	require.NoError(t, err)
	// Full pass (6) plus decision, validation and evaluator at rev 1.
	require.Len(t, history, 9)

	latest, err := store.Latest(context.Background(), "app-1", core.StageDecision)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Revision)

	// Behavioral was not targeted and keeps its original revision.
	behavioral, err := store.Latest(context.Background(), "app-1", core.StageBehavioral)
	require.NoError(t, err)
	assert.Equal(t, 0, behavioral.Revision)

	// The recorded directive carries the remaining budget.
	records, err := store.History(context.Background(), "app-1")
	require.NoError(t, err)
	var verdict core.EvaluatorVerdict
	require.NoError(t, records[5].DecodePayload(&verdict))
	require.NotNil(t, verdict.Directive)
	assert.Equal(t, 2, verdict.Directive.BudgetRemaining)
}

func TestProcessBehavioralRevisionRerunsEverything(t *testing.T) {
	store := audit.NewMemoryStore()
	evaluator, _ := scriptedEvaluator(
		reject(core.ReasonRelevance, core.StageBehavioral),
		accept(),
	)
	orch := NewOrchestrator(fullRegistry(t, evaluator), store, Options{RevisionBudget: 2, Retry: fastRetry()})

	app, err := orch.Process(context.Background(), newApp("app-1"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, app.Status)

	history, err := store.History(context.Background(), "app-1")
	require.NoError(t, err)
	// Two full passes.
	assert.Len(t, history, 12)

	behavioral, err := store.Latest(context.Background(), "app-1", core.StageBehavioral)
	require.NoError(t, err)
	assert.Equal(t, 1, behavioral.Revision)
}

func TestProcessBudgetExhaustion(t *testing.T) {
	store := audit.NewMemoryStore()
	evaluator, calls := scriptedEvaluator(reject(core.ReasonCorrectness, core.StageDecision))
	budget := 2
	orch := NewOrchestrator(fullRegistry(t, evaluator), store, Options{RevisionBudget: budget, Retry: fastRetry()})

	app, err := orch.Process(context.Background(), newApp("app-1"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusExhausted, app.Status)
	assert.True(t, app.Unresolved)
	assert.Contains(t, app.Reason, core.ReasonCorrectness)

	// Evaluator runs at most budget+1 times.
	assert.Equal(t, int64(budget+1), calls.Load())

	stored, err := store.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusExhausted, stored.Status)
}

func TestProcessZeroBudgetSealsOnFirstRejection(t *testing.T) {
	store := audit.NewMemoryStore()
	evaluator, calls := scriptedEvaluator(reject(core.ReasonFaithfulness, core.StageDecision))
	orch := NewOrchestrator(fullRegistry(t, evaluator), store, Options{RevisionBudget: 0, Retry: fastRetry()})

	app, err := orch.Process(context.Background(), newApp("app-1"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusExhausted, app.Status)
	assert.Equal(t, int64(1), calls.Load())
}

func TestProcessTransientRetry(t *testing.T) {
	store := audit.NewMemoryStore()
	attempts := &atomic.Int64{}
	flaky := &fakeStage{
		name: core.StageBehavioral,
		run: func(ctx context.Context, app core.Application, a Artifacts) (any, error) {
			if attempts.Add(1) < 3 {
				return nil, errors.New(errors.TransientCapability, "capability briefly unavailable")
			}
			return map[string]string{"ok": "yes"}, nil
		},
	}
	evaluator, _ := scriptedEvaluator(accept())
	reg, err := NewRegistry(
		flaky,
		passthrough(core.StageInterest, core.StageBehavioral),
		passthrough(core.StageRisk, core.StageBehavioral, core.StageInterest),
		passthrough(core.StageDecision, core.StageBehavioral, core.StageInterest, core.StageRisk),
		passthrough(core.StageValidation, core.StageBehavioral, core.StageDecision),
		evaluator,
	)
	require.NoError(t, err)
	orch := NewOrchestrator(reg, store, Options{RevisionBudget: 1, Retry: fastRetry()})

	app, err := orch.Process(context.Background(), newApp("app-1"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, app.Status)
	assert.Equal(t, int64(3), attempts.Load())

	// Only the successful attempt is recorded.
	history, err := store.History(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Len(t, history, 6)
}

func TestProcessTransientExhaustionFails(t *testing.T) {
	store := audit.NewMemoryStore()
	broken := &fakeStage{
		name: core.StageBehavioral,
		run: func(ctx context.Context, app core.Application, a Artifacts) (any, error) {
			return nil, errors.New(errors.TransientCapability, "still unavailable")
		},
	}
	evaluator, _ := scriptedEvaluator(accept())
	reg, err := NewRegistry(
		broken,
		passthrough(core.StageInterest, core.StageBehavioral),
		passthrough(core.StageRisk, core.StageBehavioral, core.StageInterest),
		passthrough(core.StageDecision, core.StageBehavioral, core.StageInterest, core.StageRisk),
		passthrough(core.StageValidation, core.StageBehavioral, core.StageDecision),
		evaluator,
	)
	require.NoError(t, err)
	orch := NewOrchestrator(reg, store, Options{RevisionBudget: 1, Retry: fastRetry()})

	app, procErr := orch.Process(context.Background(), newApp("app-1"))
	require.Error(t, procErr)
	assert.Equal(t, core.StatusFailed, app.Status)

	// The failure is part of the audit trail.
	history, err := store.History(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.StageFailed, history[0].Status)
	assert.NotEmpty(t, history[0].Err)
}

func TestProcessFatalStageError(t *testing.T) {
	store := audit.NewMemoryStore()
	bad := &fakeStage{
		name: core.StageBehavioral,
		run: func(ctx context.Context, app core.Application, a Artifacts) (any, error) {
			return nil, errors.New(errors.InvalidInput, "statement is empty")
		},
	}
	evaluator, _ := scriptedEvaluator(accept())
	reg, err := NewRegistry(
		bad,
		passthrough(core.StageInterest, core.StageBehavioral),
		passthrough(core.StageRisk, core.StageBehavioral, core.StageInterest),
		passthrough(core.StageDecision, core.StageBehavioral, core.StageInterest, core.StageRisk),
		passthrough(core.StageValidation, core.StageBehavioral, core.StageDecision),
		evaluator,
	)
	require.NoError(t, err)
	orch := NewOrchestrator(reg, store, Options{RevisionBudget: 1, Retry: fastRetry()})

	app, procErr := orch.Process(context.Background(), newApp("app-1"))
	require.Error(t, procErr)
	assert.Equal(t, core.StatusFailed, app.Status)
}

func TestProcessCancellationBetweenStages(t *testing.T) {
	store := audit.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while the interest stage runs; risk never starts.
	interest := &fakeStage{
		name: core.StageInterest,
		deps: []core.StageName{core.StageBehavioral},
		run: func(ctx context.Context, app core.Application, a Artifacts) (any, error) {
			cancel()
			return map[string]string{"stage": "interest"}, nil
		},
	}
	evaluator, calls := scriptedEvaluator(accept())
	reg, err := NewRegistry(
		passthrough(core.StageBehavioral),
		interest,
		passthrough(core.StageRisk, core.StageBehavioral, core.StageInterest),
		passthrough(core.StageDecision, core.StageBehavioral, core.StageInterest, core.StageRisk),
		passthrough(core.StageValidation, core.StageBehavioral, core.StageDecision),
		evaluator,
	)
	require.NoError(t, err)
	orch := NewOrchestrator(reg, store, Options{RevisionBudget: 1, Retry: fastRetry()})

	app, procErr := orch.Process(ctx, newApp("app-1"))
	require.Error(t, procErr)
	assert.Equal(t, core.StatusFailed, app.Status)
	assert.Contains(t, app.Reason, core.ReasonUserCancelled)
	assert.Equal(t, int64(0), calls.Load())

	// Records completed before cancellation survive.
	history, err := store.History(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRegistryRejectsBadWiring(t *testing.T) {
	t.Run("dependency on later stage", func(t *testing.T) {
		_, err := NewRegistry(
			&fakeStage{name: core.StageBehavioral, deps: []core.StageName{core.StageDecision}},
		)
		require.Error(t, err)
	})

	t.Run("unregistered dependency", func(t *testing.T) {
		_, err := NewRegistry(
			passthrough(core.StageInterest, core.StageBehavioral),
		)
		require.Error(t, err)
		assert.Equal(t, errors.MissingDependency, errors.Code(err))
	})

	t.Run("duplicate stage", func(t *testing.T) {
		_, err := NewRegistry(
			passthrough(core.StageBehavioral),
			passthrough(core.StageBehavioral),
		)
		require.Error(t, err)
	})

	t.Run("unknown stage name", func(t *testing.T) {
		_, err := NewRegistry(&fakeStage{name: core.StageName("underwriting")})
		require.Error(t, err)
	})
}

func TestArtifactsDecode(t *testing.T) {
	var out map[string]string
	err := Artifacts{}.Decode(core.StageBehavioral, &out)
	require.Error(t, err)
	assert.Equal(t, errors.MissingDependency, errors.Code(err))
}

func TestProcessRevisionBudgetOverride(t *testing.T) {
	store := audit.NewMemoryStore()
	evaluator, calls := scriptedEvaluator(reject(core.ReasonFaithfulness, core.StageDecision))
	orch := NewOrchestrator(fullRegistry(t, evaluator), store, Options{RevisionBudget: 3, Retry: fastRetry()})

	zero := 0
	app := newApp("app-1")
	app.Inputs.Overrides = &core.Overrides{RevisionBudget: &zero}

	out, err := orch.Process(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, core.StatusExhausted, out.Status)
	assert.True(t, out.Unresolved)
	// The configured budget of 3 would have allowed revision rounds;
	// the override ends the run after the single forward pass.
	assert.Equal(t, int64(1), calls.Load())
}

func TestProcessRetryLimitOverride(t *testing.T) {
	store := audit.NewMemoryStore()
	attempts := &atomic.Int64{}
	flaky := &fakeStage{
		name: core.StageBehavioral,
		run: func(ctx context.Context, app core.Application, a Artifacts) (any, error) {
			attempts.Add(1)
			return nil, errors.New(errors.TransientCapability, "capability hiccup")
		},
	}
	evaluator, _ := scriptedEvaluator(accept())
	reg, err := NewRegistry(
		flaky,
		passthrough(core.StageInterest, core.StageBehavioral),
		passthrough(core.StageRisk, core.StageBehavioral, core.StageInterest),
		passthrough(core.StageDecision, core.StageBehavioral, core.StageInterest, core.StageRisk),
		passthrough(core.StageValidation, core.StageBehavioral, core.StageDecision),
		evaluator,
	)
	require.NoError(t, err)
	orch := NewOrchestrator(reg, store, Options{RevisionBudget: 3, Retry: fastRetry()})

	one := 1
	app := newApp("app-1")
	app.Inputs.Overrides = &core.Overrides{MaxAttempts: &one}

	out, err := orch.Process(context.Background(), app)
	require.Error(t, err)
	assert.Equal(t, core.StatusFailed, out.Status)
	// The default of three attempts is overridden down to one.
	assert.Equal(t, int64(1), attempts.Load())
}
