package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/clara-go/pkg/audit"
	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
	"github.com/XiaoConstantine/clara-go/pkg/predict"
	"github.com/XiaoConstantine/clara-go/pkg/retrieval"
	"github.com/XiaoConstantine/clara-go/pkg/stages"
	"github.com/XiaoConstantine/clara-go/pkg/validation"
)

func fixedJudge(score float64) core.Judge {
	return core.JudgeFunc(func(ctx context.Context, input core.JudgeInput) (core.JudgeVerdict, error) {
		return core.JudgeVerdict{Score: score}, nil
	})
}

func sampleInputs() core.RawInputs {
	bank := func(month time.Month, income, expense, balance float64) core.BankTransaction {
		return core.BankTransaction{
			Date:    time.Date(2026, month, 15, 0, 0, 0, 0, time.UTC),
			Income:  income,
			Expense: expense,
			Balance: balance,
		}
	}
	return core.RawInputs{
		Applicant: core.Applicant{
			LoanAmount:   12000,
			LoanTerm:     36,
			AnnualIncome: 72000,
			CreditScore:  730,
			MonthlyDebt:  350,
			LoanPurpose:  "home improvement",
		},
		Bank: []core.BankTransaction{
			bank(time.January, 6000, 4800, 3000),
			bank(time.February, 6000, 4700, 4200),
			bank(time.March, 6000, 4900, 5300),
		},
		Card: []core.CardTransaction{
			{Date: time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC), Category: "groceries", AmountPaid: 500},
			{Date: time.Date(2026, time.February, 5, 0, 0, 0, 0, time.UTC), Category: "groceries", AmountPaid: 520},
		},
	}
}

func newTestService(t *testing.T, workers int) (*pipeline.Service, audit.Store) {
	t.Helper()

	usersCorpus, err := retrieval.NewCorpus(retrieval.CorpusSyntheticUsers, []retrieval.Case{
		{ID: "u-1", Embedding: []float64{0.1, 0.1, 0.2, 0, 0.1, 0.5, 0.1, 0.1}},
		{ID: "u-2", Embedding: []float64{0.5, 0.8, 0, 0.3, 0.6, 0.4, 0.5, 0.4}},
	})
	require.NoError(t, err)
	loansCorpus, err := retrieval.NewCorpus(retrieval.CorpusHistoricalLoans, []retrieval.Case{
		{ID: "l-1", Embedding: []float64{0.1, 0.1, 0.2, 0, 0.1, 0.5, 0.1, 0.1}, Metadata: map[string]string{"outcome": "repaid"}},
	})
	require.NoError(t, err)
	reg := retrieval.NewRegistry()
	reg.Register(usersCorpus)
	reg.Register(loansCorpus)
	engine := retrieval.NewEngine(reg)
	embedder := predict.FeatureEmbedder{}

	scorer := validation.NewScorer(validation.Judges{
		Faithfulness: fixedJudge(0.9),
		Relevance:    fixedJudge(0.9),
		Correctness:  fixedJudge(0.9),
	}, validation.Thresholds{Faithfulness: 0.7, Relevance: 0.7, Correctness: 0.7}, time.Second)

	stageReg, err := pipeline.NewRegistry(
		stages.NewBehavioral(engine, embedder, 2),
		stages.NewInterest(predict.NewLinearModel(predict.DefaultInterestCoefficients())),
		stages.NewRisk(predict.NewLogisticModel(predict.DefaultRiskCoefficients())),
		stages.NewDecision(engine, embedder, 1, "medium"),
		stages.NewValidation(scorer),
		stages.NewEvaluator("medium"),
	)
	require.NoError(t, err)

	store := audit.NewMemoryStore()
	orch := pipeline.NewOrchestrator(stageReg, store, pipeline.Options{
		RevisionBudget: 2,
		Retry:          pipeline.RetryConfig{MaxAttempts: 2, BackoffMultiplier: 2, BaseDelay: time.Millisecond},
	})
	return pipeline.NewService(orch, store, workers), store
}

func TestServiceEndToEnd(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	id, err := svc.Submit(ctx, sampleInputs(), pipeline.SubmitOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	svc.Wait()

	app, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, app.Status)

	history, err := svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 6)

	var decision core.Decision
	require.NoError(t, history[3].DecodePayload(&decision))
	assert.Contains(t, []string{core.OutcomeApproved, core.OutcomeDenied}, decision.Outcome)
	assert.NotEmpty(t, decision.Justification)
	assert.Len(t, decision.Neighbors, 1)

	var verdict core.EvaluatorVerdict
	require.NoError(t, history[5].DecodePayload(&verdict))
	assert.True(t, verdict.Accept)
}

func TestServiceCancelUnknown(t *testing.T) {
	svc, _ := newTestService(t, 1)
	err := svc.Cancel("never-submitted")
	require.Error(t, err)
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
}

func TestServiceConcurrentSubmissions(t *testing.T) {
	svc, _ := newTestService(t, 4)
	ctx := context.Background()

	ids := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		id, err := svc.Submit(ctx, sampleInputs(), pipeline.SubmitOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	svc.Wait()

	for _, id := range ids {
		app, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, app.Status.Terminal(), "application %s not terminal", id)
	}
}
