package stages

import (
	"context"
	"fmt"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
	"github.com/XiaoConstantine/clara-go/pkg/retrieval"
)

// Profile rule thresholds, applied to the extracted features.
const (
	incomeStabilityCV      = 0.1
	expenseVolatilityCV    = 0.3
	savingsHabitRate       = 0.1
	concentrationShare     = 0.4
	discretionaryShareHigh = 0.3
	liquidityOverdraftFreq = 0.05
	debtDependenceRatio    = 0.4
)

// Behavioral extracts financial features, derives the binary behavior
// profiles and attaches comparable synthetic user cases.
type Behavioral struct {
	engine   *retrieval.Engine
	embedder core.Embedder
	topK     int
	logger   *logging.Logger
}

// NewBehavioral creates the behavioral stage. engine may be nil to
// skip neighbor retrieval.
func NewBehavioral(engine *retrieval.Engine, embedder core.Embedder, topK int) *Behavioral {
	return &Behavioral{
		engine:   engine,
		embedder: embedder,
		topK:     topK,
		logger:   logging.GetLogger(),
	}
}

func (b *Behavioral) Name() core.StageName { return core.StageBehavioral }

func (b *Behavioral) Dependencies() []core.StageName { return nil }

func (b *Behavioral) Run(ctx context.Context, app core.Application, deps pipeline.Artifacts) (any, error) {
	features, err := ExtractFeatures(app.Inputs)
	if err != nil {
		return nil, err
	}

	profiles, reasoning := deriveProfiles(app.Inputs.Applicant, features)
	out := core.BehavioralProfile{
		Features:  features,
		Profiles:  profiles,
		Reasoning: reasoning,
	}

	if b.engine != nil && b.embedder != nil {
		vector, err := b.embedder.Embed(ctx, features)
		if err != nil {
			return nil, err
		}
		neighbors, err := b.engine.Query(ctx, retrieval.CorpusSyntheticUsers, vector, effectiveTopK(b.topK, app))
		if err != nil {
			return nil, err
		}
		out.Neighbors = neighbors
	}

	b.logger.Info(ctx, "behavioral profile derived: %d of %d flags set",
		countFlags(profiles), len(profiles))
	return out, nil
}

// effectiveTopK applies a per-submission neighbor count override.
func effectiveTopK(topK int, app core.Application) int {
	if ov := app.Inputs.Overrides; ov != nil && ov.TopK != nil && *ov.TopK > 0 {
		return *ov.TopK
	}
	return topK
}

func deriveProfiles(applicant core.Applicant, f core.FinancialFeatures) (map[string]int, map[string]string) {
	profiles := make(map[string]int, 8)
	reasoning := make(map[string]string, 8)

	set := func(name string, on bool, why string) {
		profiles[name] = 0
		if on {
			profiles[name] = 1
		}
		reasoning[name] = why
	}

	incomeCV := 0.0
	if f.IncomeMean > 0 {
		incomeCV = f.IncomeStd / f.IncomeMean
	}
	set(core.ProfileIncomeStability, incomeCV < incomeStabilityCV,
		fmt.Sprintf("income variation coefficient %.3f against cutoff %.2f", incomeCV, incomeStabilityCV))

	expenseCV := 0.0
	if f.ExpenseMean > 0 {
		expenseCV = f.ExpenseStd / f.ExpenseMean
	}
	set(core.ProfileExpenseVolatility, expenseCV > expenseVolatilityCV,
		fmt.Sprintf("expense variation coefficient %.3f against cutoff %.2f", expenseCV, expenseVolatilityCV))

	set(core.ProfileSavingsHabit, f.SavingsRateMean > savingsHabitRate,
		fmt.Sprintf("mean savings rate %.3f against cutoff %.2f", f.SavingsRateMean, savingsHabitRate))

	set(core.ProfileCategoryConcentrationRisk, f.TopCategoryShare > concentrationShare,
		fmt.Sprintf("top category share %.3f against cutoff %.2f", f.TopCategoryShare, concentrationShare))

	set(core.ProfileDiscretionarySpendingShare, f.DiscretionaryShare > discretionaryShareHigh,
		fmt.Sprintf("discretionary share %.3f against cutoff %.2f", f.DiscretionaryShare, discretionaryShareHigh))

	set(core.ProfileLiquidityStress, f.OverdraftFreq > liquidityOverdraftFreq || f.BalanceTrend < 0,
		fmt.Sprintf("overdraft frequency %.3f, balance trend %.2f", f.OverdraftFreq, f.BalanceTrend))

	set(core.ProfileGrowthPotential, f.BalanceTrend > 0 && f.SavingsRateMean > 0,
		fmt.Sprintf("balance trend %.2f with savings rate %.3f", f.BalanceTrend, f.SavingsRateMean))

	debtRatio := 0.0
	if applicant.AnnualIncome > 0 {
		debtRatio = applicant.MonthlyDebt * 12 / applicant.AnnualIncome
	}
	set(core.ProfileDebtDependence, debtRatio > debtDependenceRatio || f.CardPaymentRatio > debtDependenceRatio,
		fmt.Sprintf("annualized debt ratio %.3f, card payment ratio %.3f", debtRatio, f.CardPaymentRatio))

	return profiles, reasoning
}

func countFlags(profiles map[string]int) int {
	n := 0
	for _, v := range profiles {
		n += v
	}
	return n
}
