package core

// FinancialFeatures is the numeric summary extracted from raw bank and
// card statements. All monetary figures are per-month aggregates over
// the statement window.
type FinancialFeatures struct {
	IncomeMean         float64 `json:"income_mean"`
	IncomeStd          float64 `json:"income_std"`
	ExpenseMean        float64 `json:"expense_mean"`
	ExpenseStd         float64 `json:"expense_std"`
	SavingsRateMean    float64 `json:"savings_rate_mean"`
	OverdraftFreq      float64 `json:"overdraft_freq"`
	BalanceTrend       float64 `json:"balance_trend"`
	SpendTrend         float64 `json:"spend_trend"`
	DiscretionaryShare float64 `json:"discretionary_share"`
	TopCategoryShare   float64 `json:"top_category_share"`
	CategoryVolatility float64 `json:"category_volatility"`
	CardPaymentRatio   float64 `json:"card_payment_ratio"`

	// CategoryShares maps card spend category to its share of total
	// card spend, for concentration analysis.
	CategoryShares map[string]float64 `json:"category_shares,omitempty"`
}

// Profile flag names produced by the behavioral stage. Each maps to a
// binary 0/1 flag in BehavioralProfile.Profiles.
const (
	ProfileDiscretionarySpendingShare = "discretionary_spending_share"
	ProfileLiquidityStress            = "liquidity_stress"
	ProfileGrowthPotential            = "growth_potential"
	ProfileIncomeStability            = "income_stability"
	ProfileExpenseVolatility          = "expense_volatility"
	ProfileSavingsHabit               = "savings_habit"
	ProfileDebtDependence             = "debt_dependence"
	ProfileCategoryConcentrationRisk  = "category_concentration_risk"
)

// ProfileNames returns the canonical set of profile flags in a stable
// order.
func ProfileNames() []string {
	return []string{
		ProfileDiscretionarySpendingShare,
		ProfileLiquidityStress,
		ProfileGrowthPotential,
		ProfileIncomeStability,
		ProfileExpenseVolatility,
		ProfileSavingsHabit,
		ProfileDebtDependence,
		ProfileCategoryConcentrationRisk,
	}
}

// Neighbor is one retrieved comparable case with its similarity score.
type Neighbor struct {
	CaseID     string            `json:"case_id"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// BehavioralProfile is the behavioral stage payload: extracted features
// plus binary profile flags and per-flag reasoning.
type BehavioralProfile struct {
	Features  FinancialFeatures `json:"features"`
	Profiles  map[string]int    `json:"profiles"`
	Reasoning map[string]string `json:"reasoning,omitempty"`
	Neighbors []Neighbor        `json:"neighbors,omitempty"`
}

// InterestEstimate is the interest stage payload.
type InterestEstimate struct {
	Rate float64 `json:"rate"`
}

// RiskEstimate is the risk stage payload. Score is a default
// probability in [0,1].
type RiskEstimate struct {
	Score float64 `json:"score"`
}

// Decision outcomes.
const (
	OutcomeApproved = "approved"
	OutcomeDenied   = "denied"
)

// Decision is the decision stage payload.
type Decision struct {
	Outcome            string     `json:"outcome"`
	InterestRate       float64    `json:"interest_rate"`
	TermMonths         int        `json:"term_months"`
	RiskScore          float64    `json:"risk_score"`
	Justification      string     `json:"justification"`
	MonthlyInstallment float64    `json:"monthly_installment"`
	Neighbors          []Neighbor `json:"neighbors,omitempty"`
}

// Validation sub-score identities, used both as map keys and as the
// entries of ValidationScore.Failing.
const (
	ScoreFaithfulness = "faithfulness"
	ScoreRelevance    = "relevance"
	ScoreCorrectness  = "correctness"
)

// ValidationScore is the validation stage payload. Each sub-score is in
// [0,1]; Missing lists judges that produced no score (recorded as 0),
// Failing lists sub-scores below their configured thresholds.
type ValidationScore struct {
	Faithfulness float64  `json:"faithfulness"`
	Relevance    float64  `json:"relevance"`
	Correctness  float64  `json:"correctness"`
	Missing      []string `json:"missing,omitempty"`
	Failing      []string `json:"failing,omitempty"`
	Pass         bool     `json:"pass"`
}

// Score returns the named sub-score.
func (v ValidationScore) Score(name string) float64 {
	switch name {
	case ScoreFaithfulness:
		return v.Faithfulness
	case ScoreRelevance:
		return v.Relevance
	case ScoreCorrectness:
		return v.Correctness
	default:
		return 0
	}
}

// Revision reason codes carried on RevisionDirective.
const (
	ReasonFaithfulness         = "faithfulness"
	ReasonRelevance            = "relevance"
	ReasonCorrectness          = "correctness"
	ReasonProfilesInconsistent = "profiles_inconsistent"
	ReasonTermsAdjustment      = "terms_adjustment"
)

// RevisionDirective tells the orchestrator which stages to re-run and
// why. BudgetRemaining is the revision budget left after this directive
// is issued.
type RevisionDirective struct {
	Targets         []StageName `json:"targets"`
	Reason          string      `json:"reason"`
	BudgetRemaining int         `json:"budget_remaining"`
}

// EvaluatorVerdict is the evaluator stage payload. Accept true seals
// the application; otherwise Directive names the stages to revise.
type EvaluatorVerdict struct {
	Accept    bool               `json:"accept"`
	Directive *RevisionDirective `json:"directive,omitempty"`
	Comments  string             `json:"comments,omitempty"`
}
