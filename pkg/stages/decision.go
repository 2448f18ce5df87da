package stages

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
	"github.com/XiaoConstantine/clara-go/pkg/retrieval"
)

// riskCutoffs maps risk tolerance to the maximum default probability
// the bank will approve.
var riskCutoffs = map[string]float64{
	"low":    0.25,
	"medium": 0.40,
	"high":   0.55,
}

// Decision combines the upstream estimates into an approve or deny
// outcome with concrete terms and a written justification.
type Decision struct {
	engine    *retrieval.Engine
	embedder  core.Embedder
	topK      int
	tolerance string
	logger    *logging.Logger
}

// NewDecision creates the decision stage. tolerance is the bank's risk
// tolerance: "low", "medium" or "high".
func NewDecision(engine *retrieval.Engine, embedder core.Embedder, topK int, tolerance string) *Decision {
	return &Decision{
		engine:    engine,
		embedder:  embedder,
		topK:      topK,
		tolerance: tolerance,
		logger:    logging.GetLogger(),
	}
}

func (s *Decision) Name() core.StageName { return core.StageDecision }

func (s *Decision) Dependencies() []core.StageName {
	return []core.StageName{core.StageBehavioral, core.StageInterest, core.StageRisk}
}

func (s *Decision) Run(ctx context.Context, app core.Application, deps pipeline.Artifacts) (any, error) {
	var profile core.BehavioralProfile
	if err := deps.Decode(core.StageBehavioral, &profile); err != nil {
		return nil, err
	}
	var estimate core.InterestEstimate
	if err := deps.Decode(core.StageInterest, &estimate); err != nil {
		return nil, err
	}
	var risk core.RiskEstimate
	if err := deps.Decode(core.StageRisk, &risk); err != nil {
		return nil, err
	}

	applicant := app.Inputs.Applicant
	cutoff, ok := riskCutoffs[s.tolerance]
	if !ok {
		cutoff = riskCutoffs["medium"]
	}

	outcome := core.OutcomeApproved
	var reasons []string
	if risk.Score > cutoff {
		outcome = core.OutcomeDenied
		reasons = append(reasons, fmt.Sprintf("default risk %.3f exceeds the %.2f cutoff for %s tolerance",
			risk.Score, cutoff, s.tolerance))
	}
	if applicant.Bankruptcy && s.tolerance == "low" {
		outcome = core.OutcomeDenied
		reasons = append(reasons, "bankruptcy on record is disqualifying under low tolerance")
	}
	if flagged(profile, core.ProfileLiquidityStress) && flagged(profile, core.ProfileDebtDependence) {
		outcome = core.OutcomeDenied
		reasons = append(reasons, "combined liquidity stress and debt dependence indicate repayment strain")
	}

	decision := core.Decision{
		Outcome:      outcome,
		InterestRate: estimate.Rate,
		TermMonths:   applicant.LoanTerm,
		RiskScore:    risk.Score,
	}
	if outcome == core.OutcomeApproved {
		decision.MonthlyInstallment = installment(applicant.LoanAmount, estimate.Rate, applicant.LoanTerm)
		reasons = append(reasons, fmt.Sprintf("default risk %.3f is within the %.2f cutoff for %s tolerance",
			risk.Score, cutoff, s.tolerance))
		if flagged(profile, core.ProfileSavingsHabit) {
			reasons = append(reasons, "consistent savings habit supports repayment capacity")
		}
		if flagged(profile, core.ProfileIncomeStability) {
			reasons = append(reasons, "stable income over the statement window")
		}
	}
	if directives := strings.TrimSpace(app.Inputs.Directives); directives != "" {
		reasons = append(reasons, fmt.Sprintf("reviewer guidance considered: %s", directives))
	}
	decision.Justification = strings.Join(reasons, "; ")

	if s.engine != nil && s.embedder != nil {
		vector, err := s.embedder.Embed(ctx, profile.Features)
		if err != nil {
			return nil, err
		}
		neighbors, err := s.engine.Query(ctx, retrieval.CorpusHistoricalLoans, vector, effectiveTopK(s.topK, app))
		if err != nil {
			return nil, err
		}
		decision.Neighbors = neighbors
	}

	s.logger.Info(ctx, "decision %s at %.2f%% over %d months (risk %.3f)",
		decision.Outcome, decision.InterestRate, decision.TermMonths, decision.RiskScore)
	return decision, nil
}

func flagged(profile core.BehavioralProfile, name string) bool {
	return profile.Profiles[name] == 1
}

// installment is the standard amortization payment for principal p at
// annual rate (percent) over n months.
func installment(p, annualRate float64, n int) float64 {
	if n <= 0 || p <= 0 {
		return 0
	}
	r := annualRate / 100 / 12
	if r == 0 {
		return p / float64(n)
	}
	factor := math.Pow(1+r, float64(n))
	return p * r * factor / (factor - 1)
}
