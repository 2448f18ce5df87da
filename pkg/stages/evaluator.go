package stages

import (
	"context"
	"fmt"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
)

// Installment above this share of monthly income triggers a terms
// revision for approved loans.
const installmentIncomeShare = 0.4

// Evaluator reviews the validated decision and either accepts it or
// directs a revision round. The review is rule-based: identical inputs
// always produce the same verdict.
type Evaluator struct {
	tolerance string
	logger    *logging.Logger
}

// NewEvaluator creates the evaluator. tolerance tightens the review
// under "low": scores a judge failed to produce are treated as failing
// rather than waved through.
func NewEvaluator(tolerance string) *Evaluator {
	return &Evaluator{tolerance: tolerance, logger: logging.GetLogger()}
}

func (s *Evaluator) Name() core.StageName { return core.StageEvaluator }

func (s *Evaluator) Dependencies() []core.StageName {
	return []core.StageName{core.StageBehavioral, core.StageDecision, core.StageValidation}
}

func (s *Evaluator) Run(ctx context.Context, app core.Application, deps pipeline.Artifacts) (any, error) {
	var profile core.BehavioralProfile
	if err := deps.Decode(core.StageBehavioral, &profile); err != nil {
		return nil, err
	}
	var decision core.Decision
	if err := deps.Decode(core.StageDecision, &decision); err != nil {
		return nil, err
	}
	var score core.ValidationScore
	if err := deps.Decode(core.StageValidation, &score); err != nil {
		return nil, err
	}

	verdict := s.review(app, profile, decision, score)
	if verdict.Accept {
		s.logger.Info(ctx, "evaluator accepted the decision")
	} else {
		s.logger.Info(ctx, "evaluator requested revision of %v (%s)",
			verdict.Directive.Targets, verdict.Directive.Reason)
	}
	return verdict, nil
}

func (s *Evaluator) review(app core.Application, profile core.BehavioralProfile, decision core.Decision, score core.ValidationScore) core.EvaluatorVerdict {
	failing := append([]string{}, score.Failing...)
	if s.tolerance == "low" {
		failing = append(failing, score.Missing...)
	}

	// Sub-score failures route by identity: relevance concerns the
	// evidence selection, the others concern the decision itself.
	if contains(failing, core.ScoreRelevance) {
		return revise(core.ReasonRelevance,
			fmt.Sprintf("relevance scored %.2f; the behavioral evidence does not address the request", score.Relevance),
			core.StageBehavioral)
	}
	if contains(failing, core.ScoreFaithfulness) {
		return revise(core.ReasonFaithfulness,
			fmt.Sprintf("faithfulness scored %.2f; the decision is not grounded in the evidence", score.Faithfulness),
			core.StageDecision)
	}
	if contains(failing, core.ScoreCorrectness) {
		return revise(core.ReasonCorrectness,
			fmt.Sprintf("correctness scored %.2f; the decision contradicts the evidence", score.Correctness),
			core.StageDecision)
	}

	// Profile consistency: flags must agree with the features they
	// were derived from.
	if inconsistent, detail := profilesInconsistent(profile); inconsistent {
		return revise(core.ReasonProfilesInconsistent, detail, core.StageBehavioral)
	}

	// Affordability: an approved loan must leave the applicant able to
	// pay the installment.
	if decision.Outcome == core.OutcomeApproved {
		monthlyIncome := app.Inputs.Applicant.AnnualIncome / 12
		if monthlyIncome > 0 && decision.MonthlyInstallment > monthlyIncome*installmentIncomeShare {
			return revise(core.ReasonTermsAdjustment,
				fmt.Sprintf("installment %.2f exceeds %.0f%% of monthly income %.2f",
					decision.MonthlyInstallment, installmentIncomeShare*100, monthlyIncome),
				core.StageDecision)
		}
	}

	return core.EvaluatorVerdict{Accept: true, Comments: "decision is grounded, relevant and affordable"}
}

func profilesInconsistent(profile core.BehavioralProfile) (bool, string) {
	f := profile.Features
	if profile.Profiles[core.ProfileSavingsHabit] == 1 && f.SavingsRateMean <= 0 {
		return true, fmt.Sprintf("savings habit flagged with non-positive savings rate %.3f", f.SavingsRateMean)
	}
	if profile.Profiles[core.ProfileIncomeStability] == 1 && f.IncomeMean > 0 && f.IncomeStd/f.IncomeMean >= 2*incomeStabilityCV {
		return true, fmt.Sprintf("income stability flagged with variation coefficient %.3f", f.IncomeStd/f.IncomeMean)
	}
	if profile.Profiles[core.ProfileGrowthPotential] == 1 && f.BalanceTrend < 0 {
		return true, fmt.Sprintf("growth potential flagged with negative balance trend %.2f", f.BalanceTrend)
	}
	return false, ""
}

func revise(reason, comments string, targets ...core.StageName) core.EvaluatorVerdict {
	return core.EvaluatorVerdict{
		Accept:   false,
		Comments: comments,
		Directive: &core.RevisionDirective{
			Targets: targets,
			Reason:  reason,
		},
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
