package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
	"github.com/XiaoConstantine/clara-go/pkg/validation"
)

// Validation scores the decision against the behavioral evidence it
// was derived from.
type Validation struct {
	scorer *validation.Scorer
}

// NewValidation creates the validation stage around a scorer.
func NewValidation(scorer *validation.Scorer) *Validation {
	return &Validation{scorer: scorer}
}

func (s *Validation) Name() core.StageName { return core.StageValidation }

func (s *Validation) Dependencies() []core.StageName {
	return []core.StageName{core.StageBehavioral, core.StageDecision}
}

func (s *Validation) Run(ctx context.Context, app core.Application, deps pipeline.Artifacts) (any, error) {
	var profile core.BehavioralProfile
	if err := deps.Decode(core.StageBehavioral, &profile); err != nil {
		return nil, err
	}
	var decision core.Decision
	if err := deps.Decode(core.StageDecision, &decision); err != nil {
		return nil, err
	}

	input := core.JudgeInput{
		Question: assessmentQuestion(app.Inputs.Applicant),
		Context:  evidenceText(profile),
		Answer:   decisionText(decision),
	}
	return s.scorer.Score(ctx, input, app.Inputs.Overrides)
}

func assessmentQuestion(applicant core.Applicant) string {
	return fmt.Sprintf("Should the bank approve a %.0f loan over %d months for an applicant earning %.0f annually for %s?",
		applicant.LoanAmount, applicant.LoanTerm, applicant.AnnualIncome, applicant.LoanPurpose)
}

func evidenceText(profile core.BehavioralProfile) string {
	var b strings.Builder
	features, _ := json.Marshal(profile.Features)
	b.WriteString("Extracted features: ")
	b.Write(features)
	b.WriteString("\nBehavior profiles:")
	for _, name := range core.ProfileNames() {
		fmt.Fprintf(&b, "\n  %s=%d (%s)", name, profile.Profiles[name], profile.Reasoning[name])
	}
	for _, n := range profile.Neighbors {
		fmt.Fprintf(&b, "\nComparable case %s (similarity %.3f)", n.CaseID, n.Similarity)
	}
	return b.String()
}

func decisionText(decision core.Decision) string {
	return fmt.Sprintf("%s at %.2f%% over %d months, monthly installment %.2f, default risk %.3f. %s",
		decision.Outcome, decision.InterestRate, decision.TermMonths,
		decision.MonthlyInstallment, decision.RiskScore, decision.Justification)
}
