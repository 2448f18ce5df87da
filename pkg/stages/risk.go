package stages

import (
	"context"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
	"github.com/XiaoConstantine/clara-go/pkg/predict"
)

// Risk estimates the default probability. The proposed interest rate
// from the interest stage is one of its inputs.
type Risk struct {
	model  core.Predictor
	logger *logging.Logger
}

// NewRisk creates the risk stage around a probability model.
func NewRisk(model core.Predictor) *Risk {
	return &Risk{model: model, logger: logging.GetLogger()}
}

func (s *Risk) Name() core.StageName { return core.StageRisk }

func (s *Risk) Dependencies() []core.StageName {
	return []core.StageName{core.StageBehavioral, core.StageInterest}
}

func (s *Risk) Run(ctx context.Context, app core.Application, deps pipeline.Artifacts) (any, error) {
	var profile core.BehavioralProfile
	if err := deps.Decode(core.StageBehavioral, &profile); err != nil {
		return nil, err
	}
	var estimate core.InterestEstimate
	if err := deps.Decode(core.StageInterest, &estimate); err != nil {
		return nil, err
	}

	score, err := s.model.Predict(ctx,
		predict.RiskFeatureVector(app.Inputs.Applicant, profile.Features, estimate.Rate))
	if err != nil {
		return nil, err
	}
	if score < 0 || score > 1 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidResponse, "risk model produced a score outside [0,1]"),
			errors.Fields{"score": score},
		)
	}

	s.logger.Info(ctx, "estimated default risk %.3f at rate %.2f%%", score, estimate.Rate)
	return core.RiskEstimate{Score: score}, nil
}
