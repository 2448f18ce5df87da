package stages

import (
	"context"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
	"github.com/XiaoConstantine/clara-go/pkg/predict"
)

// Interest rate bounds, annual percentage.
const (
	minRate = 0.5
	maxRate = 36.0
)

// Interest estimates the offered interest rate from the application
// form and the behavioral profile.
type Interest struct {
	model  core.Predictor
	logger *logging.Logger
}

// NewInterest creates the interest stage around a rate model.
func NewInterest(model core.Predictor) *Interest {
	return &Interest{model: model, logger: logging.GetLogger()}
}

func (s *Interest) Name() core.StageName { return core.StageInterest }

func (s *Interest) Dependencies() []core.StageName {
	return []core.StageName{core.StageBehavioral}
}

func (s *Interest) Run(ctx context.Context, app core.Application, deps pipeline.Artifacts) (any, error) {
	var profile core.BehavioralProfile
	if err := deps.Decode(core.StageBehavioral, &profile); err != nil {
		return nil, err
	}

	rate, err := s.model.Predict(ctx, predict.InterestFeatureVector(app.Inputs.Applicant, profile.Features))
	if err != nil {
		return nil, err
	}
	if rate < minRate {
		rate = minRate
	}
	if rate > maxRate {
		rate = maxRate
	}

	s.logger.Info(ctx, "estimated interest rate %.2f%%", rate)
	return core.InterestEstimate{Rate: rate}, nil
}
