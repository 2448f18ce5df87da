package core

import "context"

// JudgeInput is the material a judge scores or comments on. Question
// frames what is being asked, Context carries the supporting evidence
// (features, neighbors, prior payloads) serialized as text, and Answer
// is the artifact being judged.
type JudgeInput struct {
	Question string
	Context  string
	Answer   string
}

// JudgeVerdict is a judge's response. Score is in [0,1]; Rationale is
// free text.
type JudgeVerdict struct {
	Score     float64
	Rationale string
}

// Judge scores an artifact against evidence. Implementations may call
// external models; transient failures should be reported with the
// TransientCapability error code so callers can retry.
type Judge interface {
	Judge(ctx context.Context, input JudgeInput) (JudgeVerdict, error)
}

// Predictor maps a feature vector to a scalar prediction. Used for the
// interest rate and risk score models.
type Predictor interface {
	Predict(ctx context.Context, features []float64) (float64, error)
}

// Embedder maps extracted features to a fixed-dimension vector for
// corpus retrieval.
type Embedder interface {
	Embed(ctx context.Context, features FinancialFeatures) ([]float64, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, input JudgeInput) (JudgeVerdict, error)

func (f JudgeFunc) Judge(ctx context.Context, input JudgeInput) (JudgeVerdict, error) {
	return f(ctx, input)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(ctx context.Context, features []float64) (float64, error)

func (f PredictorFunc) Predict(ctx context.Context, features []float64) (float64, error) {
	return f(ctx, features)
}
