// Package predict provides the scoring models used by the interest and
// risk stages: a linear regressor, a logistic classifier, and a
// deterministic feature embedder for corpus retrieval.
package predict

import (
	"context"
	"encoding/json"
	"math"
	"os"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

// Coefficients describes a trained linear model: one weight per input
// feature plus an intercept.
type Coefficients struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// LoadCoefficients reads model coefficients from a JSON file.
func LoadCoefficients(path string) (Coefficients, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Coefficients{}, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to read model coefficients"),
			errors.Fields{"path": path},
		)
	}
	var c Coefficients
	if err := json.Unmarshal(data, &c); err != nil {
		return Coefficients{}, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse model coefficients"),
			errors.Fields{"path": path},
		)
	}
	return c, nil
}

// LinearModel predicts a raw linear combination of its inputs. Used
// for interest rate estimation, where the output is a percentage.
type LinearModel struct {
	coeffs Coefficients
}

// NewLinearModel creates a model over the given coefficients.
func NewLinearModel(coeffs Coefficients) *LinearModel {
	return &LinearModel{coeffs: coeffs}
}

func (m *LinearModel) Predict(ctx context.Context, features []float64) (float64, error) {
	if err := errors.CheckContext(ctx, "predict.Linear"); err != nil {
		return 0, err
	}
	sum, err := dot(m.coeffs, features)
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// LogisticModel predicts a probability in [0,1] via the logistic
// function. Used for default risk scoring.
type LogisticModel struct {
	coeffs Coefficients
}

// NewLogisticModel creates a model over the given coefficients.
func NewLogisticModel(coeffs Coefficients) *LogisticModel {
	return &LogisticModel{coeffs: coeffs}
}

func (m *LogisticModel) Predict(ctx context.Context, features []float64) (float64, error) {
	if err := errors.CheckContext(ctx, "predict.Logistic"); err != nil {
		return 0, err
	}
	sum, err := dot(m.coeffs, features)
	if err != nil {
		return 0, err
	}
	return 1 / (1 + math.Exp(-sum)), nil
}

func dot(c Coefficients, features []float64) (float64, error) {
	if len(features) != len(c.Weights) {
		return 0, errors.WithFields(
			errors.New(errors.DimensionMismatch, "feature vector does not match model weights"),
			errors.Fields{"expected": len(c.Weights), "got": len(features)},
		)
	}
	sum := c.Intercept
	for i, w := range c.Weights {
		sum += w * features[i]
	}
	return sum, nil
}

var (
	_ core.Predictor = (*LinearModel)(nil)
	_ core.Predictor = (*LogisticModel)(nil)
)
