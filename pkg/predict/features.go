package predict

import (
	"context"

	"github.com/XiaoConstantine/clara-go/pkg/core"
)

// Scale constants keep raw dollar figures in the same numeric range as
// ratio features so one set of coefficients covers both.
const (
	amountScale = 100000.0
	incomeScale = 100000.0
	scoreScale  = 850.0
	termScale   = 360.0
	debtScale   = 10000.0
)

// InterestFeatureVector builds the input to the interest rate model
// from the application form and extracted behavior.
func InterestFeatureVector(applicant core.Applicant, features core.FinancialFeatures) []float64 {
	return []float64{
		applicant.LoanAmount / amountScale,
		float64(applicant.LoanTerm) / termScale,
		applicant.AnnualIncome / incomeScale,
		float64(applicant.CreditScore) / scoreScale,
		applicant.MonthlyDebt / debtScale,
		boolFeature(applicant.Delinquencies),
		boolFeature(applicant.Bankruptcy),
		features.SavingsRateMean,
		features.OverdraftFreq,
		features.DiscretionaryShare,
	}
}

// RiskFeatureVector builds the input to the default risk model. The
// proposed interest rate participates as a feature: costlier credit
// raises the default probability.
func RiskFeatureVector(applicant core.Applicant, features core.FinancialFeatures, interestRate float64) []float64 {
	return append(InterestFeatureVector(applicant, features), interestRate/100)
}

// DefaultInterestCoefficients is the built-in interest model, used when
// no coefficient file is configured. Output is an annual percentage
// rate.
func DefaultInterestCoefficients() Coefficients {
	return Coefficients{
		Weights: []float64{
			1.8,  // loan amount
			0.9,  // term
			-2.2, // income
			-6.5, // credit score
			1.4,  // monthly debt
			1.6,  // delinquencies
			2.4,  // bankruptcy
			-1.2, // savings rate
			2.0,  // overdraft frequency
			0.8,  // discretionary share
		},
		Intercept: 11.5,
	}
}

// DefaultRiskCoefficients is the built-in default risk model. Output
// feeds the logistic function, yielding a probability.
func DefaultRiskCoefficients() Coefficients {
	return Coefficients{
		Weights: []float64{
			0.9,  // loan amount
			0.4,  // term
			-1.5, // income
			-3.8, // credit score
			1.1,  // monthly debt
			1.2,  // delinquencies
			2.0,  // bankruptcy
			-0.9, // savings rate
			1.5,  // overdraft frequency
			0.6,  // discretionary share
			4.0,  // interest rate
		},
		Intercept: -1.2,
	}
}

// FeatureEmbedder maps extracted financial features onto a fixed
// 8-dimension vector for corpus retrieval. Purely arithmetic, so equal
// features always embed identically.
type FeatureEmbedder struct{}

func (FeatureEmbedder) Embed(ctx context.Context, features core.FinancialFeatures) ([]float64, error) {
	incomeCV := 0.0
	if features.IncomeMean > 0 {
		incomeCV = features.IncomeStd / features.IncomeMean
	}
	expenseCV := 0.0
	if features.ExpenseMean > 0 {
		expenseCV = features.ExpenseStd / features.ExpenseMean
	}
	return []float64{
		incomeCV,
		expenseCV,
		features.SavingsRateMean,
		features.OverdraftFreq,
		features.DiscretionaryShare,
		features.TopCategoryShare,
		features.CategoryVolatility,
		features.CardPaymentRatio,
	}, nil
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ core.Embedder = FeatureEmbedder{}
