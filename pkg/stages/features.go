// Package stages implements the assessment pipeline stages: behavioral
// profiling, interest estimation, risk scoring, decisioning,
// validation and the evaluator.
package stages

import (
	"math"
	"sort"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

// Card categories counted as discretionary spend.
var discretionaryCategories = map[string]bool{
	"entertainment": true,
	"dining":        true,
	"travel":        true,
	"shopping":      true,
	"hobbies":       true,
}

type monthlyAggregate struct {
	income  float64
	expense float64
	card    float64
}

// ExtractFeatures reduces raw bank and card statements to the numeric
// summary consumed by the rest of the pipeline. Statements are
// aggregated per calendar month before statistics are taken, so daily
// granularity does not skew the variability measures.
func ExtractFeatures(inputs core.RawInputs) (core.FinancialFeatures, error) {
	if len(inputs.Bank) == 0 {
		return core.FinancialFeatures{}, errors.New(errors.InvalidInput, "bank statement is empty")
	}

	months := make(map[string]*monthlyAggregate)
	monthKeys := make([]string, 0)
	overdrafts := 0
	var balances []float64

	for _, tx := range inputs.Bank {
		key := tx.Date.Format("2006-01")
		agg, ok := months[key]
		if !ok {
			agg = &monthlyAggregate{}
			months[key] = agg
			monthKeys = append(monthKeys, key)
		}
		agg.income += tx.Income
		agg.expense += tx.Expense
		if tx.Balance < 0 {
			overdrafts++
		}
		balances = append(balances, tx.Balance)
	}
	sort.Strings(monthKeys)

	categoryTotals := make(map[string]float64)
	var cardTotal, discretionary float64
	var cardMonthly []float64
	for _, tx := range inputs.Card {
		key := tx.Date.Format("2006-01")
		if agg, ok := months[key]; ok {
			agg.card += tx.AmountPaid
		}
		categoryTotals[tx.Category] += tx.AmountPaid
		cardTotal += tx.AmountPaid
		if discretionaryCategories[tx.Category] {
			discretionary += tx.AmountPaid
		}
	}

	var incomes, expenses, savingsRates []float64
	for _, key := range monthKeys {
		agg := months[key]
		incomes = append(incomes, agg.income)
		expenses = append(expenses, agg.expense)
		if agg.income > 0 {
			savingsRates = append(savingsRates, (agg.income-agg.expense)/agg.income)
		}
		cardMonthly = append(cardMonthly, agg.card)
	}

	features := core.FinancialFeatures{
		IncomeMean:      mean(incomes),
		IncomeStd:       stddev(incomes),
		ExpenseMean:     mean(expenses),
		ExpenseStd:      stddev(expenses),
		SavingsRateMean: mean(savingsRates),
		OverdraftFreq:   float64(overdrafts) / float64(len(inputs.Bank)),
		BalanceTrend:    slope(balances),
		SpendTrend:      slope(expenses),
	}

	if cardTotal > 0 {
		features.DiscretionaryShare = discretionary / cardTotal
		features.CategoryShares = make(map[string]float64, len(categoryTotals))
		top := 0.0
		for category, total := range categoryTotals {
			share := total / cardTotal
			features.CategoryShares[category] = share
			if share > top {
				top = share
			}
		}
		features.TopCategoryShare = top
		if m := mean(cardMonthly); m > 0 {
			features.CategoryVolatility = stddev(cardMonthly) / m
		}
	}
	if totalIncome := sum(incomes); totalIncome > 0 {
		features.CardPaymentRatio = cardTotal / totalIncome
	}

	return features, nil
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sum(xs) / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var variance float64
	for _, x := range xs {
		variance += (x - m) * (x - m)
	}
	return math.Sqrt(variance / float64(len(xs)))
}

// slope is the least-squares slope of xs against its index, a cheap
// trend indicator.
func slope(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range xs {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
