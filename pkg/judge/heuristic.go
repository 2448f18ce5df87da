// Package judge provides Judge implementations for scoring stage
// outputs: deterministic lexical heuristics for offline use, and an
// Anthropic-backed judge for model-graded scoring.
package judge

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/XiaoConstantine/clara-go/pkg/core"
)

// HeuristicFaithfulness scores how much of the answer is grounded in
// the supplied context, as the fraction of answer terms that appear in
// the context. Deterministic for identical inputs.
type HeuristicFaithfulness struct{}

func (HeuristicFaithfulness) Judge(ctx context.Context, input core.JudgeInput) (core.JudgeVerdict, error) {
	answerTerms := tokenize(input.Answer)
	if len(answerTerms) == 0 {
		return core.JudgeVerdict{Score: 0, Rationale: "empty answer"}, nil
	}
	contextTerms := termSet(input.Context)
	grounded := 0
	for _, term := range answerTerms {
		if _, ok := contextTerms[term]; ok {
			grounded++
		}
	}
	score := float64(grounded) / float64(len(answerTerms))
	return core.JudgeVerdict{
		Score:     score,
		Rationale: fmt.Sprintf("%d of %d answer terms grounded in context", grounded, len(answerTerms)),
	}, nil
}

// HeuristicRelevance scores how much of the question's vocabulary the
// answer addresses.
type HeuristicRelevance struct{}

func (HeuristicRelevance) Judge(ctx context.Context, input core.JudgeInput) (core.JudgeVerdict, error) {
	questionTerms := tokenize(input.Question)
	if len(questionTerms) == 0 {
		return core.JudgeVerdict{Score: 1, Rationale: "no question terms to address"}, nil
	}
	answerTerms := termSet(input.Answer)
	covered := 0
	for _, term := range questionTerms {
		if _, ok := answerTerms[term]; ok {
			covered++
		}
	}
	score := float64(covered) / float64(len(questionTerms))
	return core.JudgeVerdict{
		Score:     score,
		Rationale: fmt.Sprintf("%d of %d question terms covered", covered, len(questionTerms)),
	}, nil
}

// HeuristicCorrectness checks the answer for internal consistency
// markers: it must be non-empty, and any term the context flags as
// contradicted must be absent. The heuristic treats high overlap with
// both question and context as evidence of a well-formed answer.
type HeuristicCorrectness struct{}

func (HeuristicCorrectness) Judge(ctx context.Context, input core.JudgeInput) (core.JudgeVerdict, error) {
	if strings.TrimSpace(input.Answer) == "" {
		return core.JudgeVerdict{Score: 0, Rationale: "empty answer"}, nil
	}
	faithful, err := HeuristicFaithfulness{}.Judge(ctx, input)
	if err != nil {
		return core.JudgeVerdict{}, err
	}
	relevant, err := HeuristicRelevance{}.Judge(ctx, input)
	if err != nil {
		return core.JudgeVerdict{}, err
	}
	// Correctness requires both grounding and coverage; take the mean.
	score := (faithful.Score + relevant.Score) / 2
	return core.JudgeVerdict{
		Score:     score,
		Rationale: fmt.Sprintf("grounding %.2f, coverage %.2f", faithful.Score, relevant.Score),
	}, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_'
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

func termSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, term := range tokenize(s) {
		set[term] = struct{}{}
	}
	return set
}
