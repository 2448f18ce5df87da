// Package validation scores decision artifacts against the evidence
// they were derived from, using independent faithfulness, relevance
// and correctness judges.
package validation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
)

// Thresholds holds the minimum acceptable value per sub-score.
type Thresholds struct {
	Faithfulness float64
	Relevance    float64
	Correctness  float64
}

// Judges bundles the three sub-score judges. A nil judge means that
// sub-score is unavailable: it scores 0 and is reported as missing.
type Judges struct {
	Faithfulness core.Judge
	Relevance    core.Judge
	Correctness  core.Judge
}

// Scorer runs the three judges concurrently and folds their verdicts
// into a single ValidationScore.
type Scorer struct {
	judges     Judges
	thresholds Thresholds
	timeout    time.Duration
	logger     *logging.Logger
}

// NewScorer creates a scorer. timeout bounds each individual judge
// call; zero disables the per-judge timeout.
func NewScorer(judges Judges, thresholds Thresholds, timeout time.Duration) *Scorer {
	return &Scorer{
		judges:     judges,
		thresholds: thresholds,
		timeout:    timeout,
		logger:     logging.GetLogger(),
	}
}

// Score judges the input on all three criteria. A judge that is nil,
// times out, or fails scores 0 and is listed in Missing; transient
// judge failures abort scoring instead so the caller can retry the
// whole stage. Sub-scores below threshold are listed in Failing and
// clear Pass. overrides may adjust the thresholds and the per-judge
// timeout for this one call; nil keeps the scorer's configuration.
func (s *Scorer) Score(ctx context.Context, input core.JudgeInput, overrides *core.Overrides) (core.ValidationScore, error) {
	thresholds := s.thresholds
	timeout := s.timeout
	if overrides != nil {
		if overrides.FaithfulnessThreshold != nil {
			thresholds.Faithfulness = *overrides.FaithfulnessThreshold
		}
		if overrides.RelevanceThreshold != nil {
			thresholds.Relevance = *overrides.RelevanceThreshold
		}
		if overrides.CorrectnessThreshold != nil {
			thresholds.Correctness = *overrides.CorrectnessThreshold
		}
		if overrides.JudgeTimeout != nil {
			timeout = *overrides.JudgeTimeout
		}
	}
	type result struct {
		name    string
		verdict core.JudgeVerdict
		missing bool
	}

	var (
		mu      sync.Mutex
		results []result
	)

	p := pool.New().WithErrors().WithContext(ctx)
	for _, entry := range []struct {
		name  string
		judge core.Judge
	}{
		{core.ScoreFaithfulness, s.judges.Faithfulness},
		{core.ScoreRelevance, s.judges.Relevance},
		{core.ScoreCorrectness, s.judges.Correctness},
	} {
		entry := entry
		p.Go(func(ctx context.Context) error {
			res := result{name: entry.name}
			if entry.judge == nil {
				res.missing = true
			} else {
				verdict, err := s.judge(ctx, entry.judge, input, timeout)
				switch {
				case err == nil:
					res.verdict = verdict
				case errors.Code(err) == errors.TransientCapability:
					// Retryable at the stage level, not a missing score.
					return err
				default:
					s.logger.Warn(ctx, "%s judge failed, recording score 0: %v", entry.name, err)
					res.missing = true
				}
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return core.ValidationScore{}, err
	}

	var score core.ValidationScore
	for _, res := range results {
		switch res.name {
		case core.ScoreFaithfulness:
			score.Faithfulness = res.verdict.Score
		case core.ScoreRelevance:
			score.Relevance = res.verdict.Score
		case core.ScoreCorrectness:
			score.Correctness = res.verdict.Score
		}
		if res.missing {
			score.Missing = append(score.Missing, res.name)
		}
	}
	sort.Strings(score.Missing)

	for _, check := range []struct {
		name      string
		value     float64
		threshold float64
	}{
		{core.ScoreFaithfulness, score.Faithfulness, thresholds.Faithfulness},
		{core.ScoreRelevance, score.Relevance, thresholds.Relevance},
		{core.ScoreCorrectness, score.Correctness, thresholds.Correctness},
	} {
		if check.value < check.threshold {
			score.Failing = append(score.Failing, check.name)
		}
	}
	score.Pass = len(score.Failing) == 0

	s.logger.Debug(ctx, "validation scored faithfulness=%.2f relevance=%.2f correctness=%.2f pass=%v",
		score.Faithfulness, score.Relevance, score.Correctness, score.Pass)
	return score, nil
}

func (s *Scorer) judge(ctx context.Context, j core.Judge, input core.JudgeInput, timeout time.Duration) (core.JudgeVerdict, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	verdict, err := j.Judge(ctx, input)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return core.JudgeVerdict{}, errors.Wrap(err, errors.Timeout, "judge timed out")
		}
		return core.JudgeVerdict{}, err
	}
	if verdict.Score < 0 || verdict.Score > 1 {
		return core.JudgeVerdict{}, errors.WithFields(
			errors.New(errors.InvalidResponse, "judge score out of range"),
			errors.Fields{"score": verdict.Score},
		)
	}
	return verdict, nil
}
