package commands

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/XiaoConstantine/clara-go/pkg/audit"
	"github.com/XiaoConstantine/clara-go/pkg/config"
	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/judge"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
	"github.com/XiaoConstantine/clara-go/pkg/predict"
	"github.com/XiaoConstantine/clara-go/pkg/retrieval"
	"github.com/XiaoConstantine/clara-go/pkg/stages"
	"github.com/XiaoConstantine/clara-go/pkg/validation"
)

// buildStore opens the configured audit backend.
func buildStore(cfg *config.Config) (audit.Store, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		path := cfg.Audit.Path
		if path == "" {
			path = "clara-audit.db"
		}
		return audit.NewSQLiteStore(path)
	default:
		return audit.NewMemoryStore(), nil
	}
}

// buildCorpora loads every configured corpus into a registry.
func buildCorpora(ctx context.Context, cfg *config.Config) (*retrieval.Registry, error) {
	registry := retrieval.NewRegistry()
	for name, corpusCfg := range cfg.Retrieval.Corpora {
		var (
			corpus *retrieval.Corpus
			err    error
		)
		switch strings.ToLower(filepath.Ext(corpusCfg.Path)) {
		case ".parquet":
			corpus, err = retrieval.LoadParquet(ctx, name, corpusCfg.Path)
		case ".json":
			corpus, err = retrieval.LoadJSON(name, corpusCfg.Path)
		default:
			err = errors.WithFields(
				errors.New(errors.InvalidInput, "unsupported corpus format"),
				errors.Fields{"corpus": name, "path": corpusCfg.Path},
			)
		}
		if err != nil {
			return nil, err
		}
		registry.Register(corpus)
	}
	return registry, nil
}

func buildJudges(cfg *config.Config) (validation.Judges, error) {
	if cfg.Judge.Provider == "anthropic" {
		var judges validation.Judges
		for criterion, target := range map[string]*core.Judge{
			core.ScoreFaithfulness: &judges.Faithfulness,
			core.ScoreRelevance:    &judges.Relevance,
			core.ScoreCorrectness:  &judges.Correctness,
		} {
			j, err := judge.NewAnthropicJudge(cfg.Judge.APIKey, cfg.Judge.ModelID, criterion)
			if err != nil {
				return validation.Judges{}, err
			}
			*target = j
		}
		return judges, nil
	}
	return validation.Judges{
		Faithfulness: judge.HeuristicFaithfulness{},
		Relevance:    judge.HeuristicRelevance{},
		Correctness:  judge.HeuristicCorrectness{},
	}, nil
}

func buildModels(cfg *config.Config) (core.Predictor, core.Predictor, error) {
	interestCoeffs := predict.DefaultInterestCoefficients()
	if cfg.Models.InterestPath != "" {
		loaded, err := predict.LoadCoefficients(cfg.Models.InterestPath)
		if err != nil {
			return nil, nil, err
		}
		interestCoeffs = loaded
	}
	riskCoeffs := predict.DefaultRiskCoefficients()
	if cfg.Models.RiskPath != "" {
		loaded, err := predict.LoadCoefficients(cfg.Models.RiskPath)
		if err != nil {
			return nil, nil, err
		}
		riskCoeffs = loaded
	}
	return predict.NewLinearModel(interestCoeffs), predict.NewLogisticModel(riskCoeffs), nil
}

// buildService assembles the full pipeline from configuration.
func buildService(ctx context.Context, cfg *config.Config, store audit.Store) (*pipeline.Service, error) {
	corpora, err := buildCorpora(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var engine *retrieval.Engine
	if len(corpora.Names()) > 0 {
		engine = retrieval.NewEngine(corpora)
	}
	embedder := predict.FeatureEmbedder{}

	judges, err := buildJudges(cfg)
	if err != nil {
		return nil, err
	}
	scorer := validation.NewScorer(judges, validation.Thresholds{
		Faithfulness: cfg.Validation.FaithfulnessThreshold,
		Relevance:    cfg.Validation.RelevanceThreshold,
		Correctness:  cfg.Validation.CorrectnessThreshold,
	}, cfg.Validation.JudgeTimeout)

	interestModel, riskModel, err := buildModels(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := pipeline.NewRegistry(
		stages.NewBehavioral(engine, embedder, cfg.Retrieval.TopK),
		stages.NewInterest(interestModel),
		stages.NewRisk(riskModel),
		stages.NewDecision(engine, embedder, cfg.Retrieval.TopK, cfg.Pipeline.RiskTolerance),
		stages.NewValidation(scorer),
		stages.NewEvaluator(cfg.Pipeline.RiskTolerance),
	)
	if err != nil {
		return nil, err
	}

	orch := pipeline.NewOrchestrator(registry, store, pipeline.Options{
		RevisionBudget: cfg.Pipeline.RevisionBudget,
		Retry: pipeline.RetryConfig{
			MaxAttempts:       cfg.Pipeline.MaxAttempts,
			BackoffMultiplier: cfg.Pipeline.BackoffMultiplier,
		},
	})
	return pipeline.NewService(orch, store, cfg.Pipeline.Workers), nil
}
