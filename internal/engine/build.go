package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/audit"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/config"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/learning"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/modes"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/persona"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/pgstore"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/profile"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/rulepack"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/sqlstore"
)

// #region logger

// NewLogger builds the process logger from the logging config.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// #endregion logger

// #region build

// Build constructs a fully wired engine from configuration: it opens the
// selected backend, seeds any configured rule pack, and assembles the
// evaluator, mode service, classifier, and learner around it.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = NewLogger(cfg.Logging)
	}

	var (
		constraints policy.Store
		profiles    profile.Store
		recorder    audit.Recorder
		closer      func() error
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		constraints = policy.NewMemStore()
		profiles = profile.NewMemStore(modes.SeedDefaults)
		recorder = audit.NewLogRecorder(logger)
	case config.BackendSQLite:
		store, err := sqlstore.Open(cfg.Store.Path, modes.SeedDefaults)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		constraints = store
		profiles = store
		recorder = store
		closer = store.Close
	case config.BackendPostgres:
		store, err := pgstore.Open(ctx, pgstore.Config{
			Dsn:             cfg.Store.Dsn,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetimeDuration(),
		}, modes.SeedDefaults, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		constraints = store
		profiles = store
		recorder = store
		closer = store.Close
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	weights := persona.DefaultWeights()
	if cfg.Engine.RulePack != "" {
		pack, err := rulepack.Load(cfg.Engine.RulePack)
		if err != nil {
			return nil, err
		}
		sets, err := pack.ConstraintSets()
		if err != nil {
			return nil, err
		}
		for _, set := range sets {
			if err := constraints.SaveConstraintSet(ctx, set); err != nil {
				return nil, fmt.Errorf("seed rule pack set %s: %w", set.ID, err)
			}
		}
		weights = pack.ClassifierWeights()
		logger.Info("rule pack loaded", "path", cfg.Engine.RulePack, "sets", len(sets))
	}

	eval := policy.NewEvaluator(constraints, policy.Config{
		DenyOnSoftTrigger: cfg.Engine.DenyOnSoftTrigger,
	})
	thresholds := learning.Thresholds{
		AutoApply: cfg.Learning.AutoApply,
		Suggest:   cfg.Learning.Suggest,
	}

	return New(Deps{
		Constraints: constraints,
		Profiles:    profiles,
		Evaluator:   eval,
		Modes:       modes.NewService(eval, logger),
		Classifier:  persona.NewClassifier(persona.NewOverrides(), weights),
		Learner:     learning.NewLearner(profiles, thresholds, logger),
		Recorder:    recorder,
		Logger:      logger,
		Closer:      closer,
	}), nil
}

// #endregion build
