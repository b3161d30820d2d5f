package modes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// #region errors
var (
	// ErrTransitionBlocked marks a transition refused by validation. The
	// wrapped message carries the first blocking reason.
	ErrTransitionBlocked = errors.New("mode transition blocked")

	// ErrConfirmationRequired marks a transition that needs caller-supplied
	// confirmation before it can proceed.
	ErrConfirmationRequired = errors.New("mode transition requires confirmation")
)

// #endregion errors

// #region options
// Options tune a single SetMode call.
type Options struct {
	// SkipValidation commits the transition without consulting constraints.
	SkipValidation bool
	// Confirmed acknowledges a previously surfaced confirmation request.
	Confirmed bool
	// Reason is recorded on the transition context.
	Reason string
	// TriggeredBy names the initiator (user action, automation, learning).
	TriggeredBy string
}

// #endregion options

// #region service
// Service owns the current mode. It is an injected instance guarded by a
// mutex, never a package-level singleton; concurrent SetMode calls from
// multiple sessions serialize on the lock.
type Service struct {
	mu      sync.Mutex
	current policy.Mode
	eval    *policy.Evaluator
	logger  *slog.Logger
}

// NewService creates a mode service starting in the default mode.
func NewService(eval *policy.Evaluator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		current: policy.ModeDefault,
		eval:    eval,
		logger:  logger.With("system", "modes"),
	}
}

// Current returns the current mode.
func (s *Service) Current() policy.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Descriptor returns the static descriptor of the current mode.
func (s *Service) Descriptor() Descriptor {
	return Describe(s.Current())
}

// #endregion service

// #region set-mode

// SetMode validates and commits a transition to the given mode. The mutex is
// held across validation so the mode cannot change between the check and the
// commit; on any refusal the current mode is unchanged.
func (s *Service) SetMode(ctx context.Context, userID string, to policy.Mode, persona policy.Persona, deviceID string, opts Options) error {
	if !to.Valid() {
		return fmt.Errorf("%w: invalid target mode %q", policy.ErrInvalidContext, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !opts.SkipValidation {
		result, err := s.eval.ValidateModeTransition(ctx, policy.TransitionContext{
			UserID:      userID,
			From:        s.current,
			To:          to,
			Persona:     persona,
			DeviceID:    deviceID,
			Reason:      opts.Reason,
			TriggeredBy: opts.TriggeredBy,
		})
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("%w: %s", ErrTransitionBlocked, result.BlockedBy[0].Reason)
		}
		if result.RequiresConfirmation && !opts.Confirmed {
			return fmt.Errorf("%w: %s -> %s", ErrConfirmationRequired, s.current, to)
		}
	}

	from := s.current
	s.current = to
	s.logger.Info("mode transition",
		"from", from,
		"to", to,
		"persona", persona,
		"triggered_by", opts.TriggeredBy,
		"skip_validation", opts.SkipValidation,
	)
	return nil
}

// #endregion set-mode
