// Command lifeosctl exercises the decision engine from the shell: evaluate
// actions, classify personas, validate and commit mode transitions, inspect
// constraints, and run learning actions against a configured backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/config"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/engine"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/learning"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/modes"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/persona"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// #region globals

var (
	configFlag  string
	userFlag    string
	modeFlag    string
	personaFlag string
	deviceFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "lifeosctl",
	Short:         "Inspect and exercise the life-OS decision engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "user id (empty = system scope)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", string(policy.ModeDefault), "active mode")
	rootCmd.PersistentFlags().StringVar(&personaFlag, "persona", "", "active persona (empty = unclassified)")
	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "device id")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(constraintsCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(decisionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// open builds an engine from the configured backend. The caller must Close.
func open(ctx context.Context) (*engine.Engine, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	return engine.Build(ctx, cfg, engine.NewLogger(cfg.Logging))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// #endregion globals

// #region evaluate

var (
	toolFlag   string
	actionFlag string
	riskFlag   string
	roleFlag   string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a proposed action against the active constraints",
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&toolFlag, "tool", "", "tool id")
	evaluateCmd.Flags().StringVar(&actionFlag, "action", "", "action name")
	evaluateCmd.Flags().StringVar(&riskFlag, "risk", string(policy.RiskLow), "estimated risk (low|medium|high)")
	evaluateCmd.Flags().StringVar(&roleFlag, "role", "", "actor role")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := open(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.EvaluateAction(ctx, policy.ActionContext{
		UserID:        userFlag,
		DeviceID:      deviceFlag,
		Role:          roleFlag,
		Action:        actionFlag,
		ToolID:        toolFlag,
		EstimatedRisk: policy.Risk(riskFlag),
		Mode:          policy.Mode(modeFlag),
		Persona:       policy.Persona(personaFlag),
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

// #endregion evaluate

// #region classify

var (
	sessionFlag string
	featureFlag string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify the active persona for a context",
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&sessionFlag, "session", "", "session id")
	classifyCmd.Flags().StringVar(&featureFlag, "feature", "", "active feature")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := open(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	result := eng.ClassifyPersona(persona.Context{
		UserID:        userFlag,
		SessionID:     sessionFlag,
		DeviceID:      deviceFlag,
		Mode:          policy.Mode(modeFlag),
		ActiveFeature: featureFlag,
		Explicit:      policy.Persona(personaFlag),
		Timestamp:     time.Now(),
	})
	return printJSON(result)
}

// #endregion classify

// #region mode

var (
	confirmFlag        string
	skipValidationFlag bool
	reasonFlag         string
)

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Inspect or change the current mode",
}

var modeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current mode descriptor",
	RunE:  runModeGet,
}

var modeSetCmd = &cobra.Command{
	Use:   "set <mode>",
	Short: "Validate and commit a mode transition",
	Args:  cobra.ExactArgs(1),
	RunE:  runModeSet,
}

func init() {
	modeSetCmd.Flags().StringVar(&confirmFlag, "confirm", "", "set to yes to acknowledge a confirmation request")
	modeSetCmd.Flags().BoolVar(&skipValidationFlag, "skip-validation", false, "commit without consulting constraints")
	modeSetCmd.Flags().StringVar(&reasonFlag, "reason", "", "reason recorded on the transition")
	modeCmd.AddCommand(modeGetCmd)
	modeCmd.AddCommand(modeSetCmd)
}

func runModeGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := open(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()
	return printJSON(eng.ModeDescriptor())
}

func runModeSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := open(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	to := policy.Mode(args[0])
	err = eng.SetMode(ctx, userFlag, to, policy.Persona(personaFlag), deviceFlag, modes.Options{
		SkipValidation: skipValidationFlag,
		Confirmed:      confirmFlag == "yes",
		Reason:         reasonFlag,
		TriggeredBy:    "lifeosctl",
	})
	switch {
	case errors.Is(err, modes.ErrConfirmationRequired):
		fmt.Println("transition requires confirmation; rerun with --confirm=yes")
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("mode set to %s\n", to)
	return nil
}

// #endregion mode

// #region constraints

var constraintsCmd = &cobra.Command{
	Use:   "constraints",
	Short: "Work with stored constraints",
}

var constraintsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active constraints for the given scope",
	RunE:  runConstraintsList,
}

func init() {
	constraintsCmd.AddCommand(constraintsListCmd)
}

func runConstraintsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := open(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	active, err := eng.ActiveConstraints(ctx, userFlag, policy.Mode(modeFlag), policy.Persona(personaFlag))
	if err != nil {
		return err
	}
	return printJSON(active)
}

// #endregion constraints

// #region decisions

var limitFlag int

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List the newest decision log entries",
	RunE:  runDecisions,
}

func init() {
	decisionsCmd.Flags().IntVar(&limitFlag, "limit", 20, "maximum entries to show")
}

func runDecisions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := open(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	entries, err := eng.RecentDecisions(ctx, limitFlag)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no decisions recorded")
		return nil
	}
	return printJSON(entries)
}

// #endregion decisions

// #region learn

var (
	patternFlag string
	autoFlag    bool
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Generate and apply learning actions from a detected pattern",
}

var learnActionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Show the actions a pattern file would generate",
	RunE:  runLearnActions,
}

var learnApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Generate actions from a pattern file and run them through the confidence gates",
	RunE:  runLearnApply,
}

func init() {
	learnActionsCmd.Flags().StringVar(&patternFlag, "pattern", "", "path to a pattern JSON file")
	learnApplyCmd.Flags().StringVar(&patternFlag, "pattern", "", "path to a pattern JSON file")
	learnApplyCmd.Flags().BoolVar(&autoFlag, "auto", false, "apply without confirmation where confidence allows")
	learnCmd.AddCommand(learnActionsCmd)
	learnCmd.AddCommand(learnApplyCmd)
}

func loadPattern(path string) (learning.Pattern, error) {
	if path == "" {
		return learning.Pattern{}, fmt.Errorf("--pattern is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return learning.Pattern{}, fmt.Errorf("read pattern: %w", err)
	}
	var p learning.Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return learning.Pattern{}, fmt.Errorf("parse pattern: %w", err)
	}
	return p, nil
}

func runLearnActions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := open(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	p, err := loadPattern(patternFlag)
	if err != nil {
		return err
	}
	return printJSON(eng.GenerateLearningActions(p))
}

func runLearnApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := open(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	p, err := loadPattern(patternFlag)
	if err != nil {
		return err
	}
	actions := eng.GenerateLearningActions(p)
	if len(actions) == 0 {
		fmt.Println("no actions generated")
		return nil
	}

	mode := policy.Mode(modeFlag)
	if autoFlag {
		refs := make([]*learning.Action, len(actions))
		for i := range actions {
			refs[i] = &actions[i]
		}
		result, err := eng.BatchApply(ctx, refs, userFlag, mode)
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	for i := range actions {
		a := &actions[i]
		fmt.Printf("%s: %s (%s -> %s, confidence %.2f)\n",
			a.Type, a.Target, a.CurrentValue, a.SuggestedValue, a.Confidence)
		applied, err := eng.ApplyWithConfirmation(ctx, a, userFlag, mode, true)
		if err != nil {
			return err
		}
		fmt.Printf("  applied=%v status=%s\n", applied, a.Status)
	}
	return nil
}

// #endregion learn
