package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/prompt-patrol/internal/engine"
	"github.com/timvw/prompt-patrol/internal/model"
	"github.com/timvw/prompt-patrol/internal/predicate"
)

var flagStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a conversation and predicates without sampling",
	Long: `Parse the conversation and predicates exactly as run does and apply the
same checks: at least one predicate, unique ids, known types and a positive
trial count. No model is contacted.

Patterns that do not compile are reported as warnings, because run counts
them as never matching rather than failing. Use --strict to treat them as
errors.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRunFlags(cmd); err != nil {
			return err
		}
		req, err := buildRequest(cfg.Trials)
		if err != nil {
			return err
		}
		if err := engine.Validate(req); err != nil {
			return err
		}

		var broken int
		for _, p := range req.Predicates {
			if p.Kind != model.KindPattern {
				continue
			}
			if err := predicate.CheckPattern(p.Spec); err != nil {
				broken++
				logger.Warn().Str("predicate_id", p.ID).Err(err).Msg("pattern does not compile; it will never match")
			}
		}
		if flagStrict && broken > 0 {
			return fmt.Errorf("%w: %d pattern(s) do not compile", model.ErrConfig, broken)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Messages   int      `json:"messages"`
			Predicates []string `json:"predicates"`
			Trials     int      `json:"trials"`
			Broken     int      `json:"broken_patterns"`
		}{
			Messages:   len(req.Conversation),
			Predicates: predicateIDs(req.Predicates),
			Trials:     req.Trials,
			Broken:     broken,
		})
	},
}

func init() {
	addInputFlags(validateCmd)
	validateCmd.Flags().IntVarP(&flagTrials, "trials", "n", 0, "number of sampled responses to validate (default: 1)")
	validateCmd.Flags().BoolVar(&flagStrict, "strict", false, "fail when a pattern does not compile")
	rootCmd.AddCommand(validateCmd)
}

func predicateIDs(preds []model.Predicate) []string {
	ids := make([]string, len(preds))
	for i, p := range preds {
		ids[i] = p.ID
	}
	return ids
}
