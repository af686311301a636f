package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/eval"
)

// errCheckFailed is returned by compose --check when the eval harness rejects
// the composition.
var errCheckFailed = errors.New("composition failed checks")

type composeOutput struct {
	Modules []string         `json:"modules"`
	Prompt  string           `json:"prompt"`
	Debug   *composer.Debug  `json:"debug,omitempty"`
	Eval    *eval.EvalResult `json:"eval,omitempty"`
}

func newComposeCmd(e *env) *cobra.Command {
	var (
		debug      bool
		check      bool
		strict     bool
		catalogDir string
	)

	cmd := &cobra.Command{
		Use:   "compose [decision.json|-]",
		Short: "Compose a prompt from a decision (JSON from a file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			var d decision.Decision
			if err := json.Unmarshal(data, &d); err != nil {
				return fmt.Errorf("parse decision: %w", err)
			}
			if strict {
				if err := d.Validate(); err != nil {
					return err
				}
			}
			d.Heuristics = d.Heuristics.WithDefaults(e.cfg.HeuristicsDefaults())

			dir := e.cfg.Catalog.Dir
			if cmd.Flags().Changed("catalog") {
				dir = catalogDir
			}
			cat, err := loadCatalog(dir)
			if err != nil {
				return err
			}

			res := composer.Compose(d, cat, composer.WithLogger(e.logger))

			// Plain output is the prompt alone so it can be piped.
			if !debug && !check {
				_, err := fmt.Fprint(cmd.OutOrStdout(), res.Prompt)
				return err
			}

			out := composeOutput{Prompt: res.Prompt, Modules: moduleIDs(res.Modules)}
			if debug {
				out.Debug = &res.Debug
			}
			var ev eval.EvalResult
			if check {
				ev = eval.NewEvalHarness(e.cfg.EvalSettings()).Run(res, cat)
				out.Eval = &ev
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if check && !ev.Passed {
				return fmt.Errorf("%w: %s", errCheckFailed, ev.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Print JSON with the debug record")
	cmd.Flags().BoolVar(&check, "check", false, "Run composition checks and fail if any does not pass")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject decisions that fail validation")
	cmd.Flags().StringVar(&catalogDir, "catalog", "", "Catalog directory (overrides catalog.dir)")

	return cmd
}

// moduleIDs lists the ids of modules in prompt order.
func moduleIDs(mods []catalog.Module) []string {
	ids := make([]string, len(mods))
	for i, m := range mods {
		ids[i] = m.ID
	}
	return ids
}
