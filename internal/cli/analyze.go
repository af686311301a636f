package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

func newAnalyzeCmd(_ *env) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Extract bias signals from text (arguments or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) > 0 {
				text = strings.Join(args, " ")
			} else {
				data, err := readInput(nil, cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}

			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return err
				}
				now = t
			}
			return printJSON(cmd.OutOrStdout(), signals.Analyze(text, now))
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Timestamp recorded on the signals (RFC 3339, default now)")

	return cmd
}
