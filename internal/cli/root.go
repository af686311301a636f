// Package cli wires Cobra subcommands to the composer packages; it holds no
// composition logic of its own.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-prompt/internal/config"
	"github.com/danielpatrickdp/adaptive-prompt/internal/logging"
)

// env is the state shared by every subcommand once the root pre-run has loaded it.
type env struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	e := &env{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "composer",
		Short: "Heuristic prompt composer",
		// main renders fatal errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = e.logger.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "Config file (default ./composer.yaml if present)")

	root.AddCommand(newComposeCmd(e))
	root.AddCommand(newAnalyzeCmd(e))
	root.AddCommand(newServeCmd(e))
	root.AddCommand(newReplayCmd(e))
	root.AddCommand(newInspectCmd(e))
	root.AddCommand(newExportCmd(e))
	root.AddCommand(newVersionCmd())

	return root
}
