package cli

import (
	"context"

	"github.com/cloaked-ai/cloak/pkg/config"
	"github.com/cloaked-ai/cloak/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the cloak command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cloak",
		Short:         "Privacy-preserving middleware between you and a hosted LLM",
		Long:          "cloak detects sensitive values in conversation turns, substitutes stable per-thread tokens before the model sees them, and restores the originals in the response.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newChatCmd())
	root.AddCommand(newThreadsCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	// Local development convenience; missing .env files are fine.
	_ = godotenv.Load()
	return NewRootCmd().Execute()
}

// setupContext loads configuration and attaches a configured logger to the
// command context.
func setupContext(cmd *cobra.Command) (context.Context, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewLogger(&logger.Config{
		Level: logger.LogLevel(cfg.Runtime.LogLevel),
		JSON:  cfg.Runtime.LogJSON,
	})
	return logger.ContextWithLogger(cmd.Context(), log), cfg, nil
}
