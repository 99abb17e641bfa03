package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/engine/store"
	"github.com/agentctl/agentctl/pkg/logger"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Schedule and orchestrate LLM agent workflows",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("dir", store.DefaultBaseDir, "base directory for stored state")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, disabled)")

	root.AddCommand(
		WorkflowCmd(),
		AgentCmd(),
	)

	return root
}

// commandContext builds the context every command runs with: the base
// context plus a logger configured from the persistent flags.
func commandContext(cmd *cobra.Command) context.Context {
	level, _ := cmd.Flags().GetString("log-level")
	log := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(level),
		Output: cmd.ErrOrStderr(),
	})
	return logger.ContextWithLogger(cmd.Context(), log)
}

// openStore opens the state store rooted at the --dir flag.
func openStore(cmd *cobra.Command) *store.Store {
	dir, _ := cmd.Flags().GetString("dir")
	return store.New(dir)
}
