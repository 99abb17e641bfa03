package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/engine/agent"
)

func AgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage reusable agent templates",
	}
	cmd.AddCommand(
		agentListCmd(),
		agentShowCmd(),
		agentAddCmd(),
		agentRemoveCmd(),
	)
	return cmd
}

func agentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored agent templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			agents, err := openStore(cmd).ListAgents(ctx)
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				cmd.Println("No agents stored.")
				return nil
			}
			for _, cfg := range agents {
				line := cfg.Name
				if cfg.Description != "" {
					line += "  " + cfg.Description
				}
				cmd.Println(line)
			}
			return nil
		},
	}
}

func agentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show an agent template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := openStore(cmd).Agent(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			cmd.Print(string(data))
			return nil
		},
	}
}

func agentAddCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Store an agent template from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := agent.FromYAML(data)
			if err != nil {
				return err
			}
			s := openStore(cmd)
			if force {
				err = s.SaveAgent(ctx, cfg)
			} else {
				err = s.CreateAgent(ctx, cfg)
			}
			if err != nil {
				return err
			}
			cmd.Printf("Stored agent %q\n", cfg.Name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing agent")
	return cmd
}

func agentRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a stored agent template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			if err := openStore(cmd).DeleteAgent(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("Removed agent %q\n", args[0])
			return nil
		},
	}
}
