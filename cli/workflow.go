package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/engine/core"
	"github.com/agentctl/agentctl/engine/provider"
	"github.com/agentctl/agentctl/engine/run"
	"github.com/agentctl/agentctl/engine/runner"
	"github.com/agentctl/agentctl/engine/schedule"
	"github.com/agentctl/agentctl/engine/workflow"
)

func WorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage and run workflows",
	}
	cmd.AddCommand(
		workflowListCmd(),
		workflowShowCmd(),
		workflowAddCmd(),
		workflowRemoveCmd(),
		workflowValidateCmd(),
		workflowRunCmd(),
		workflowRunsCmd(),
		workflowStatsCmd(),
		workflowPruneCmd(),
	)
	return cmd
}

func workflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			configs, err := openStore(cmd).ListWorkflows(ctx)
			if err != nil {
				return err
			}
			if len(configs) == 0 {
				cmd.Println("No workflows stored.")
				return nil
			}
			for _, cfg := range configs {
				line := fmt.Sprintf("%s  (%d jobs)", cfg.Name, len(cfg.Jobs))
				if cfg.Description != "" {
					line += "  " + cfg.Description
				}
				cmd.Println(line)
			}
			return nil
		},
	}
}

func workflowShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a workflow definition and its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := openStore(cmd).Workflow(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			cmd.Print(string(data))
			for _, spec := range cfg.On.Schedule {
				next, err := schedule.NextRun(spec.Cron, time.Now())
				if err != nil {
					continue
				}
				cmd.Printf("\nNext run for %q: %s\n", spec.Cron, next.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func workflowAddCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Store a workflow from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := workflow.FromYAML(data)
			if err != nil {
				return err
			}
			s := openStore(cmd)
			if force {
				err = s.SaveWorkflow(ctx, cfg)
			} else {
				err = s.CreateWorkflow(ctx, cfg)
			}
			if err != nil {
				return err
			}
			cmd.Printf("Stored workflow %q (%d jobs)\n", cfg.Name, len(cfg.Jobs))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing workflow")
	return cmd
}

func workflowRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a stored workflow (run history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			if err := openStore(cmd).DeleteWorkflow(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("Removed workflow %q\n", args[0])
			return nil
		},
	}
}

func workflowValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow YAML file without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := workflow.FromYAML(data)
			if err != nil {
				return err
			}
			order, err := cfg.TopologicalSort()
			if err != nil {
				return err
			}
			cmd.Printf("Workflow %q is valid.\n", cfg.Name)
			cmd.Printf("Execution order: %s\n", strings.Join(order, " -> "))
			return nil
		},
	}
}

func workflowRunCmd() *cobra.Command {
	var (
		dryRun        bool
		onlyJob       string
		maxConcurrent int
		keepRuns      int
	)
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Execute a workflow's job graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s := openStore(cmd)
			cfg, err := s.Workflow(ctx, args[0])
			if err != nil {
				return err
			}

			exec := runner.NewDAGExecutor(cfg, runner.New(provider.NewClaudeCLI()), s, s, runner.Options{
				MaxConcurrent: maxConcurrent,
				DryRun:        dryRun,
				Job:           onlyJob,
				OnJobUpdate: func(res *run.JobResult) {
					switch res.Status {
					case core.JobRunning:
						cmd.Printf("  > %s started\n", res.JobName)
					case core.JobFailed:
						cmd.Printf("  > %s failed: %s\n", res.JobName, res.ErrorMessage)
					default:
						cmd.Printf("  > %s %s\n", res.JobName, res.Status)
					}
				},
			})

			// Ctrl-C cancels the run instead of killing the process, so
			// the record on disk ends in a terminal state.
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				if _, ok := <-sigs; ok {
					cmd.Println("\nCancelling run...")
					exec.Cancel()
				}
			}()

			r, err := exec.Execute(ctx)
			if err != nil {
				return err
			}
			if !r.IsDryRun {
				if err := s.RecordRunStats(ctx, r); err != nil {
					cmd.PrintErrf("warning: failed to record stats: %v\n", err)
				}
				if _, err := s.PruneRuns(ctx, cfg.Name, keepRuns); err != nil {
					cmd.PrintErrf("warning: failed to prune old runs: %v\n", err)
				}
			}
			cmd.Println()
			cmd.Print(r.Summary())
			if r.Status == core.RunFailed {
				return fmt.Errorf("run %s failed: %s", r.ID[:8], r.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan the run without invoking any agent")
	cmd.Flags().StringVar(&onlyJob, "job", "", "run a single job, ignoring its dependencies")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "cap on simultaneously running jobs")
	cmd.Flags().IntVar(&keepRuns, "keep-runs", 50, "run records to keep per workflow after this run")
	return cmd
}

func workflowRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs <name> [run-id]",
		Short: "List a workflow's runs, or show one run in full",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s := openStore(cmd)

			if len(args) == 2 {
				r, err := s.LoadRun(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				cmd.Print(r.Summary())
				return nil
			}

			runs, err := s.ListRuns(ctx, args[0])
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				cmd.Printf("No runs recorded for %q.\n", args[0])
				return nil
			}
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}
			for _, r := range runs {
				line := fmt.Sprintf("%s  %-9s  %s  $%.4f  %d/%d jobs",
					r.ID[:8], r.Status, r.StartTime.Format("2006-01-02 15:04"),
					r.TotalCost(), r.CompletedJobCount(), len(r.JobResults))
				if r.IsDryRun {
					line += "  (dry run)"
				}
				cmd.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func workflowStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <name>",
		Short: "Show aggregate stats for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			stats, err := openStore(cmd).Stats(ctx, args[0])
			if err != nil {
				return err
			}
			if stats.TotalRuns == 0 {
				cmd.Printf("No runs recorded for %q.\n", args[0])
				return nil
			}
			cmd.Printf("Runs: %d (%d completed, %d failed)\n",
				stats.TotalRuns, stats.SuccessfulRuns, stats.FailedRuns)
			cmd.Printf("Success rate: %.0f%%\n", stats.SuccessRate()*100)
			cmd.Printf("Total cost: $%.4f\n", stats.TotalCost)
			cmd.Printf("Total tokens: %d\n", stats.TotalTokens)
			if avg, ok := stats.AverageCost(); ok {
				cmd.Printf("Average cost per run: $%.4f\n", avg)
			}
			if stats.AverageDuration != nil {
				cmd.Printf("Average duration: %.1fs\n", *stats.AverageDuration)
			}
			if stats.LastRunDate != nil {
				cmd.Printf("Last run: %s (%s)\n",
					stats.LastRunDate.Format(time.RFC3339), *stats.LastRunStatus)
			}
			return nil
		},
	}
}

func workflowPruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune <name>",
		Short: "Delete old run records, keeping the newest ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			pruned, err := openStore(cmd).PruneRuns(ctx, args[0], keep)
			if err != nil {
				return err
			}
			cmd.Printf("Pruned %d run(s), kept the newest %d.\n", pruned, keep)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 10, "number of recent runs to keep")
	return cmd
}
