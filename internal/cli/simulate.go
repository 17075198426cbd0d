package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/cookbot/internal/scenario"
	"github.com/ChuLiYu/cookbot/internal/worker"
)

func buildSimulateCommand() *cobra.Command {
	var opts worker.Options
	var transcript bool

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Run scenario files on isolated kitchens",
		Long: `Run each scenario file --runs times on a pool of --workers isolated
kitchens and report which runs met their expectations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios := make([]*scenario.Scenario, 0, len(args))
			for _, path := range args {
				s, err := scenario.Load(path)
				if err != nil {
					return err
				}
				scenarios = append(scenarios, s)
			}

			results, err := worker.Simulate(cmd.Context(), scenarios, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if transcript {
				for _, r := range results[:len(scenarios)] {
					if r.Run != nil {
						fmt.Fprintln(out, scenario.Transcript(r.Run))
					}
				}
			}
			sum := worker.Summarize(results)
			for _, f := range sum.Failures {
				fmt.Fprintf(out, "FAIL %s (%s): %v\n", f.Name, f.TaskID, f.Error)
			}
			fmt.Fprintf(out, "runs %d  passed %d  failed %d  orders completed %d\n",
				sum.Runs, sum.Passed, sum.Failed, sum.OrdersCompleted)
			if sum.Failed > 0 {
				return fmt.Errorf("%d of %d runs failed", sum.Failed, sum.Runs)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "parallel kitchens (default: number of CPUs)")
	cmd.Flags().IntVarP(&opts.Runs, "runs", "n", 1, "runs per scenario")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "limit per run")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "print the transcript of the first run of each scenario")
	return cmd
}
