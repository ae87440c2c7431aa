package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для журнала идемпотентности.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Inspect the idempotency ledger",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionStatsCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			executions, err := client.ListExecutions(ListExecutionsOpts{
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"EXECUTION_ID", "STATUS", "ATTEMPT", "STARTED", "FINISHED", "ERROR"}
			rows := make([][]string, len(executions))
			for i, e := range executions {
				rows[i] = []string{
					e.ExecutionID,
					e.Status,
					strconv.Itoa(e.Attempt),
					e.StartedAt,
					e.FinishedAt,
					e.ErrorSummary,
				}
			}

			out.Print(headers, rows, executions)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records")

	return cmd
}

func newExecutionStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregated execution statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.GetStats(hours)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"WINDOW", "TOTAL", "COMPLETED", "FAILED", "RUNNING", "SUCCESS_RATE", "AVG_DURATION"},
				[][]string{{
					stats.Window,
					strconv.Itoa(stats.Total),
					strconv.Itoa(stats.Completed),
					strconv.Itoa(stats.Failed),
					strconv.Itoa(stats.Running),
					formatRate(stats.SuccessRate),
					stats.AvgDuration,
				}},
				stats,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 0, "Aggregation window in hours (default: server-side 24h)")

	return cmd
}
