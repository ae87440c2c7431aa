package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewBreakerCmd создаёт группу команд для circuit breaker'а.
func NewBreakerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Manage the circuit breaker",
	}

	cmd.AddCommand(
		newBreakerShowCmd(clientFn, outputFn),
		newBreakerResetCmd(clientFn, outputFn),
	)

	return cmd
}

func breakerRow(b *BreakerResponse) ([]string, []string) {
	headers := []string{"STATE", "CONSEC_FAILURES", "TOTAL_CALLS", "TOTAL_FAILURES", "SHORT_CIRCUITS", "OPENED_AT"}
	row := []string{
		b.State,
		strconv.Itoa(b.ConsecutiveFailures),
		strconv.FormatInt(b.TotalCalls, 10),
		strconv.FormatInt(b.TotalFailures, 10),
		strconv.FormatInt(b.TotalShortCircuits, 10),
		b.OpenedAt,
	}
	return headers, row
}

func newBreakerShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show circuit breaker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			breaker, err := client.GetBreaker()
			if err != nil {
				return err
			}

			headers, row := breakerRow(breaker)
			out.Print(headers, [][]string{row}, breaker)
			return nil
		},
	}
}

func newBreakerResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Force the circuit breaker closed (operator remediation)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			breaker, err := client.ResetBreaker()
			if err != nil {
				return err
			}

			out.Success("Circuit breaker reset")
			headers, row := breakerRow(breaker)
			out.Print(headers, [][]string{row}, breaker)
			return nil
		},
	}
}
