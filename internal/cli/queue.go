package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewQueueCmd создаёт группу команд для очереди выполнения.
func NewQueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the execution queue",
	}

	cmd.AddCommand(
		newQueueShowCmd(clientFn, outputFn),
		newQueueClearCmd(clientFn, outputFn),
	)

	return cmd
}

func newQueueShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show execution queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			queue, err := client.GetQueue()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"QUEUED", "ACTIVE", "TOTAL_SUCCEEDED", "TOTAL_FAILED"},
				[][]string{{
					strconv.Itoa(queue.Queued),
					strconv.Itoa(queue.Active),
					strconv.FormatInt(queue.TotalSucceeded, 10),
					strconv.FormatInt(queue.TotalFailed, 10),
				}},
				queue,
			)
			return nil
		},
	}
}

func newQueueClearCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop queued jobs that have not started (operator remediation)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			cleared, err := client.ClearQueue()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cleared %d queued jobs", cleared.Cleared))
			out.Print(
				[]string{"CLEARED"},
				[][]string{{strconv.Itoa(cleared.Cleared)}},
				cleared,
			)
			return nil
		},
	}
}
