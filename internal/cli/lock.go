package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewLockCmd создаёт группу команд для распределённой блокировки.
func NewLockCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and manage the coordinator lock",
	}

	cmd.AddCommand(
		newLockShowCmd(clientFn, outputFn),
		newLockReleaseCmd(clientFn, outputFn),
	)

	return cmd
}

func newLockShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current coordinator lease",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			lock, err := client.GetLock()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"HELD", "RESOURCE", "HOLDER_ID", "ACQUIRED_AT", "EXPIRES_AT"},
				[][]string{{
					strconv.FormatBool(lock.Held),
					lock.ResourceName,
					lock.HolderID,
					lock.AcquiredAt,
					lock.ExpiresAt,
				}},
				lock,
			)
			return nil
		},
	}
}

func newLockReleaseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "release HOLDER_ID",
		Short: "Force-release the lease held by HOLDER_ID (operator remediation)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			released, err := client.ReleaseLock(args[0])
			if err != nil {
				return err
			}

			if released.Released {
				out.Success("Lock released: " + args[0])
			}
			out.Print(
				[]string{"RELEASED"},
				[][]string{{strconv.FormatBool(released.Released)}},
				released,
			)
			return nil
		},
	}
}
