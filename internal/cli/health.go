package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewHealthCmd создаёт команду сводного состояния координатора.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show coordinator health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			health, err := client.GetHealth()
			if err != nil {
				return err
			}

			lockHolder := "-"
			if health.Lock.Held {
				lockHolder = health.Lock.HolderID
			}

			out.Print(
				[]string{"STATUS", "SCORE", "BREAKER", "QUEUED", "ACTIVE", "SUCCESS_RATE", "LOCK_HOLDER"},
				[][]string{{
					health.Status,
					strconv.Itoa(health.Score),
					health.Breaker.State,
					strconv.Itoa(health.Queue.Queued),
					strconv.Itoa(health.Queue.Active),
					formatRate(health.Stats.SuccessRate),
					lockHolder,
				}},
				health,
			)

			if len(health.Issues) > 0 {
				out.Success("Issues:\n  - " + strings.Join(health.Issues, "\n  - "))
			}
			return nil
		},
	}
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 1, 64) + "%"
}
