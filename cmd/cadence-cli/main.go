// Cadence CLI — инструмент командной строки для диагностики
// и remediation координатора через Health Facade.
//
// Использование:
//
//	cadence [--api-url URL] [--token TOKEN] [--json] <command> [flags]
//
// Команды:
//
//	health     Сводное состояние координатора
//	execution  Журнал идемпотентности
//	breaker    Circuit breaker
//	queue      Очередь выполнения
//	lock       Распределённая блокировка
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cadence/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var token string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "cadence",
		Short:         "Cadence CLI — scheduled job coordinator tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "Coordinator API URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CADENCE_ADMIN_TOKEN"), "Admin token for remediation commands")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, token) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewHealthCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
		cli.NewBreakerCmd(clientFn, outputFn),
		cli.NewQueueCmd(clientFn, outputFn),
		cli.NewLockCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
