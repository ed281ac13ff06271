// mlpipe-server — оркестратор ML pipeline и его HTTP API.
//
// Сервер:
//   - Принимает upload датасета и запускает pipeline в фоне
//   - Запускает stage-worker'ы (conversion, cleaning, training) и inference worker
//   - Отдаёт статус по HTTP и WebSocket
//   - Опционально пишет историю runs в PostgreSQL и ретранслирует статус в RabbitMQ
//
// Использование:
//
//	mlpipe-server [serve]
//	mlpipe-server trigger FILENAME
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "mlpipe-server",
		Short:         "ML pipeline orchestrator server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the API server and pipeline orchestrator",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "trigger FILENAME",
			Short: "Queue a pipeline run for a file already in the raw data directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return trigger(cmd.Context(), args[0])
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
