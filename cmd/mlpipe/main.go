// mlpipe CLI — инструмент командной строки для работы с ML pipeline
// через HTTP API.
//
// Использование:
//
//	mlpipe [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	upload    Загрузить датасет и запустить pipeline
//	status    Статус pipeline (--watch — следить до завершения)
//	preview   Превью датасета
//	model     Артефакты обученной модели
//	predict   Запрос к inference worker'у
//	clear     Остановить inference и удалить данные
//	runs      История запусков
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/mlpipe/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "mlpipe",
		Short:         "mlpipe CLI — ML pipeline orchestrator client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("MLPIPE_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewUploadCmd(clientFn, outputFn),
		cli.NewStatusCmd(clientFn, outputFn),
		cli.NewClearCmd(clientFn, outputFn),
		cli.NewPreviewCmd(clientFn, outputFn),
		cli.NewModelCmd(clientFn, outputFn),
		cli.NewPredictCmd(clientFn, outputFn),
		cli.NewRunsCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
