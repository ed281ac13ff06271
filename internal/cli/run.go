package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// NewRunsCmd создаёт группу команд истории запусков.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline run history",
	}

	cmd.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsShowCmd(clientFn, outputFn),
		newRunsActiveCmd(clientFn, outputFn),
	)

	return cmd
}

var runHeaders = []string{"ID", "FILENAME", "STATUS", "FAILED_PHASE", "DURATION", "STARTED"}

func runRow(r RunResponse) []string {
	duration := ""
	if r.DurationMs > 0 {
		duration = (time.Duration(r.DurationMs) * time.Millisecond).String()
	}
	return []string{r.ID, r.Filename, r.Status, r.FailedPhase, duration, r.StartedAt}
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(
				append(runHeaders, "ERROR"),
				[][]string{append(runRow(*run), run.Error)},
				run,
			)
			return nil
		},
	}
}

func newRunsActiveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the run in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.ActiveRun()
			if err != nil {
				return err
			}

			out.Print(runHeaders, [][]string{runRow(*run)}, run)
			return nil
		},
	}
}
