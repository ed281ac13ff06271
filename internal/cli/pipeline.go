package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// phaseOrder — порядок фаз в выводе.
var phaseOrder = []string{"upload", "conversion", "cleaning", "training", "inference"}

// NewUploadCmd создаёт команду загрузки датасета.
func NewUploadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a dataset (.xlsx or .csv) and start the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.Upload(args[0])
			if err != nil {
				return err
			}

			if !watch {
				out.Print(
					[]string{"FILENAME", "RUN_ID"},
					[][]string{{resp.Filename, resp.RunID}},
					resp,
				)
				return nil
			}

			out.Success(fmt.Sprintf("Pipeline started for %s (run %s)", resp.Filename, resp.RunID))
			return watchStatus(cmd.Context(), client, out)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow pipeline progress until it finishes")

	return cmd
}

// NewStatusCmd создаёт команду просмотра статуса.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var watch bool
	var logs int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if watch {
				return watchStatus(cmd.Context(), client, out)
			}

			status, err := client.Status()
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(status)
				return nil
			}
			printStatus(out, status, logs)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream status updates until the pipeline finishes")
	cmd.Flags().IntVar(&logs, "logs", 10, "Number of recent log entries to show")

	return cmd
}

// NewClearCmd создаёт команду очистки данных.
func NewClearCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Stop the inference service and delete all pipeline data",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.Clear(); err != nil {
				return err
			}

			out.Success("Pipeline data cleared")
			return nil
		},
	}
}

func printStatus(out *Output, status *StatusResponse, logs int) {
	rows := make([][]string, 0, len(phaseOrder))
	for _, p := range phaseOrder {
		st := status.Phases[p]
		rows = append(rows, []string{p, st.Status, st.Message})
	}
	out.Table([]string{"PHASE", "STATUS", "MESSAGE"}, rows)

	out.Blank()
	out.Fields(
		Field{"Current phase", status.CurrentPhase},
		Field{"Model ready", strconv.FormatBool(status.ModelReady)},
	)

	entries := status.Logs
	if logs >= 0 && len(entries) > logs {
		entries = entries[len(entries)-logs:]
	}
	if len(entries) > 0 {
		out.Blank()
		for _, e := range entries {
			printLog(out, e)
		}
	}
}

func printLog(out *Output, e LogEntry) {
	fmt.Fprintf(out.w, "%s [%s] %s\n", e.Timestamp, strings.ToUpper(e.Level), e.Message)
}

// errWatchDone — pipeline завершён, подписку можно закрыть.
var errWatchDone = errors.New("pipeline finished")

// watchStatus печатает журнал по мере поступления и выходит, когда
// pipeline готов или одна из фаз упала.
func watchStatus(ctx context.Context, client *Client, out *Output) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	first := true
	err := client.WatchStatus(ctx, func(ev StatusEvent) error {
		switch {
		case ev.Log != nil:
			if out.jsonMode {
				out.JSON(ev.Log)
			} else {
				printLog(out, *ev.Log)
			}
		case ev.Status != nil:
			// Первый снимок — состояние на момент подключения, для
			// завершённого прошлого run не выходим сразу.
			if first {
				first = false
				return nil
			}
			if finished, failed := pipelineDone(ev.Status); finished {
				if out.jsonMode {
					out.JSON(ev.Status)
				}
				if failed != "" {
					out.Error(fmt.Sprintf("phase %s failed: %s", failed, ev.Status.Phases[failed].Message))
				} else {
					out.Success("Model ready")
				}
				return errWatchDone
			}
		}
		return nil
	})
	if errors.Is(err, errWatchDone) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pipelineDone — модель готова или есть фаза в error.
func pipelineDone(s *StatusResponse) (bool, string) {
	if s.ModelReady {
		return true, ""
	}
	for _, p := range phaseOrder {
		if s.Phases[p].Status == "error" {
			return true, p
		}
	}
	return false, ""
}
