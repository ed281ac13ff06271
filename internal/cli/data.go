package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewPreviewCmd создаёт команду превью датасета.
func NewPreviewCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show dataset summary and sample rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.Preview()
			if err != nil {
				return err
			}
			if out.jsonMode {
				out.JSON(p)
				return nil
			}

			fmt.Fprintf(out.w, "Source: %s, %d rows, %d columns\n\n", p.Source, p.Rows, p.Columns)

			colRows := make([][]string, len(p.ColumnNames))
			for i, c := range p.ColumnNames {
				colRows[i] = []string{c, p.Dtypes[c], strconv.Itoa(p.NullCounts[c])}
			}
			out.Table([]string{"COLUMN", "DTYPE", "NULLS"}, colRows)

			sample := p.SampleData
			if rows >= 0 && len(sample) > rows {
				sample = sample[:rows]
			}
			if len(sample) == 0 {
				return nil
			}

			fmt.Fprintln(out.w)
			sampleRows := make([][]string, len(sample))
			for i, rec := range sample {
				row := make([]string, len(p.ColumnNames))
				for j, c := range p.ColumnNames {
					if v := rec[c]; v != nil {
						row[j] = fmt.Sprint(v)
					}
				}
				sampleRows[i] = row
			}
			out.Table(p.ColumnNames, sampleRows)
			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 10, "Number of sample rows to show")

	return cmd
}

// NewModelCmd создаёт команду сведений о модели.
func NewModelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "model",
		Short: "Show trained model artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			info, err := client.ModelInfo()
			if err != nil {
				return err
			}
			if out.jsonMode {
				out.JSON(info)
				return nil
			}

			out.Table([]string{"ARTIFACT", "PRESENT"}, [][]string{
				{"model.pkl", strconv.FormatBool(info.ModelExists)},
				{"scaler.pkl", strconv.FormatBool(info.ScalerExists)},
				{"columns.pkl", strconv.FormatBool(info.ColumnsExists)},
				{"country_mapping.json", strconv.FormatBool(info.CountryMappingExists)},
				{"stockcode_mapping.json", strconv.FormatBool(info.StockCodeMappingExists)},
			})
			countries := append([]string(nil), info.Countries...)
			sort.Strings(countries)
			if len(info.Features) > 0 || len(countries) > 0 {
				out.Blank()
				out.Fields(
					Field{"Features", strings.Join(info.Features, ", ")},
					Field{"Countries", strings.Join(countries, ", ")},
				)
			}
			return nil
		},
	}
}

// NewPredictCmd создаёт команду запроса предсказания.
func NewPredictCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Send a prediction request to the inference service",
		Long: "Send a JSON prediction request. The body is taken from --data, " +
			"or from stdin when --data is \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload := []byte(data)
			if data == "-" {
				var err error
				if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if !json.Valid(payload) {
				return fmt.Errorf("request body is not valid JSON")
			}

			res, err := client.Predict(payload)
			if err != nil {
				return err
			}

			var v any
			if err := json.Unmarshal(res.Body, &v); err != nil {
				_, _ = out.w.Write(res.Body)
			} else {
				out.JSON(v)
			}
			if res.StatusCode >= 400 {
				return fmt.Errorf("inference service returned HTTP %d", res.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body, \"-\" to read stdin")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}
