/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/loquax/internal/batch"
	"github.com/valpere/loquax/internal/dispatcher"
	"github.com/valpere/loquax/internal/loquax"
)

var (
	batchInputFile  string
	batchOutputFile string
	batchColumn     int
	batchHeader     bool
	batchLines      bool
	batchScansion   bool
	batchIPA        bool
	batchWorkers    int
	batchCache      bool
	batchNoHistory  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Render every row of a CSV or text file",
	Long: `Send each row of an input file to the Loquax server concurrently and
write a CSV with the original columns plus "translation" and "error".

By default the input is CSV and column 0 holds the Latin text. Use -l to pick
another column (0-indexed), --header when the first row is a header, or
--lines to treat each line of a plain text file as one request.

Failed rows keep an empty translation and carry the error class.

Example:
  loquax batch -i verses.csv -o scanned.csv -l 1 --header --scansion
  loquax batch -i aeneid.txt --lines -o aeneid.csv --ipa --workers 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchInputFile == batchOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		records, err := readBatchInput(batchInputFile, batchLines)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("input file is empty")
		}

		var header []string
		if batchHeader && !batchLines {
			header, records = records[0], records[1:]
		}

		texts := make([]string, len(records))
		for i, row := range records {
			if batchColumn < 0 || batchColumn >= len(row) {
				return fmt.Errorf("row %d has no column %d", i, batchColumn)
			}
			texts[i] = row[batchColumn]
		}

		var opts []dispatcher.Option
		if !batchNoHistory || batchCache {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if !batchNoHistory {
				opts = append(opts, dispatcher.WithRecorder(db))
			}
			if batchCache {
				opts = append(opts, dispatcher.WithCache(db.Cache()))
			}
		}

		runner := batch.New(newClient(), batch.Config{
			Workers: batchWorkers,
			Timeout: cfg.Timeout,
		}, logger, opts...)

		result := runner.Execute(cmd.Context(), texts, batchScansion, batchIPA)

		out := make([][]string, 0, len(records)+1)
		if header != nil {
			out = append(out, append(append([]string{}, header...), "translation", "error"))
		}
		for i, row := range records {
			item := result.Items[i]
			outRow := append(append([]string{}, row...), item.Translation, loquax.Classify(item.Err))
			out = append(out, outRow)
		}

		outFile, err := os.Create(batchOutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output CSV: %w", err)
		}
		defer outFile.Close()

		writer := csv.NewWriter(outFile)
		if err := writer.WriteAll(out); err != nil {
			return fmt.Errorf("failed to write output CSV: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("failed to flush output CSV: %w", err)
		}

		logger.Info("batch complete",
			zap.Int("rows", len(records)),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed))
		fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d/%d rows into %s\n", result.Succeeded, len(records), batchOutputFile)

		if result.Succeeded == 0 {
			return fmt.Errorf("all %d rows failed", len(records))
		}
		return nil
	},
}

// readBatchInput returns CSV records, or one single-column record per
// non-empty line when lines is set.
func readBatchInput(path string, lines bool) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	if !lines {
		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		return records, nil
	}

	var records [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			records = append(records, []string{line})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return records, nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchInputFile, "input", "i", "", "Input CSV or text file (required)")
	batchCmd.Flags().StringVarP(&batchOutputFile, "output", "o", "", "Output CSV file (required)")
	batchCmd.Flags().IntVarP(&batchColumn, "column", "l", 0, "Column holding the Latin text (0-indexed)")
	batchCmd.Flags().BoolVar(&batchHeader, "header", false, "First CSV row is a header")
	batchCmd.Flags().BoolVar(&batchLines, "lines", false, "Treat the input as plain text, one request per line")
	batchCmd.Flags().BoolVar(&batchScansion, "scansion", false, "Request scansion marks")
	batchCmd.Flags().BoolVar(&batchIPA, "ipa", false, "Request IPA transcription")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", batch.DefaultWorkers, "Maximum concurrent requests")
	batchCmd.Flags().BoolVar(&batchCache, "cache", false, "Reuse previous responses for identical requests")
	batchCmd.Flags().BoolVar(&batchNoHistory, "no-history", false, "Do not record exchanges in the history database")

	batchCmd.MarkFlagRequired("input")
	batchCmd.MarkFlagRequired("output")
}
