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
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/loquax/internal/detector"
	"github.com/valpere/loquax/internal/dispatcher"
	"github.com/valpere/loquax/internal/form"
	"github.com/valpere/loquax/internal/loquax"
)

var (
	inputFile    string
	inlineText   string
	outputFile   string
	withScansion bool
	withIPA      bool
	useCache     bool
	noHistory    bool
	checkLatin   bool
	repeatCount  int
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Render Latin text through the Loquax server",
	Long: `Send Latin text to the Loquax server and write the returned rendering.

Input comes from --text, --input <file>, or --input - for stdin. An explicit
--text "" is sent as empty text. Output goes to stdout followed by a newline,
or replaces the content of --output <file> with the translation exactly.

When the server cannot be reached, returns something that is not JSON, or
omits the translation, the output is left untouched and the command fails.

--repeat N fires N overlapping requests with the same input; the response
that arrives last is the one written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile != "" && inputFile != "-" && inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		text, err := form.LoadText(inlineText, cmd.Flags().Changed("text"), inputFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		if checkLatin {
			det := detector.New()
			if ok, conf := det.IsLatin(text); !ok {
				logger.Warn("input does not look like Latin", zap.Float64("latin_confidence", conf))
			}
		}

		opts := []dispatcher.Option{dispatcher.WithLogger(logger)}
		if !noHistory || useCache {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if !noHistory {
				opts = append(opts, dispatcher.WithRecorder(db))
			}
			if useCache {
				opts = append(opts, dispatcher.WithCache(db.Cache()))
			}
		}

		out := form.NewFileForm(text, withScansion, withIPA, outputFile, cmd.OutOrStdout())
		client := newClient()
		ctx := cmd.Context()

		if repeatCount <= 1 {
			d := dispatcher.New(client, out, opts...)
			res, err := d.Dispatch(ctx)
			if err != nil {
				return fmt.Errorf("translation failed (%s): %w", loquax.Classify(err), err)
			}
			if err := finishOutput(cmd, out); err != nil {
				return err
			}
			logger.Info("translation complete",
				zap.Duration("latency", res.Latency),
				zap.Bool("cached", res.Cached))
			return nil
		}

		// Overlapping requests land in memory first; only the final value
		// reaches stdout or the output file.
		mem := form.NewMemoryForm(text, withScansion, withIPA)
		d := dispatcher.New(client, mem, opts...)

		pending := make([]<-chan dispatcher.Result, 0, repeatCount)
		for i := 0; i < repeatCount; i++ {
			pending = append(pending, d.Go(ctx))
		}

		succeeded := 0
		var lastErr error
		for _, ch := range pending {
			res := <-ch
			if res.Err != nil {
				lastErr = res.Err
				continue
			}
			succeeded++
			logger.Debug("request resolved",
				zap.Uint64("seq", res.Seq),
				zap.Bool("superseded", res.Superseded),
				zap.Duration("latency", res.Latency))
		}
		d.Wait()

		if succeeded == 0 {
			return fmt.Errorf("all %d requests failed (%s): %w", repeatCount, loquax.Classify(lastErr), lastErr)
		}

		out.SetOutput(mem.Output())
		if err := finishOutput(cmd, out); err != nil {
			return err
		}
		logger.Info("translation complete",
			zap.Int("requests", repeatCount),
			zap.Int("succeeded", succeeded))
		return nil
	},
}

// finishOutput reports a failed output write and ends stdout output with a
// newline. Files keep the translation exactly as received.
func finishOutput(cmd *cobra.Command, out *form.FileForm) error {
	if err := out.Err(); err != nil {
		return err
	}
	if outputFile == "" {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file with Latin text (\"-\" for stdin)")
	translateCmd.Flags().StringVar(&inlineText, "text", "", "Latin text to send (takes precedence over --input)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	translateCmd.Flags().BoolVar(&withScansion, "scansion", false, "Request scansion marks")
	translateCmd.Flags().BoolVar(&withIPA, "ipa", false, "Request IPA transcription")

	translateCmd.Flags().BoolVar(&useCache, "cache", false, "Reuse previous responses for identical requests")
	translateCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the exchange in the history database")
	translateCmd.Flags().BoolVar(&checkLatin, "check-latin", false, "Warn when the input does not look like Latin")
	translateCmd.Flags().IntVar(&repeatCount, "repeat", 1, "Number of overlapping requests to fire")
}
