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
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded exchanges",
	Long:  `Every translate and batch request is recorded unless --no-history is set.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent exchanges, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := db.ListExchanges(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list exchanges: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No recorded exchanges.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSCANSION\tIPA\tCACHED\tLATENCY\tERROR\tTEXT\tTRANSLATION")
		for _, e := range list {
			fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%dms\t%s\t%s\t%s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.WithScansion, e.WithIPA, e.Cached, e.LatencyMs,
				e.ErrorClass, snippet(e.Text, 30), snippet(e.Translation, 30))
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise recorded exchanges",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Exchanges:        %d\n", stats.Exchanges)
		fmt.Fprintf(out, "Failed:           %d\n", stats.Failed)
		fmt.Fprintf(out, "  transport:      %d\n", stats.TransportErrors)
		fmt.Fprintf(out, "  decode:         %d\n", stats.DecodeErrors)
		fmt.Fprintf(out, "  contract:       %d\n", stats.ContractErrors)
		fmt.Fprintf(out, "Average latency:  %.1fms\n", stats.AvgLatencyMs)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded exchanges",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearExchanges(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d exchanges.\n", n)
		return nil
	},
}

// snippet shortens s to at most n runes for table output.
func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of exchanges to show (0 for all)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyClearCmd)
}
