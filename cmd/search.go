package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/staffv/kbstore/internal/search"
)

var (
	searchCaller    string
	searchThreshold float64
	searchLimit     int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a hybrid search over the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, _, cleanup, err := setup(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		var opts []search.Option
		if cmd.Flags().Changed("threshold") {
			opts = append(opts, search.WithThreshold(searchThreshold))
		}
		if cmd.Flags().Changed("limit") {
			opts = append(opts, search.WithLimit(searchLimit))
		}

		results, err := svc.Search(ctx, searchCaller, args[0], opts...)
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("no results")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSIGNAL\tSIMILARITY\tTITLE")
		for _, r := range results {
			similarity := "-"
			if r.Similarity > 0 {
				similarity = fmt.Sprintf("%.3f", r.Similarity)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Entry.ID, r.Signal, similarity, r.Entry.Title)
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchCaller, "caller", "cli", "caller recorded in the interaction log")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum cosine similarity for vector matches")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
