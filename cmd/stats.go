package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a knowledge base summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, _, cleanup, err := setup(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		snap, err := svc.Snapshot(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("entries:             %d (url %d, document %d, manual %d)\n",
			snap.TotalEntries, snap.URLEntries, snap.DocumentEntries, snap.ManualEntries)
		fmt.Printf("embedded:            %d\n", snap.EmbeddedEntries)
		fmt.Printf("pending embedding:   %d\n", snap.PendingEmbedding)
		fmt.Printf("tracked urls:        %d\n", snap.TrackedURLs)
		fmt.Printf("uploaded documents:  %d (%d processed)\n",
			snap.UploadedDocuments, snap.ProcessedDocuments)
		if !snap.LastUpdatedAt.IsZero() {
			fmt.Printf("last updated:        %s\n", snap.LastUpdatedAt.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
