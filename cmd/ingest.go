package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/staffv/kbstore/internal/provenance"
)

const fetchTimeout = 30 * time.Second

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add content to the knowledge base",
}

var ingestURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Fetch a web page and ingest its content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, _, cleanup, err := setup(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		rawHTML, err := fetchPage(ctx, args[0])
		if err != nil {
			return err
		}

		res, err := svc.IngestURL(ctx, rawHTML, args[0])
		if err != nil {
			return err
		}

		if res.Rescrape {
			fmt.Printf("updated entry %s (re-scrape)\n", res.EntryID)
		} else {
			fmt.Printf("stored entry %s\n", res.EntryID)
		}
		if !res.Embedded {
			fmt.Println("warning: embedding unavailable, entry is lexical-only")
		}
		return nil
	},
}

var uploadedBy string

var ingestFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Ingest an extracted-text file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, _, cleanup, err := setup(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", args[0], err)
		}

		filename := filepath.Base(args[0])
		res, err := svc.IngestDocument(ctx, provenance.CreateDocumentParams{
			Filename:    filename,
			FileType:    strings.TrimPrefix(filepath.Ext(filename), "."),
			FileSize:    int64(len(raw)),
			StoragePath: args[0],
			UploadedBy:  uploadedBy,
		}, raw)
		if err != nil {
			return err
		}

		fmt.Printf("stored entry %s (document %s)\n", res.EntryID, res.DocumentID)
		if !res.Embedded {
			fmt.Println("warning: embedding unavailable, entry is lexical-only")
		}
		return nil
	},
}

var ingestManualCmd = &cobra.Command{
	Use:   "manual <title> <content>",
	Short: "Ingest manually entered text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, _, cleanup, err := setup(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := svc.IngestManual(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("stored entry %s\n", res.EntryID)
		return nil
	},
}

func fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", pageURL, err)
	}

	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %q: status %d", pageURL, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func init() {
	ingestFileCmd.Flags().StringVar(&uploadedBy, "uploaded-by", "", "who uploaded the file")

	ingestCmd.AddCommand(ingestURLCmd)
	ingestCmd.AddCommand(ingestFileCmd)
	ingestCmd.AddCommand(ingestManualCmd)
	rootCmd.AddCommand(ingestCmd)
}
