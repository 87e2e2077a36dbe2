package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	ingest "github.com/MayukhDg/BidWinnerAI-prod/internal/core/ingestion_engine"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/retrieval"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

type envFunc func() (*env, error)

func newIngestCmd(load envFunc) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ingest [document-id]",
		Short: "Run the ingestion pipeline for one document and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := e.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Pipeline.Ingest(ctx, args[0])
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "give up after this long")
	return cmd
}

func newSearchCmd(load envFunc) *cobra.Command {
	var (
		tenant string
		k      int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search one tenant's indexed proposals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return errors.New("--tenant is required")
			}
			e, err := load()
			if err != nil {
				return err
			}
			a, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.Retrieval.Search(cmd.Context(), args[0], tenant, k)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, results)
			}
			printResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant (user) id to search as")
	cmd.Flags().IntVar(&k, "k", retrieval.DefaultK, "maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func newReapCmd(load envFunc) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Fail documents stuck in processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = e.cfg.Pipeline.ProcessingTimeout
			}
			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			ids, err := ingest.NewReaper(store, olderThan, time.Minute, e.logger).Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("reap failed: %w", err)
			}
			cmd.Printf("failed %d stale document(s)\n", len(ids))
			for _, id := range ids {
				cmd.Printf("  %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "processing age after which a document is failed")
	return cmd
}

func newMigrateCmd(load envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return err
			}
			cmd.Println("schema is up to date")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printResults(cmd *cobra.Command, results []models.ScoredChunk) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		cmd.Printf("  [%d] %s #%d (%.3f)\n", i+1, r.DocumentID, r.ChunkIndex, r.Score)
		cmd.Printf("      %s\n", snippet(r.Content, 160))
	}
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
