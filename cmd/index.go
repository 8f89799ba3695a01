package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/config"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the HNSW index file",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the HNSW index from the database and save it",
	Long: `Build a fresh HNSW graph over every stored identity and write it to
HNSW_INDEX_PATH, replacing any existing file. serve reuses the file on startup
while it matches the stored identities.`,
	RunE: runIndexRebuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Index.HNSWIndexPath == "" {
		return errors.New("HNSW_INDEX_PATH environment variable is required")
	}

	// Force a fresh graph: never adopt the existing file.
	cfg.Index.Strategy = config.IndexHNSW
	path := cfg.Index.HNSWIndexPath
	cfg.Index.HNSWIndexPath = ""

	ctx := context.Background()
	fmt.Printf("Building HNSW index from %s...\n", cfg.Database.URL)
	opened, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer opened.Close()

	if err := opened.saveHNSWIndex(path); err != nil {
		return fmt.Errorf("saving HNSW index: %w", err)
	}
	fmt.Printf("HNSW index with %d identities saved to %s\n", opened.hnsw.Len(), path)
	return nil
}
