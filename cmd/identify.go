package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Find the enrolled identity nearest to an embedding",
	Long: `Report the enrolled identity with the smallest Euclidean distance to the
given embedding. The nearest identity is always reported, however far away.

With --db the nearest identity is also computed by the database itself
(PostgreSQL with pgvector) and compared with the in-memory result.`,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().String("embedding", "", "Comma-separated embedding values")
	identifyCmd.Flags().String("file", "", "JSON file with the embedding array")
	identifyCmd.Flags().Bool("db", false, "Cross-check with the database's own nearest query")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

// distanceTolerance absorbs float32 vs float64 accumulation differences
// between the store and the database.
const distanceTolerance = 1e-4

func runIdentify(cmd *cobra.Command, args []string) error {
	emb, err := embeddingFromFlags(mustGetString(cmd, "embedding"), mustGetString(cmd, "file"))
	if err != nil {
		return err
	}

	cfg := config.Load()
	ctx := context.Background()

	opened, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer opened.Close()

	res, err := opened.store.FindNearest(ctx, emb)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if res.Matched {
		fmt.Printf("Nearest: %s (id %d), distance %.6f\n", *res.Label, *res.ID, *res.Distance)
	} else {
		fmt.Println("No identities enrolled")
	}

	if !mustGetBool(cmd, "db") {
		return nil
	}

	finder, ok := opened.repo.(database.NearestFinder)
	if !ok {
		return fmt.Errorf("backend for %s cannot compute nearest identities", cfg.Database.URL)
	}
	row, dist, found, err := finder.FindNearest(ctx, emb)
	if err != nil {
		return fmt.Errorf("database nearest: %w", err)
	}
	switch {
	case !found && !res.Matched:
		fmt.Println("Database agrees: no identities")
	case found != res.Matched:
		return fmt.Errorf("database disagrees: found=%v, store matched=%v", found, res.Matched)
	case row.ID != *res.ID && math.Abs(dist-float64(*res.Distance)) > distanceTolerance:
		return fmt.Errorf("database disagrees: %s (id %d) at %.6f", row.Label, row.ID, dist)
	default:
		fmt.Printf("Database agrees: %s (id %d), distance %.6f\n", row.Label, row.ID, dist)
	}
	return nil
}
