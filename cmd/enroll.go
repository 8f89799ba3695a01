package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/config"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a face embedding under a label",
	Long: `Store a new identity. The embedding is given inline as comma-separated
floats or as a JSON array file, and must have EMBEDDING_DIM values.

Examples:
  faceid enroll --label alice --embedding "0.12,-0.5,..."
  faceid enroll --label bob --file bob.json`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("label", "", "Label (name) for the identity")
	enrollCmd.Flags().String("embedding", "", "Comma-separated embedding values")
	enrollCmd.Flags().String("file", "", "JSON file with the embedding array")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	label := mustGetString(cmd, "label")
	if label == "" {
		return errors.New("--label is required")
	}
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

	rec, err := opened.store.Enroll(ctx, label, emb)
	if err != nil {
		return fmt.Errorf("enroll %q: %w", label, err)
	}
	if cfg.Database.URL == "memory://" {
		fmt.Fprintln(os.Stderr, "Warning: DATABASE_URL is memory://, the identity is not persisted")
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	fmt.Printf("Enrolled %q as identity %d\n", rec.Label, rec.ID)
	return nil
}
