package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/identity"
)

var importCmd = &cobra.Command{
	Use:   "import FILE.jsonl",
	Short: "Bulk-enroll identities from a JSON Lines file",
	Long: `Enroll one identity per line. Each line is a JSON object:

  {"label": "alice", "embedding": [0.12, -0.5, ...]}

Labels that are already enrolled are reported and skipped. Any other error
(bad JSON, wrong embedding length, empty label) stops the import; identities
enrolled before the failing line stay enrolled.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("quiet", false, "Do not show a progress bar")
}

// importLine is one JSON Lines entry.
type importLine struct {
	Label     string             `json:"label"`
	Embedding identity.Embedding `json:"embedding"`
}

// importResult summarizes an import run.
type importResult struct {
	Enrolled   int
	Duplicates []string
}

// readImportLines parses all non-blank lines so the total is known up front.
func readImportLines(r io.Reader) ([]importLine, error) {
	var lines []importLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var line importLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}
	return lines, nil
}

// importIdentities enrolls lines in order. bar may be nil.
func importIdentities(ctx context.Context, store *identity.Store, lines []importLine, bar *progressbar.ProgressBar) (importResult, error) {
	var res importResult
	for i, line := range lines {
		_, err := store.Enroll(ctx, line.Label, line.Embedding)
		switch {
		case errors.Is(err, identity.ErrDuplicateLabel):
			res.Duplicates = append(res.Duplicates, line.Label)
		case err != nil:
			return res, fmt.Errorf("entry %d (%q): %w", i+1, line.Label, err)
		default:
			res.Enrolled++
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	return res, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	lines, err := readImportLines(f)
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

	var bar *progressbar.ProgressBar
	if !mustGetBool(cmd, "quiet") {
		bar = progressbar.NewOptions(len(lines),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	res, err := importIdentities(ctx, opened.store, lines, bar)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	fmt.Printf("Enrolled: %d\n", res.Enrolled)
	if len(res.Duplicates) > 0 {
		fmt.Printf("Skipped %d duplicate labels:\n", len(res.Duplicates))
		for _, label := range res.Duplicates {
			fmt.Printf("  - %s\n", label)
		}
	}
	if err != nil {
		return err
	}

	if err := opened.saveHNSWIndex(cfg.Index.HNSWIndexPath); err != nil {
		fmt.Printf("Warning: failed to save HNSW index: %v\n", err)
	}
	return nil
}
