package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/identity"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	Long: `List enrolled identities in ID order. --query filters labels by a
case-insensitive substring that ignores diacritics ("jiri" matches "Jiří").`,
	RunE: runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().String("query", "", "Filter labels")
	identitiesCmd.Flags().Bool("json", false, "Output as JSON")
}

// filterRecords keeps records whose label matches query.
func filterRecords(records []identity.Record, query string) []identity.Record {
	out := make([]identity.Record, 0, len(records))
	for _, rec := range records {
		if facematch.MatchesQuery(rec.Label, query) {
			out = append(out, rec)
		}
	}
	return out
}

func runIdentities(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	opened, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer opened.Close()

	records := filterRecords(opened.store.Records(), mustGetString(cmd, "query"))

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tENROLLED")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\n", rec.ID, rec.Label, rec.EnrolledAt.Local().Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d identities\n", len(records))
	return nil
}
