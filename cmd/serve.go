package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the face identity HTTP API.
All stored identities are loaded into memory before the server accepts
requests. With INDEX_STRATEGY=hnsw the graph is saved to HNSW_INDEX_PATH on
shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST)")
}

// resolveServeHostPort applies --host/--port over the configured values.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.WebConfig) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, &cfg.Web)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Opening identity store (%s, %d dimensions)...\n", cfg.Database.URL, cfg.Embedding.Dim)
	opened, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer opened.Close()

	stats := opened.store.Stats()
	fmt.Printf("Loaded %d identities (%s index)\n", stats.Records, stats.Index)
	if opened.hnsw != nil && opened.hnsw.FromSnapshot() {
		fmt.Printf("HNSW index reused from %s\n", cfg.Index.HNSWIndexPath)
	}

	server := web.NewServer(&cfg.Web, opened.store)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting faceid API on http://%s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	if err := opened.saveHNSWIndex(cfg.Index.HNSWIndexPath); err != nil {
		fmt.Printf("Warning: failed to save HNSW index: %v\n", err)
	} else if opened.hnsw != nil && cfg.Index.HNSWIndexPath != "" {
		fmt.Printf("HNSW index saved to %s\n", cfg.Index.HNSWIndexPath)
	}
	return nil
}
