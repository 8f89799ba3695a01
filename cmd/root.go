package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "faceid",
	Short: "Face identity matching store",
	Long: `faceid enrolls face embeddings under unique labels and answers
"who is this face" queries by Euclidean nearest neighbor.

Embeddings are produced upstream by a face detector; faceid stores them in
the backend selected by DATABASE_URL (memory, sqlite, postgres, mysql, badger).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	initLogging(config.Load().Log.Level)
}

// initLogging installs the default slog logger on stderr.
func initLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
