package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time. Unset values
// fall back to the module and VCS data the Go toolchain embeds.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

type versionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	Modified  bool     `json:"modified,omitempty"`
	GoVersion string   `json:"go_version"`
	Backends  []string `json:"backends"`
}

// resolveVersion merges ldflags values with embedded build info.
func resolveVersion(bi *debug.BuildInfo, ok bool) versionInfo {
	info := versionInfo{
		Version:  Version,
		Commit:   CommitSHA,
		Built:    BuildDate,
		Backends: database.Backends(),
	}
	if !ok || bi == nil {
		return info
	}

	info.GoVersion = bi.GoVersion
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Built == "unknown" {
				info.Built = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := resolveVersion(debug.ReadBuildInfo())

		if mustGetBool(cmd, "json") {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		commit := info.Commit
		if info.Modified {
			commit += " (modified)"
		}
		fmt.Printf("faceid %s\n", info.Version)
		fmt.Printf("  Commit:   %s\n", commit)
		fmt.Printf("  Built:    %s\n", info.Built)
		if info.GoVersion != "" {
			fmt.Printf("  Go:       %s\n", info.GoVersion)
		}
		fmt.Printf("  Backends: %s\n", strings.Join(info.Backends, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
