package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Overridden at release time via -ldflags; falls back to module build info
// for plain `go install` builds.
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := strings.TrimSpace(version)
			revision := ""
			if info, ok := debug.ReadBuildInfo(); ok {
				if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
					v = info.Main.Version
				}
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" {
						revision = s.Value
					}
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "taubot %s\n", v)
			if revision != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "revision: %s\n", revision)
			}
			return nil
		},
	}
}
