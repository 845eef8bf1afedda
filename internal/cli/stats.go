package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if formatFlag == "text" {
		fmt.Printf("total %d (authorized %d, pending %d), schema v%d, %s\n",
			stats.Total, stats.Authorized, stats.Unauthorized, stats.SchemaVersion, stats.Environment)
		for _, ts := range stats.Types {
			fmt.Printf("  %-18s %4d  avg weight %.1f\n", ts.Type, ts.Count, ts.AverageWeight)
		}
		return
	}
	printJSON(stats)
}
