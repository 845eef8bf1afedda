package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "duplicate <id>",
		Short: "Copy a brick under a new id",
		Args:  cobra.ExactArgs(1),
		Run:   runDuplicate,
	}

	RootCmd.AddCommand(cmd)
}

func runDuplicate(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	b, err := s.Duplicate(cmd.Context(), actor(), args[0])
	if err != nil {
		exitErr("duplicate", err)
	}
	printJSON(b)
}
