package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/brick-matrix/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a brick",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().Bool("content-only", false, "Print only the brick content")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	contentOnly, _ := cmd.Flags().GetBool("content-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	b, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	if contentOnly {
		fmt.Println(model.ContentText(b.Content))
		return
	}
	if formatFlag == "text" {
		printBrickLine(*b)
		fmt.Println(model.ContentText(b.Content))
		return
	}
	printJSON(b)
}
