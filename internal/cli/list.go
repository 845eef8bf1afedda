package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/brick-matrix/internal/model"
	"github.com/rcliao/brick-matrix/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bricks in insertion order",
		Run:   runList,
	}

	cmd.Flags().String("type", "", "Filter by brick type")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated, all must match)")
	cmd.Flags().Bool("authorized", false, "Only authorized bricks")
	cmd.Flags().Bool("pending", false, "Only bricks awaiting authorization")
	cmd.Flags().Bool("ids-only", false, "Only output ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	tagsStr, _ := cmd.Flags().GetString("tags")
	authorized, _ := cmd.Flags().GetBool("authorized")
	pending, _ := cmd.Flags().GetBool("pending")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	if authorized && pending {
		exitErr("list", fmt.Errorf("--authorized and --pending are mutually exclusive"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	bricks, err := s.Filter(cmd.Context(), store.SearchParams{
		Type:           model.BrickType(typ),
		Tags:           splitTags(tagsStr),
		AuthorizedOnly: authorized,
		Pending:        pending,
	})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, b := range bricks {
			fmt.Println(b.ID)
		}
		return
	}
	printBricks(bricks)
}

// printBricks honors --format: json prints the array, text one line per brick.
func printBricks(bricks []model.Brick) {
	if formatFlag != "text" {
		printJSON(bricks)
		return
	}
	for _, b := range bricks {
		printBrickLine(b)
	}
}

func printBrickLine(b model.Brick) {
	status := "authorized"
	if !b.Metadata.IsAuthorized {
		status = "pending"
	}
	fmt.Printf("%s\t%s\tw=%d\t%s\t%s\n", b.ID, b.Type, b.Metadata.SynapticWeight, status, b.Title)
}
