package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/brick-matrix/internal/model"
	"github.com/rcliao/brick-matrix/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search bricks by title, tags and content",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().String("type", "", "Filter by brick type")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated)")
	cmd.Flags().Bool("authorized", false, "Only authorized bricks")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	tagsStr, _ := cmd.Flags().GetString("tags")
	authorized, _ := cmd.Flags().GetBool("authorized")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), store.SearchParams{
		Query:          strings.Join(args, " "),
		Type:           model.BrickType(typ),
		Tags:           splitTags(tagsStr),
		AuthorizedOnly: authorized,
		Limit:          limit,
	})
	if err != nil {
		exitErr("search", err)
	}
	printBricks(results)
}
