package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/brick-matrix/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a brick",
		Long:  "Edit a brick. Only the flags given are changed; lastValidated is re-stamped.",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("type", "", "New brick type")
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().StringP("tags", "t", "", "Replace tags (comma-separated, empty clears)")
	cmd.Flags().String("content", "", "New content")
	cmd.Flags().Bool("json", false, "Treat --content as structured JSON")
	cmd.Flags().IntP("weight", "w", 0, "New synaptic weight 0-10")
	cmd.Flags().Bool("authorized", false, "Set authorization (--authorized=false revokes)")
	cmd.Flags().String("authorized-by", "", "Override the recorded authorizer")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	flags := cmd.Flags()
	var p model.Patch

	if flags.Changed("type") {
		s, _ := flags.GetString("type")
		typ, err := model.ParseType(s)
		if err != nil {
			exitErr("update", err)
		}
		p.Type = &typ
	}
	if flags.Changed("title") {
		s, _ := flags.GetString("title")
		p.Title = &s
	}
	if flags.Changed("tags") {
		s, _ := flags.GetString("tags")
		tags := splitTags(s)
		if tags == nil {
			tags = []string{}
		}
		p.Tags = &tags
	}
	if flags.Changed("content") {
		s, _ := flags.GetString("content")
		asJSON, _ := flags.GetBool("json")
		content, err := contentArg(s, asJSON)
		if err != nil {
			exitErr("update", err)
		}
		p.Content = content
	}
	if flags.Changed("weight") {
		w, _ := flags.GetInt("weight")
		p.SynapticWeight = &w
	}
	if flags.Changed("authorized") {
		a, _ := flags.GetBool("authorized")
		p.IsAuthorized = &a
	}
	if flags.Changed("authorized-by") {
		s, _ := flags.GetString("authorized-by")
		p.AuthorizedBy = &s
	}

	changed := false
	for _, name := range []string{"type", "title", "tags", "content", "weight", "authorized", "authorized-by"} {
		changed = changed || flags.Changed(name)
	}
	if !changed {
		exitErr("update", fmt.Errorf("nothing to change"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	b, err := s.Update(cmd.Context(), actor(), args[0], p)
	if err != nil {
		exitErr("update", err)
	}
	printJSON(b)
}
