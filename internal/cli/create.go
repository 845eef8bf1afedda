package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/brick-matrix/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "create [content]",
		Short: "Create a brick",
		Long:  "Create a brick. Content can be a positional arg or piped via stdin.",
		Run:   runCreate,
	}

	cmd.Flags().String("type", "", "Brick type (required)")
	cmd.Flags().String("title", "", "Title (required)")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().IntP("weight", "w", 0, "Synaptic weight 0-10")
	cmd.Flags().Bool("json", false, "Treat content as structured JSON")
	cmd.Flags().Bool("pending", false, "Create unauthorized, awaiting review")

	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("title")

	RootCmd.AddCommand(cmd)
}

func runCreate(cmd *cobra.Command, args []string) {
	typStr, _ := cmd.Flags().GetString("type")
	title, _ := cmd.Flags().GetString("title")
	tagsStr, _ := cmd.Flags().GetString("tags")
	weight, _ := cmd.Flags().GetInt("weight")
	asJSON, _ := cmd.Flags().GetBool("json")
	pending, _ := cmd.Flags().GetBool("pending")

	typ, err := model.ParseType(typStr)
	if err != nil {
		exitErr("create", err)
	}

	text, err := readInput(args)
	if err != nil {
		exitErr("read stdin", err)
	}
	if strings.TrimSpace(text) == "" {
		exitErr("create", fmt.Errorf("content is required (positional arg or stdin)"))
	}
	content, err := contentArg(text, asJSON)
	if err != nil {
		exitErr("create", err)
	}

	d := model.Draft{
		Type:           typ,
		Title:          title,
		Tags:           splitTags(tagsStr),
		Content:        content,
		SynapticWeight: weight,
	}
	if pending {
		no := false
		d.IsAuthorized = &no
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	b, err := s.Create(cmd.Context(), actor(), d)
	if err != nil {
		exitErr("create", err)
	}
	printJSON(b)
}

// contentArg encodes text as brick content: raw JSON when asJSON is set,
// a JSON string otherwise.
func contentArg(text string, asJSON bool) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if !asJSON {
		return model.TextContent(text), nil
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("content is not valid JSON")
	}
	return json.RawMessage(text), nil
}
