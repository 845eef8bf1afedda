package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/brick-matrix/internal/prompt"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Assemble the system prompt from authorized bricks",
		Long: "Render the system instruction block. Unauthorized bricks are always left\n" +
			"out. Prints the prompt text; pass --format json for the structured result.",
		Run: runPrompt,
	}

	cmd.Flags().String("mode", "", "production or training (default: prompt.mode)")
	cmd.Flags().IntP("budget", "b", 0, "Max characters of brick content (0: unlimited)")
	cmd.Flags().Int("preview-chars", 0, "Knowledge preview length (default: prompt.preview_chars)")
	cmd.Flags().Int("preview-after", 0, "Truncate knowledge when more than this many (default: prompt.preview_after)")

	RootCmd.AddCommand(cmd)
}

func runPrompt(cmd *cobra.Command, args []string) {
	opts := prompt.Options{
		Mode:         prompt.ParseMode(cfg.Prompt.Mode),
		PreviewChars: cfg.Prompt.PreviewChars,
		PreviewAfter: cfg.Prompt.PreviewAfter,
		Budget:       cfg.Prompt.Budget,
	}
	flags := cmd.Flags()
	if flags.Changed("mode") {
		m, _ := flags.GetString("mode")
		opts.Mode = prompt.ParseMode(m)
	}
	if flags.Changed("budget") {
		opts.Budget, _ = flags.GetInt("budget")
	}
	if flags.Changed("preview-chars") {
		opts.PreviewChars, _ = flags.GetInt("preview-chars")
	}
	if flags.Changed("preview-after") {
		opts.PreviewAfter, _ = flags.GetInt("preview-after")
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	bricks, err := s.List(cmd.Context())
	if err != nil {
		exitErr("prompt", err)
	}

	res := prompt.Assemble(bricks, opts)
	if flags.Changed("format") && formatFlag == "json" {
		printJSON(res)
		return
	}
	fmt.Println(res.Text)
}
