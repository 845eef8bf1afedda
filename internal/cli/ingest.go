package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/brick-matrix/internal/ingest"
	"github.com/rcliao/brick-matrix/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file|url]...",
		Short: "Create bricks from files, web pages or piped text",
		Long: "Chunk sources into bricks. Markdown files with front matter become one brick;\n" +
			".yaml files hold a list of bricks; URLs are fetched and reduced to text.\n" +
			"With no arguments, text is read from stdin.",
		Run: runIngest,
	}

	cmd.Flags().String("type", "", "Brick type for chunks without one (default: ingest.default_type)")
	cmd.Flags().StringP("tags", "t", "", "Tags added to every chunk (comma-separated)")
	cmd.Flags().IntP("weight", "w", 0, "Synaptic weight for chunks without one")
	cmd.Flags().Bool("review", false, "Create bricks unauthorized, awaiting review")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	flags := cmd.Flags()
	typStr := cfg.Ingest.DefaultType
	if flags.Changed("type") {
		typStr, _ = flags.GetString("type")
	}
	typ, err := model.ParseType(typStr)
	if err != nil {
		exitErr("ingest", err)
	}
	tagsStr, _ := flags.GetString("tags")
	weight, _ := flags.GetInt("weight")
	review := cfg.Ingest.RequireReview
	if flags.Changed("review") {
		review, _ = flags.GetBool("review")
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	in := ingest.New(s.KnowledgeStore, ingest.Options{
		Actor:         actor(),
		Classifier:    ingest.StaticClassifier{Type: typ, Tags: splitTags(tagsStr)},
		RequireReview: review,
		Weight:        weight,
		Timeout:       cfg.Ingest.Timeout,
		MaxBodySize:   cfg.Ingest.MaxBodyBytes,
		Parallelism:   cfg.Ingest.Parallelism,
		Logger:        logger,
	})

	var bricks []model.Brick
	if len(args) == 0 {
		text, rerr := readInput(nil)
		if rerr != nil {
			exitErr("read stdin", rerr)
		}
		bricks, err = in.FromText(cmd.Context(), text)
	} else {
		bricks, err = in.IngestAll(cmd.Context(), args)
	}
	if err != nil {
		if len(bricks) > 0 {
			printBricks(bricks)
		}
		// Flush events for the bricks already created before exiting.
		s.Close()
		exitErr("ingest", err)
	}

	if formatFlag == "text" {
		printBricks(bricks)
		return
	}
	printJSON(map[string]any{"ok": true, "created": len(bricks), "bricks": bricks})
}
