package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rcliao/brick-matrix/internal/model"
	"github.com/rcliao/brick-matrix/internal/store"
)

func init() {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List saved generations of the collection (sqlite backend)",
		Run:   runHistory,
	}

	restoreCmd := &cobra.Command{
		Use:   "restore <seq>",
		Short: "Merge a saved generation back into the store",
		Long: "Re-import a generation listed by history. Bricks from that generation\n" +
			"overwrite current bricks with the same id; bricks created since are kept.",
		Args: cobra.ExactArgs(1),
		Run:  runRestore,
	}

	RootCmd.AddCommand(historyCmd, restoreCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()
	if s.sqlite == nil {
		exitErr("history", fmt.Errorf("history requires the sqlite backend"))
	}

	gens, err := s.sqlite.History(cmd.Context())
	if err != nil {
		exitErr("history", err)
	}
	if gens == nil {
		gens = []store.Generation{}
	}
	printJSON(gens)
}

func runRestore(cmd *cobra.Command, args []string) {
	seq, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		exitErr("restore", fmt.Errorf("invalid generation %q", args[0]))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()
	if s.sqlite == nil {
		exitErr("restore", fmt.Errorf("restore requires the sqlite backend"))
	}

	data, err := s.sqlite.LoadGeneration(cmd.Context(), seq)
	if err != nil {
		exitErr("restore", err)
	}
	var bricks []model.Brick
	if err := json.Unmarshal(data, &bricks); err != nil {
		exitErr("restore", fmt.Errorf("decode generation %d: %w", seq, err))
	}

	m := store.Matrix{
		Matrix:      bricks,
		Version:     s.SchemaVersion(),
		Environment: fmt.Sprintf("generation-%d", seq),
	}
	doc, err := m.Encode()
	if err != nil {
		exitErr("restore", err)
	}

	res := s.ImportAll(cmd.Context(), doc)
	printJSON(res)
	if !res.Success {
		exitErr("restore", res.Err)
	}
}
