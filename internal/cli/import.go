package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Merge a matrix document into the store",
		Long: "Import a matrix document (file or stdin). Incoming bricks overwrite local\n" +
			"bricks with the same id; everything else is kept. With --one the input is a\n" +
			"single brick.",
		Args: cobra.MaximumNArgs(1),
		Run:  runImport,
	}

	cmd.Flags().Bool("one", false, "Input is a single brick document")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	one, _ := cmd.Flags().GetBool("one")

	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	data, err := readSource(path)
	if err != nil {
		exitErr("read input", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if one {
		b, err := s.ImportOne(cmd.Context(), data)
		if err != nil {
			s.Close()
			exitErr(importFailure(err), err)
		}
		printJSON(b)
		return
	}

	res := s.ImportAll(cmd.Context(), data)
	printJSON(res)
	if !res.Success {
		s.Close()
		exitErr(importFailure(res.Err), res.Err)
	}
}
