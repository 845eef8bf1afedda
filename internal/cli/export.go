package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the matrix as JSON",
		Long:  "Export the whole collection as a matrix document, or one brick with --id.",
		Run:   runExport,
	}

	cmd.Flags().String("id", "", "Export a single brick")
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	output, _ := cmd.Flags().GetString("output")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var data []byte
	if id != "" {
		data, err = s.ExportOne(cmd.Context(), id)
	} else {
		m, merr := s.ExportAll(cmd.Context())
		if merr != nil {
			exitErr("export", merr)
		}
		data, err = m.Encode()
	}
	if err != nil {
		exitErr("export", err)
	}

	if output == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
		exitErr("write export", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"file":%q}`+"\n", output)
}
