package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"avrcoop/config"
)

var (
	genOpts = struct {
		board  string
		output string
		pkg    string
	}{}

	genCmd = &cobra.Command{
		Use:   "gen",
		Short: "Generate board constants from a board file",
		Long:  "Validate a board.yaml and write the Go constants the firmware is built with. Infeasible timer periods fail here instead of on the board.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := config.Load(genOpts.board)
			if err != nil {
				return err
			}
			if genOpts.pkg != "" {
				b.Package = genOpts.pkg
			}

			src, err := config.Generate(b)
			if err != nil {
				return fmt.Errorf("%s: %w", genOpts.board, err)
			}

			output := genOpts.output
			if output == "" {
				output = filepath.Join(filepath.Dir(genOpts.board), config.GeneratedFile)
			}
			if err := os.WriteFile(output, src, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
)

func init() {
	genCmd.Flags().StringVarP(&genOpts.board, "board", "b", "board.yaml", "board file")
	genCmd.Flags().StringVarP(&genOpts.output, "output", "o", "", "output file (default: zz_board.go next to the board file)")
	genCmd.Flags().StringVarP(&genOpts.pkg, "package", "p", "", "package name override")
}
