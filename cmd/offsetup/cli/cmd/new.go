package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/balaji-balu/offsetup/internal/scaffold"
	"github.com/balaji-balu/offsetup/internal/scanner"
)

var newForce bool

var newCmd = &cobra.Command{
	Use:     "new [dir]",
	Aliases: []string{"init"},
	Short:   "Write a starter manifest for the project in dir",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		rt, err := detector(settings).Detect(cmd.Context())
		if err != nil {
			return err
		}

		if settings.DryRun {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			langs, err := scanner.Languages(abs)
			if err != nil {
				return err
			}
			data, err := scaffold.Manifest(filepath.Base(abs), rt, langs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# dry run: would write %s\n%s", filepath.Join(abs, scaffold.FileName), data)
			return nil
		}

		path, err := scaffold.Write(dir, rt, newForce)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
		return nil
	},
}

func init() {
	newCmd.Flags().BoolVarP(&newForce, "force", "f", false, "replace an existing manifest")
}
