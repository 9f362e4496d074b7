package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stimsched/internal/catalog"
)

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples [name]",
		Short: "List the built-in definitions, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range catalog.Names() {
					fmt.Fprintln(w, name)
				}
				return nil
			}
			src, err := catalog.Source(args[0])
			if err != nil {
				return err
			}
			_, err = w.Write(src)
			return err
		},
	}
}
