package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStrategiesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the registered scoring strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.pipeline("")
			if err != nil {
				return err
			}
			def := p.Config().Alignment.Strategy
			out := cmd.OutOrStdout()
			for _, s := range p.Strategies() {
				marker := " "
				if s == def {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, s)
			}
			return nil
		},
	}
}
