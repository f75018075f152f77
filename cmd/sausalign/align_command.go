package main

import (
	"github.com/spf13/cobra"

	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/internal/report"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

func newAlignCommand(ctx *commandContext) *cobra.Command {
	var sausages, transcript, strategy, format string

	cmd := &cobra.Command{
		Use:   "align",
		Short: "Align one sausage line with one transcript",
		Example: `  sausalign align --sausages "[ captain 0.7 kaptan 0.3 ] [ <eps> 1 ]" --transcript "captains"
  sausalign align --sausages "[ a 1 ] [ b 1 ]" --transcript "a c" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			f, err := outputFormat(format, out)
			if err != nil {
				return err
			}
			p, err := ctx.pipeline(strategy)
			if err != nil {
				return err
			}
			set := p.Settings()

			net, err := kaldi.ParseSausages(sausages, set.Parse...)
			if err != nil {
				return err
			}
			_, words := kaldi.ParseTranscript(transcript, set.Parse...)

			eng, err := p.Engine("")
			if err != nil {
				return err
			}
			res, err := eng.Align(cmd.Context(), sausage.NewPair(net, words))
			if err != nil {
				return err
			}
			return report.WriteAlignment(out, res, res.Summary(set.Summary...), f, set.Gap)
		},
	}

	cmd.Flags().StringVar(&sausages, "sausages", "", "Sausage line in Kaldi text form")
	cmd.Flags().StringVar(&transcript, "transcript", "", "Reference transcript")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Scoring strategy (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: table, plain or json")
	_ = cmd.MarkFlagRequired("sausages")

	return cmd
}
