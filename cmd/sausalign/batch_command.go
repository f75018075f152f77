package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/sausalign/internal/app"
	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/internal/report"
	"github.com/MrWong99/sausalign/internal/store"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var sausagesPath, transcriptsPath, strategy, format string
	var ids, save bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Align a sausage file with a transcript file, line by line",
		Args:  cobra.NoArgs,
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

			var st store.Store
			if save {
				if st, err = app.OpenStore(cmd.Context(), p.Config().Store); err != nil {
					return err
				}
				if st == nil {
					return errors.New("--save needs store.driver in the config")
				}
				defer st.Close()
			}

			set := p.Settings()
			parse := set.Parse
			if ids {
				parse = append(parse, kaldi.WithUtteranceIDs())
			}
			pairs, err := kaldi.LoadPairFiles(sausagesPath, transcriptsPath, parse...)
			if err != nil {
				return err
			}

			rep, err := p.Runner().Run(cmd.Context(), pairs)
			if err != nil {
				return err
			}
			if err := report.WriteBatch(out, rep, f, set.Gap); err != nil {
				return err
			}

			if st != nil {
				if err := st.SaveRun(cmd.Context(), store.FromReport(rep, set.Gap)); err != nil {
					return fmt.Errorf("save run: %w", err)
				}
				ctx.logger.Info("run saved", "run_id", rep.RunID, "driver", p.Config().Store.Driver)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sausagesPath, "sausages", "", "Sausage file, one utterance per line")
	cmd.Flags().StringVar(&transcriptsPath, "transcripts", "", "Transcript file, one utterance per line")
	cmd.Flags().BoolVar(&ids, "ids", false, "Lines start with an utterance id")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the run to the configured store")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Scoring strategy (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: table, plain or json")
	_ = cmd.MarkFlagRequired("sausages")
	_ = cmd.MarkFlagRequired("transcripts")

	return cmd
}
