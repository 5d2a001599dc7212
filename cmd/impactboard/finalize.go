package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/greendrive/impactboard"
)

func newFinalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <driveId>",
		Short: "Finalize a board and print its summary (drive creator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			s, err := impactboard.Open(ctx, a.cfg, args[0], impactboard.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, s.Close(context.Background()))
			}()

			res, err := s.Finalize(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, res.Summary)
			return err
		},
	}
}
