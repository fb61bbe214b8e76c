package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faustbrian/sequencer/internal/logging"
	"github.com/faustbrian/sequencer/internal/sequencer"
)

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <name>",
		Short: "Roll back the named operation's most recent completed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			name := args[0]

			op := findOperation(name)
			if op == nil {
				fmt.Fprintf(os.Stderr, "unknown operation %q\n", name)
				os.Exit(exitConfigError)
				return nil
			}

			a, err := newApp(ctx)
			if err != nil {
				if errors.Is(err, sequencer.ErrStoreUnavailable) {
					os.Exit(exitStoreUnavailable)
				}
				os.Exit(exitConfigError)
				return err
			}
			defer a.shutdown()

			if err := a.orchestrator.Rollback(ctx, a.store, op); err != nil {
				logging.Op().Error("rollback failed", "name", name, "err", err)
				os.Exit(exitOperationFailed)
				return err
			}

			logging.Op().Info("rollback completed", "name", name)
			return nil
		},
	}
}
