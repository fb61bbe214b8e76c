package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/logging"
	"github.com/faustbrian/sequencer/internal/sequencer"
)

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run every registered operation through its declared strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
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

			res, err := a.orchestrator.Process(ctx, registeredOperations())
			if err != nil {
				logging.Op().Error("process failed", "err", err)
				os.Exit(exitConfigError)
				return err
			}

			failedNotAllowed := false
			for _, op := range registeredOperations() {
				out, ok := res.Outcomes[op.Name]
				if !ok {
					continue
				}
				if out.State == domain.StateFailed && !op.Has(domain.CapAllowedToFail) {
					failedNotAllowed = true
					logging.Op().Error("operation failed", "name", op.Name, "err", out.Err)
				}
			}

			if failedNotAllowed || res.Err != nil {
				os.Exit(exitOperationFailed)
				return nil
			}

			logging.Op().Info("process completed", "operations", len(res.Outcomes))
			return nil
		},
	}
}
