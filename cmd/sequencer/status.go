package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/faustbrian/sequencer/internal/logging"
	"github.com/faustbrian/sequencer/internal/sequencer"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report pending/completed/failed operation counts and names",
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

			counts, err := a.orchestrator.StatusCounts(ctx, a.store)
			if err != nil {
				logging.Op().Error("status failed", "err", err)
				os.Exit(exitStoreUnavailable)
				return err
			}
			fmt.Printf("pending=%d completed=%d failed=%d\n", counts.Pending, counts.Completed, counts.Failed)

			names, err := a.orchestrator.Status(ctx, a.store, time.Now())
			if err != nil {
				logging.Op().Error("status failed", "err", err)
				os.Exit(exitStoreUnavailable)
				return err
			}
			if len(names) == 0 {
				fmt.Println("no pending or running operations")
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}
