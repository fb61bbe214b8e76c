// Command sequencer is the engine's CLI surface (§6): process/status/
// rollback against a Postgres-backed operation store, with exit codes
// distinguishing a clean run, a Failed operation, a configuration
// error, and a store that could not be reached.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	storeDSN   string
	configFile string
)

const (
	exitOK            = 0
	exitOperationFailed = 1
	exitConfigError   = 2
	exitStoreUnavailable = 3
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sequencer",
		Short: "Named operation sequencing engine",
		Long:  "Resolve, guard, and run named operations through their declared execution strategy.",
	}

	rootCmd.PersistentFlags().StringVar(&storeDSN, "store-dsn", "", "Postgres DSN for the operation store")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(rollbackCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}
