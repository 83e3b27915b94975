package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	backend      string
	input        string
	jurisdiction int64
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "electoral",
		Short:         "Electoral aggregation, projection and accuracy tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(exitUsage, err)
	})

	cmd.PersistentFlags().StringVar(&opts.backend, "backend", backendDB, "Backend: db|csv")
	cmd.PersistentFlags().StringVar(&opts.input, "input", "", "Input directory containing CSV files (backend=csv, import)")
	cmd.PersistentFlags().Int64Var(&opts.jurisdiction, "jurisdiction", 1, "Jurisdiction id")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newAggregateCmd(opts))
	cmd.AddCommand(newSimulateCmd(opts))
	cmd.AddCommand(newEvaluateCmd(opts))
	cmd.AddCommand(newBiasCmd(opts))
	cmd.AddCommand(newSwingCmd(opts))
	cmd.AddCommand(newCorrelateCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
