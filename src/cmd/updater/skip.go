package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var skipCmd = &cobra.Command{
	Use:   "skip <version>",
	Short: "Skip a version so future checks ignore it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := buildSubsystem()
		if err != nil {
			return err
		}
		if err := sub.orchestrator.SkipVersion(args[0]); err != nil {
			return err
		}
		fmt.Printf("Version %s will be skipped\n", args[0])
		return nil
	},
}
