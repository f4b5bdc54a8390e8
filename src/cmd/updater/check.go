package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

var checkIfDue bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a newer version is available",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := buildSubsystem()
		if err != nil {
			return err
		}

		results := make(chan models.UpdateCheckResult, 1)
		sub.runner.CheckInBackground(checkIfDue, func(res models.UpdateCheckResult) {
			results <- res
		})
		result := <-results

		switch result.Outcome {
		case models.OutcomeAvailable:
			fmt.Printf("Update available: %s\n", result.Version)
			fmt.Printf("Download: %s\n", result.DownloadURL)
			fmt.Printf("SHA-256: %s\n", result.SHA256)
			if result.ReleaseNotes != "" {
				fmt.Printf("\n%s\n", result.ReleaseNotes)
			}
		case models.OutcomeNotAvailable:
			fmt.Printf("No update available (current version %s)\n", sub.orchestrator.CurrentVersion())
		case models.OutcomeError:
			return fmt.Errorf("update check failed: %s", result.Message)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkIfDue, "if-due", false, "only check when the configured interval has elapsed")
}
