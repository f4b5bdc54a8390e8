package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BenDodCod/projectorsclient-sub001/src/pkg/models"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Download and verify the installer for the latest available update",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := buildSubsystem()
		if err != nil {
			return err
		}

		result := sub.orchestrator.CheckForUpdates()
		switch result.Outcome {
		case models.OutcomeError:
			return fmt.Errorf("update check failed: %s", result.Message)
		case models.OutcomeNotAvailable:
			fmt.Println("No update to stage")
			return nil
		}

		fmt.Printf("Staging installer for version %s into %s\n", result.Version, sub.downloader.WorkDir())

		done := make(chan error, 1)
		var installerPath string
		sub.runner.StageInBackground(result, func(path string, err error) {
			installerPath = path
			done <- err
		})
		if err := <-done; err != nil {
			return fmt.Errorf("failed to stage installer: %w", err)
		}

		fmt.Printf("Installer verified and staged at %s\n", installerPath)
		return nil
	},
}
