package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var bucketPercentage int

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Show this installation's staged-rollout bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := buildSubsystem()
		if err != nil {
			return err
		}

		bucket, err := sub.gate.Bucket()
		if err != nil {
			return err
		}
		fmt.Printf("Rollout bucket: %d\n", bucket)
		if bucketPercentage >= 0 {
			fmt.Printf("In %d%% rollout: %v\n", bucketPercentage, sub.gate.InRolloutGroup(bucketPercentage))
		}
		return nil
	},
}

func init() {
	bucketCmd.Flags().IntVar(&bucketPercentage, "percentage", -1, "also report membership at this rollout percentage")
}
