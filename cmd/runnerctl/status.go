package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tzervas/embeddenator/internal/platform"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the platform's current view of registered runners",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	client, err := platform.New(string(cfg.Platform), platform.Config{
		Repository: cfg.Repository, Token: cfg.Token, APIURL: cfg.APIURL, Timeout: cfg.APITimeout,
	})
	if err != nil {
		return err
	}

	statuses, err := client.ListRunners(context.Background())
	if err != nil {
		return err
	}

	if len(statuses) == 0 {
		fmt.Println("no runners registered")
		return nil
	}
	for _, s := range statuses {
		busy := "idle"
		if s.Busy {
			busy = "busy"
		}
		fmt.Printf("%-40s %-10s %s\n", s.Name, s.Status, busy)
	}
	return nil
}
