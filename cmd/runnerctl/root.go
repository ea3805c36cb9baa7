// Package main implements runnerctl, the command-line front end for the
// self-hosted CI runner orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dotenvPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "runnerctl",
	Short:         "runnerctl — manage a self-hosted CI runner pool",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `runnerctl registers, starts, monitors, and tears down a pool of
self-hosted CI runners against GitHub, GitLab, or Gitea.

Common workflow:

  runnerctl register               # install + register configured runners
  runnerctl start                  # start the runner processes
  runnerctl monitor                # run the auto-scaling manager loop
  runnerctl run                    # register + start + monitor, one shot
  runnerctl status                 # show the platform's runner inventory
  runnerctl stop                   # deregister every configured runner`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dotenvPath, "env-file", "", "path to a .env file (default: .env in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// Execute runs the root command, returning the process exit code: 0 on
// success, 1 on error, 130 on interrupt (§ cli exit-code semantics).
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if err == errInterrupted {
			return 130
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// errInterrupted is returned by runMonitor when the root context was
// cancelled by SIGINT/SIGTERM, so Execute can map it to exit code 130.
var errInterrupted = fmt.Errorf("interrupted")
