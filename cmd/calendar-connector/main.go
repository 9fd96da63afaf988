package main

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {

	var listenAddr string

	// rootCmd represents the base command when called without any subcommands
	var rootCmd = &cobra.Command{
		Use: "calendar-connector",
	}

	// apiServerCmd represents the api_server command
	var apiServerCmd = &cobra.Command{
		Use:   "api_server",
		Short: "Calendar Connector API Server",
		Run: func(cmd *cobra.Command, args []string) {
			startCalendarConnectorApiServer(listenAddr)
		},
	}

	var syncSchedulerCmd = &cobra.Command{
		Use:   "sync_scheduler",
		Short: "Periodically sync every active calendar connection",
		Run: func(cmd *cobra.Command, args []string) {
			startSyncScheduler()
		},
	}

	rootCmd.AddCommand(apiServerCmd)
	apiServerCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", ":8000", "Hostname:port")

	rootCmd.AddCommand(syncSchedulerCmd)

	return rootCmd
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
