package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "directory",
	Short: "Business directory backend: slot scarcity, waitlist and the operations inbox",
	Long: `directory runs the public scarcity API, the admin operations inbox and
the plan lifecycle scheduler.

Configuration is read from the environment (and an optional .env file).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
