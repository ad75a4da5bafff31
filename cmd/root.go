package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Strand distance-vector routing daemon",
	Long: `Strand exchanges IPv4 routes with its neighbours over UDP broadcast.
Each node announces its directly-connected networks, measures the latency to the neighbours it hears from,
and keeps the cheapest route to every network it learns about.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cfg",
		Title: "Configuration",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "st",
		Title: "Strand Commands",
	})
}
