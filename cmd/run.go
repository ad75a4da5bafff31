package cmd

import (
	"github.com/encodeous/strand/core"
	"github.com/encodeous/strand/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run strand",
	Long: `This will run strand on the current host. It needs enough permissions to open raw ICMP sockets,
bind the advertisement port and, unless install_routes is false, write to the kernel routing table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		logPath, _ := cmd.Flags().GetString("log-path")
		verbose, _ := cmd.Flags().GetBool("verbose")
		cmd.SilenceUsage = true
		return core.Bootstrap(configPath, logPath, verbose)
	},
	GroupID: "st",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", state.DefaultConfigPath, "Path to the config file")
	runCmd.Flags().String("log-path", "", "Also write logs to this file")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().BoolVarP(&state.DBG_log_probe, "lprobe", "p", false, "Write probes to console")
	runCmd.Flags().BoolVarP(&state.DBG_log_route_table, "ltable", "t", false, "Outputs route table to the console")
}
