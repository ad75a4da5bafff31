package cmd

import (
	"fmt"

	"github.com/encodeous/strand/core"
	"github.com/encodeous/strand/state"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Inspects the neighbours and routes of a running strand",
	RunE: func(cmd *cobra.Command, args []string) error {
		socket, _ := cmd.Flags().GetString("socket")
		cmd.SilenceUsage = true
		result, err := core.IPCGet(socket, "inspect")
		if err != nil {
			return fmt.Errorf("is strand running? %w", err)
		}
		fmt.Print(result)
		return nil
	},
	GroupID: "st",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringP("socket", "s", state.DefaultControlSocket, "Path to the control socket")
}
