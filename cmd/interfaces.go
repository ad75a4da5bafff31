package cmd

import (
	"fmt"

	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
	"github.com/encodeous/strand/sys"
	"github.com/spf13/cobra"
)

var interfacesCmd = &cobra.Command{
	Use:     "interfaces",
	Aliases: []string{"if"},
	Short:   "Lists the local networks strand would advertise",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cmd.SilenceUsage = true
		cfg, err := state.ReadConfig(path)
		if err != nil {
			return err
		}
		catalog, err := sys.NewInterfaceCatalog(cfg.Interfaces)
		if err != nil {
			return err
		}
		ifaces, err := catalog.Discover()
		if err != nil {
			return err
		}
		if len(ifaces) == 0 {
			fmt.Println("No eligible interfaces")
			return nil
		}
		for _, itf := range ifaces {
			payload, err := protocol.Encode(protocol.FromLocalNetwork(itf.Network))
			if err != nil {
				return err
			}
			parts := cfg.AdvertisedNetworks(itf.Network)
			if len(parts) == 1 && parts[0] == itf.Network {
				fmt.Printf("%s\n   advertises %s to %s:%d as %x\n", itf, itf.Network, itf.Broadcast, cfg.Port, payload)
				continue
			}
			fmt.Printf("%s\n   exclude_networks leave %v, announced on other interfaces only\n", itf, parts)
		}
		return nil
	},
	GroupID: "st",
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
	interfacesCmd.Flags().StringP("config", "c", state.DefaultConfigPath, "Path to the config file")
}
