package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/encodeous/strand/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Create or check a strand config",
	GroupID: "cfg",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Writes a config file with every option set to its default",
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(outPath); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite it", outPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg := state.DefaultConfig()
		err := state.WriteConfig(outPath, &cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", outPath)
		return nil
	},
}

var configVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Loads and validates a config file, then prints it with defaults filled in",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cmd.SilenceUsage = true
		cfg, err := state.ReadConfig(path)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Println("Config is valid")
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configVerifyCmd)

	configInitCmd.Flags().StringP("output", "o", state.DefaultConfigPath, "config output file path")
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
	configVerifyCmd.Flags().StringP("config", "c", state.DefaultConfigPath, "Path to the config file")
}
