// File: cmd/config.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skymind/skymind/data"
)

// configCmd represents the base command when called without any subcommands
var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"cfg"},
	Short:   "Manage skymind configuration",
	Long: `View settings for skymind.

Use 'config path' to see where the configuration file is located, or
'config show' to inspect the models and stream tunables in effect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// configPathCmd represents the config path command
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the location of the configuration file",
	Long:  `Displays the full path to the configuration file skymind attempts to load.`,
	Run: func(cmd *cobra.Command, args []string) {
		usedCfgFile := viper.ConfigFileUsed()
		if usedCfgFile != "" {
			fmt.Printf("Configuration file in use: %s\n", usedCfgFile)
			if usedCfgFile != appConfigFilePath {
				fmt.Printf("Note: This differs from the default path: %s\n", appConfigFilePath)
			}
		} else {
			fmt.Printf("No configuration file loaded.\nDefault location is: %s\n", appConfigFilePath)
		}
	},
}

// configShowCmd prints the effective models and stream tunables.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := data.NewConfigStore()

		printModel := func(label string, m data.Model) {
			fmt.Printf("%s:\n", label)
			fmt.Printf("  endpoint: %s\n", m.Endpoint)
			fmt.Printf("  model:    %s\n", m.Model)
			fmt.Printf("  temp:     %.2f\n", m.Temp)
			if m.Key != "" {
				fmt.Printf("  key:      (set)\n")
			} else {
				fmt.Printf("  key:      (not set)\n")
			}
		}
		printModel("default model", cfg.GetDefaultModel())
		printModel("fast model", cfg.GetFastModel())

		fmt.Printf("stream:\n")
		fmt.Printf("  grace delay:     %s\n", cfg.GetGraceDelay())
		fmt.Printf("  cascade spacing: %s\n", cfg.GetCascadeSpacing())
		fmt.Printf("  machine id:      %d\n", cfg.GetMachineID())
		fmt.Printf("topics dir: %s\n", data.GetTopicsDirPath())
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
