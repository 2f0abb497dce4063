// File: cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skymind/skymind/service"
)

var (
	// Hardcode the version string here
	version     = "v0.3.1"
	versionFlag bool

	cfgFile           string // Path to the config file if specified via flag
	appConfigDir      string // Calculated config directory path
	appConfigFilePath string // Calculated config file path
	debugMode         bool   // Flag to enable debug logging

	// Global logger instance, configured by setupLogging
	logger = service.GetLogger()

	rootCmd = &cobra.Command{
		Use:   "skymind",
		Short: "Stream orchestration engine for AI chat",
		Long: `skymind manages concurrent token-streaming completions: chat replies,
conversation/topic title generation and prompt optimization. Configure an
OpenAI-compatible endpoint, then chat or generate from the command line.`,
		Run: func(cmd *cobra.Command, args []string) {
			if versionFlag {
				fmt.Printf("%s %s\n", cmd.CommandPath(), version)
				return
			}
			cmd.Help()
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Ensure the config directory exists before Cobra/Viper try to read from it
	if appConfigDir != "" {
		if err := os.MkdirAll(appConfigDir, 0750); err != nil {
			service.Errorf("Error creating config directory '%s': %v\n", appConfigDir, err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		service.Errorf("'%s'\n", err)
		os.Exit(1)
	}
}

func init() {
	// Calculate config paths early
	initConfigPaths()

	// Initialize Viper configuration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "Enable debug logging (overrides config file level)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is %s)", appConfigFilePath))

	// Disable the default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "Print the version number of skymind")

	// Set logrus defaults before configuration is loaded
	// This ensures basic logging works even if config fails
	service.InitLogger()
}

// initConfigPaths calculates the application's configuration directory and file path.
func initConfigPaths() {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		// Fallback to home directory if UserConfigDir fails
		service.Warnf("Warning: Could not find user config dir, falling back to home directory.%v\n", err)
		userConfigDir, err = homedir.Dir()
		cobra.CheckErr(err) // If home dir also fails, panic
	}

	// App specific directory: e.g., ~/.config/skymind
	appConfigDir = filepath.Join(userConfigDir, "skymind")
	appConfigFilePath = filepath.Join(appConfigDir, "skymind.yaml")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(appConfigDir)
		viper.SetConfigName("skymind")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv() // Read in environment variables that match

	// Set defaults in Viper *before* reading the config so these keys
	// exist even if not in the file
	viper.SetDefault("log.level", "info")
	viper.SetDefault("stream.grace_delay_ms", 500)
	viper.SetDefault("stream.cascade_spacing_ms", 500)
	viper.SetDefault("stream.machine_id", 0)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			service.Debugf("Config file not found in %s or via --config flag. Using defaults/env vars.", appConfigDir)
		} else if os.IsNotExist(err) {
			service.Debugf("Config file path %s does not exist. Using defaults/env vars.", viper.ConfigFileUsed())
		} else {
			service.Errorf("Error reading config file (%s): %v", viper.ConfigFileUsed(), err)
		}
	}

	setupLogging()
}

// setupLogging configures the global logger based on Viper settings and flags.
func setupLogging() {
	logLevelStr := viper.GetString("log.level")

	// Flag overrides config
	level := log.InfoLevel
	if debugMode {
		level = log.DebugLevel
		logLevelStr = "debug"
	} else {
		var err error
		level, err = log.ParseLevel(logLevelStr)
		if err != nil {
			service.Warnf("Invalid log level '%s' in config, using 'info': %v", logLevelStr, err)
			level = log.InfoLevel
		}
	}
	logger.SetLevel(level)

	service.Debugf("Logger initialized: level=%s ", logLevelStr)
}
