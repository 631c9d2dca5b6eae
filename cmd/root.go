// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/strix/internal/config"
	"firestige.xyz/strix/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "strix",
	Short: "Strix - protocol dissection engine for captured traffic",
	Long: `Strix decodes captured frames into protocol trees.

Frames are read from pcap or pcapng files and handed through a chain of
dissectors (Ethernet, VLAN, IPv4/IPv6, UDP, TCP, SCTP, ISAKMP, SIP). Each frame
yields a field tree, a protocol stack, an info column and expert warnings.

Features:
  - Bounded reads: truncated or malformed input is reported, never over-read
  - Fault isolation: a failing layer keeps everything decoded before it
  - Parallel dissection with ordered output
  - Text, JSON, YAML and one-line summary output`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and STRIX_* env vars when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level (trace/debug/info/warn/error)")

	// Add subcommands
	rootCmd.AddCommand(dissectCmd)
	rootCmd.AddCommand(protocolsCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the configuration named by --config, applies --log-level
// and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.ValidateAndApplyDefaults(); err != nil {
			return nil, err
		}
	}
	if err := log.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}
