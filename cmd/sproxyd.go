package main

import (
	"context"
	"fmt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"os"
	"sproxy"
)

var (
	configFilePath string
	serialFilePath string
	daemonize      bool
	showVersion    bool
)

var rootCmd = &cobra.Command{
	Use:           "sproxyd",
	Short:         "serial port proxy daemon",
	Long:          "Shares physical serial devices with several clients through pty backed virtual devices.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&configFilePath, "config", "c", "/etc/sproxyd/config.toml", "path to configuration file")
	rootCmd.Flags().StringVarP(&serialFilePath, "serial", "s", "", "path to serial devices configuration file")
	rootCmd.Flags().BoolVarP(&daemonize, "daemonize", "d", false, "run in background")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print version and exit")
}

func run(cmd *cobra.Command, _ []string) error {
	if showVersion {
		fmt.Fprintf(cmd.OutOrStdout(), "sproxyd version %s\n", sproxy.Version)
		return nil
	}
	config, err := sproxy.LoadConfig(configFilePath)
	if err != nil {
		return err
	}
	if serialFilePath != "" {
		if err := config.LoadDevices(serialFilePath); err != nil {
			return err
		}
	}
	if daemonize {
		parent, err := sproxy.Daemonize()
		if err != nil {
			return err
		}
		if parent {
			return nil
		}
	}
	closer, err := sproxy.InitLog(config.Global)
	if err != nil {
		return err
	}
	defer closer.Close()

	if daemonize && config.Global.PidFile != "" {
		sproxy.CreatePidFile(config.Global.PidFile)
	}
	server, err := sproxy.NewServer(context.Background(), config)
	if err != nil {
		log.Error().Msgf("can't start server: %+v", err)
		return err
	}
	server.Start()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sproxyd: %v\n", err)
		os.Exit(1)
	}
}
