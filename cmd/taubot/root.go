package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "TAUBOT"

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taubot",
		Short: "Multi-channel chat runtime",
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("config", "", "Config file path (optional).")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	cmd.PersistentFlags().String("state-dir", "", "State directory for runtime files.")
	_ = viper.BindPFlag("state_dir", cmd.PersistentFlags().Lookup("state-dir"))

	cmd.AddCommand(newCycleCmd())
	cmd.AddCommand(newApprovalsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	cfgFile := strings.TrimSpace(viper.GetString("config"))
	if cfgFile == "" {
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
	}
}

func stateDirFromViper() (string, error) {
	dir := strings.TrimSpace(viper.GetString("state_dir"))
	if dir == "" {
		return "", fmt.Errorf("missing --state-dir (or TAUBOT_STATE_DIR)")
	}
	return dir, nil
}
