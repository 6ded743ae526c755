// Package cmd holds the odicd commands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onchaindice/internal/platform/config"
)

const (
	BinaryName = "odicd"
	EnvPrefix  = config.EnvPrefix

	flagHome     = "home"
	flagLogLevel = "log-level"
	flagNode     = "node"
)

// DefaultHome is where node state and keys live unless --home is set.
var DefaultHome = func() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".odicd"
	}
	return filepath.Join(dir, ".odicd")
}()

// NewRootCmd creates the odicd command tree. Every flag may also be set as
// ODIC_<FLAG> with dashes replaced by underscores.
func NewRootCmd() *cobra.Command {
	v := newViper()

	rootCmd := &cobra.Command{
		Use:           BinaryName,
		Short:         "OnChainDice confidential wagering ledger",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetOut(cmd.OutOrStdout())
			cmd.SetErr(cmd.ErrOrStderr())
			return v.BindPFlags(cmd.Flags())
		},
	}
	rootCmd.PersistentFlags().String(flagHome, DefaultHome, "node and key directory")
	rootCmd.PersistentFlags().String(flagLogLevel, "info", "log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(
		startCmd(v),
		keysCmd(v),
		txCmd(v),
		queryCmd(v),
		revealCmd(v),
	)
	return rootCmd
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newLogger(v *viper.Viper) (log.Logger, error) {
	lvl, err := zerolog.ParseLevel(v.GetString(flagLogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", flagLogLevel, err)
	}
	return log.NewLogger(os.Stderr, log.LevelOption(lvl)), nil
}

func addNodeFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String(flagNode, "http://127.0.0.1:26657", "CometBFT RPC endpoint")
}
