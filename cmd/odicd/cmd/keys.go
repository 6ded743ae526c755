package cmd

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const flagFrom = "from"

func keyPath(home, name string) string {
	return filepath.Join(home, "keys", name+".key")
}

func loadKey(v *viper.Viper, name string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(keyPath(v.GetString(flagHome), name))
	if err != nil {
		return nil, fmt.Errorf("load key %q: %w", name, err)
	}
	return key, nil
}

func keysCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage participant keys",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "new <name>",
			Short: "Create a secp256k1 key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := keyPath(v.GetString(flagHome), args[0])
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("key %q already exists", args[0])
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
				key, err := crypto.GenerateKey()
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
					return err
				}
				if err := crypto.SaveECDSA(path, key); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(key.PublicKey).Hex())
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Print the address of a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := loadKey(v, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(key.PublicKey).Hex())
				return nil
			},
		},
	)
	return cmd
}
