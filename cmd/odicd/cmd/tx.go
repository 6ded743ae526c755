package cmd

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onchaindice/internal/codec"
	"onchaindice/internal/fhe"
	"onchaindice/internal/ledger"
	"onchaindice/internal/ocpcrypto"
)

func txCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Sign and broadcast ledger transactions",
	}
	cmd.PersistentFlags().String(flagFrom, "", "key name to sign with")
	addNodeFlag(cmd)

	cmd.AddCommand(
		&cobra.Command{
			Use:   "mint <address> <amount>",
			Short: "Credit native units from the devnet faucet",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !common.IsHexAddress(args[0]) {
					return fmt.Errorf("invalid address %q", args[0])
				}
				amount, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid amount: %w", err)
				}
				tx, err := codec.NewUnsignedTx(codec.TxBankMint, codec.BankMintTx{To: common.HexToAddress(args[0]), Amount: amount})
				if err != nil {
					return err
				}
				nc, err := newNodeClient(v)
				if err != nil {
					return err
				}
				return printResult(cmd, func() (map[string]string, error) { return nc.broadcastRaw(cmd.Context(), tx) })
			},
		},
		&cobra.Command{
			Use:   "join <deposit>",
			Short: "Deposit native base units and mint encrypted points",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return signedTx(cmd, v, codec.TxDiceJoin, func(p common.Address) (any, error) {
					return codec.DiceJoinTx{Participant: p, DepositAmount: args[0]}, nil
				})
			},
		},
		&cobra.Command{
			Use:   "start-round",
			Short: "Roll a fresh encrypted die",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return signedTx(cmd, v, codec.TxDiceStartRound, func(p common.Address) (any, error) {
					return codec.DiceStartRoundTx{Participant: p}, nil
				})
			},
		},
		&cobra.Command{
			Use:   "guess <big|small>",
			Short: "Submit an encrypted guess for the active round",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				guess, err := parseGuess(args[0])
				if err != nil {
					return err
				}
				nc, err := newNodeClient(v)
				if err != nil {
					return err
				}
				params, err := nc.params(cmd.Context())
				if err != nil {
					return err
				}
				pk, err := ocpcrypto.DecodePoint(params.NetworkPublicKey)
				if err != nil {
					return fmt.Errorf("network public key: %w", err)
				}
				return signedTx(cmd, v, codec.TxDiceSubmitGuess, func(p common.Address) (any, error) {
					in, proof, err := fhe.EncryptInput(rand.Reader, pk, fhe.TypeUint32, guess, p, params.LedgerAddress)
					if err != nil {
						return nil, err
					}
					return codec.DiceSubmitGuessTx{Participant: p, Guess: in, Proof: proof}, nil
				})
			},
		},
	)
	return cmd
}

func parseGuess(s string) (uint64, error) {
	switch s {
	case "big", "1":
		return ledger.GuessBig, nil
	case "small", "2":
		return ledger.GuessSmall, nil
	default:
		return 0, fmt.Errorf("guess must be big or small, got %q", s)
	}
}

func signedTx(cmd *cobra.Command, v *viper.Viper, typ string, build func(common.Address) (any, error)) error {
	key, err := loadKey(v, v.GetString(flagFrom))
	if err != nil {
		return err
	}
	value, err := build(crypto.PubkeyToAddress(key.PublicKey))
	if err != nil {
		return err
	}
	nc, err := newNodeClient(v)
	if err != nil {
		return err
	}
	return printResult(cmd, func() (map[string]string, error) { return nc.broadcast(cmd.Context(), key, typ, value) })
}

func printResult(cmd *cobra.Command, run func() (map[string]string, error)) error {
	out, err := run()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func queryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <path>",
		Short: "Run an ABCI query, e.g. /round/<addr> or /acl/<handle>/<addr>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := newNodeClient(v)
			if err != nil {
				return err
			}
			var out json.RawMessage
			if err := nc.query(cmd.Context(), args[0], &out); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	addNodeFlag(cmd)
	return cmd
}
