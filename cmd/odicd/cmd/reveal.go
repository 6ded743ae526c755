package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onchaindice/internal/app"
	"onchaindice/internal/eip712"
	"onchaindice/internal/gateway"
	"onchaindice/internal/platform/otel"
	"onchaindice/internal/relayer"
)

const (
	flagRelayer = "relayer"
	flagFields  = "fields"
)

func revealCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reveal",
		Short: "Decrypt your own balance and round values through the relayer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			gwCfg, err := gateway.LoadConfig()
			if err != nil {
				return fmt.Errorf("gateway config: %w", err)
			}
			ctx := cmd.Context()
			shutdown, err := otel.Setup(ctx, BinaryName)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()

			key, err := loadKey(v, v.GetString(flagFrom))
			if err != nil {
				return err
			}
			addr := crypto.PubkeyToAddress(key.PublicKey)
			nc, err := newNodeClient(v)
			if err != nil {
				return err
			}
			params, err := nc.params(ctx)
			if err != nil {
				return err
			}
			hs, err := selectHandles(ctx, nc, addr.Hex(), v.GetString(flagFields))
			if err != nil {
				return err
			}

			domain := eip712.Domain{ChainID: params.Params.ChainID, VerifyingContract: params.LedgerAddress}
			gw := gateway.New(
				relayer.NewClient(v.GetString(flagRelayer), &http.Client{Timeout: 30 * time.Second}),
				gateway.NewLocalSigner(key),
				domain,
				gateway.WithConfig(gwCfg),
				gateway.WithLogger(logger),
			)
			res := gw.Reveal(ctx, hs)
			switch res.Status {
			case gateway.StatusOK, gateway.StatusNothingToDecrypt:
			default:
				return fmt.Errorf("reveal %s: %w", res.Status, res.Err)
			}
			out := make(map[string]string, len(res.Values)+1)
			out["status"] = string(res.Status)
			for f, val := range res.Values {
				out[string(f)] = fmt.Sprintf("%d", val)
			}
			return printResult(cmd, func() (map[string]string, error) { return out, nil })
		},
	}
	cmd.Flags().String(flagFrom, "", "key name of the participant")
	cmd.Flags().String(flagRelayer, "http://127.0.0.1:8646", "relayer base URL")
	cmd.Flags().String(flagFields, "balance", "comma-separated fields: balance,dice,guess,outcome")
	addNodeFlag(cmd)
	return cmd
}

func selectHandles(ctx context.Context, nc *nodeClient, addr, fields string) (gateway.Handles, error) {
	var (
		part  app.ParticipantView
		round app.RoundView
		hs    gateway.Handles
	)
	if err := nc.query(ctx, "/participant/"+addr, &part); err != nil {
		return hs, err
	}
	if err := nc.query(ctx, "/round/"+addr, &round); err != nil {
		return hs, err
	}
	for _, f := range strings.Split(fields, ",") {
		switch gateway.Field(strings.TrimSpace(f)) {
		case gateway.FieldBalance:
			hs.Balance = part.Balance
		case gateway.FieldDice:
			hs.Dice = round.DiceResult
		case gateway.FieldGuess:
			hs.Guess = round.LastGuess
		case gateway.FieldOutcome:
			hs.Outcome = round.WinFlag
		case "":
		default:
			return hs, fmt.Errorf("unknown field %q", f)
		}
	}
	return hs, nil
}
