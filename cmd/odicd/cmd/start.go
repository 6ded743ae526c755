package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cosmossdk.io/log"
	"github.com/cometbft/cometbft/abci/server"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onchaindice/internal/app"
	"onchaindice/internal/coprocessor"
	"onchaindice/internal/eip712"
	"onchaindice/internal/platform/otel"
	"onchaindice/internal/relayer"
)

const (
	flagABCIAddr    = "addr"
	flagTransport   = "transport"
	flagRelayerAddr = "relayer-addr"

	seedFile = "coprocessor_seed"
)

func startCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the ABCI application, the reference coprocessor and the decryption relayer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			return runStart(cmd.Context(), v, logger)
		},
	}
	relayerDefault := "127.0.0.1:8646"
	if cfg, err := relayer.LoadConfig(); err == nil {
		relayerDefault = cfg.ListenAddr
	}
	cmd.Flags().String(flagABCIAddr, "tcp://127.0.0.1:26658", "ABCI listen address")
	cmd.Flags().String(flagTransport, "socket", "ABCI transport (socket|grpc)")
	cmd.Flags().String(flagRelayerAddr, relayerDefault, "relayer HTTP listen address (empty disables)")
	return cmd
}

func runStart(ctx context.Context, v *viper.Viper, logger log.Logger) error {
	home := v.GetString(flagHome)
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := otel.Setup(ctx, BinaryName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	seed, err := loadOrCreateSeed(filepath.Join(home, "config", seedFile))
	if err != nil {
		return err
	}
	db, err := dbm.NewDB("coprocessor", dbm.GoLevelDBBackend, filepath.Join(home, "data"))
	if err != nil {
		return fmt.Errorf("open coprocessor store: %w", err)
	}
	defer db.Close()

	cop, err := coprocessor.New(db, seed, coprocessor.WithLogger(logger))
	if err != nil {
		return err
	}
	a, err := app.New(home, app.WithCoprocessor(cop), app.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	// Computations committed before a crash or a coprocessor outage.
	if left, err := a.FlushPending(ctx); err != nil {
		return fmt.Errorf("flush pending computations: %w", err)
	} else if left > 0 {
		logger.Error("computations still waiting for coprocessor", "batches", left)
	}

	srv, err := server.NewServer(v.GetString(flagABCIAddr), v.GetString(flagTransport), a)
	if err != nil {
		return fmt.Errorf("abci server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("abci server start: %w", err)
	}
	defer func() { _ = srv.Stop() }()
	logger.Info("abci server started", "addr", v.GetString(flagABCIAddr))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := v.GetString(flagRelayerAddr); addr != "" {
		cfg, err := relayer.LoadConfig()
		if err != nil {
			return err
		}
		svc := relayer.NewService(cfg, a.LedgerAddress(), a, cop,
			relayer.WithLogger(logger),
			relayer.WithDomainSource(func() eip712.Domain {
				return eip712.Domain{ChainID: a.Params().ChainID, VerifyingContract: a.LedgerAddress()}
			}),
		)
		hs := &http.Server{
			Addr:              addr,
			Handler:           relayer.NewHandler(svc, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("relayer listening", "addr", addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("relayer stopped", "err", err)
				stop()
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(sctx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// loadOrCreateSeed reads the hex coprocessor seed at path, creating a fresh
// one on first start.
func loadOrCreateSeed(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return seed, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return nil, err
	}
	return seed, nil
}
