package app

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"onchaindice/internal/codec"
	"onchaindice/internal/fhe"
	"onchaindice/internal/ocpcrypto"
	"onchaindice/internal/state"
)

const (
	AppVersion uint64 = 1

	executorSeedDomain = "odic/app/executor-seed/v0"
	flushTimeout       = 30 * time.Second
)

// keySource is implemented by coprocessors that can publish the network key.
type keySource interface {
	PublicKey() ocpcrypto.Point
}

type Option func(*DiceApp)

// WithCoprocessor sets where committed computations are sent.
func WithCoprocessor(c fhe.Coprocessor) Option {
	return func(a *DiceApp) { a.cop = c }
}

func WithLogger(l log.Logger) Option {
	return func(a *DiceApp) { a.logger = l }
}

type DiceApp struct {
	*abci.BaseApplication

	home   string
	cop    fhe.Coprocessor
	logger log.Logger

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
	// pending holds the computation batches the coprocessor has not yet
	// accepted, oldest first. It is journaled next to the state.
	pending []batch
}

func New(home string, opts ...Option) (*DiceApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	pending, err := loadPending(appHome)
	if err != nil {
		return nil, err
	}
	a := &DiceApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		logger:          log.NewNopLogger(),
		st:              st,
		lastHash:        st.AppHash(),
		pending:         pending,
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.With("module", "app")
	return a, nil
}

func (a *DiceApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "ODIC (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *DiceApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// Stateless auth only; nonces are checked at execution.
	if env.Type != codec.TxBankMint {
		if _, err := verifyEnvelope(env); err != nil {
			return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
		}
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

// GenesisState is the InitChain app state.
type GenesisState struct {
	Params *state.Params `json:"params,omitempty"`
	// NetworkPublicKey overrides the coprocessor key (base64, 32 bytes).
	NetworkPublicKey []byte                    `json:"networkPublicKey,omitempty"`
	Accounts         map[common.Address]uint64 `json:"accounts,omitempty"`
}

func (a *DiceApp) InitChain(_ context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var gen GenesisState
	if len(req.AppStateBytes) > 0 {
		if err := json.Unmarshal(req.AppStateBytes, &gen); err != nil {
			return nil, fmt.Errorf("decode genesis app state: %w", err)
		}
	}
	if req.ChainId != "" {
		a.st.LedgerAddress = state.LedgerAddressForChain(req.ChainId)
	}
	if gen.Params != nil {
		a.st.Params = *gen.Params
	}
	switch {
	case len(gen.NetworkPublicKey) > 0:
		if _, err := ocpcrypto.DecodePoint(gen.NetworkPublicKey); err != nil {
			return nil, fmt.Errorf("genesis networkPublicKey: %w", err)
		}
		a.st.NetworkPublicKey = append([]byte(nil), gen.NetworkPublicKey...)
	default:
		if ks, ok := a.cop.(keySource); ok {
			a.st.NetworkPublicKey = ks.PublicKey().Bytes()
		}
	}
	for addr, amt := range gen.Accounts {
		if err := a.st.Credit(addr, amt); err != nil {
			return nil, fmt.Errorf("genesis account %s: %w", addr.Hex(), err)
		}
	}
	a.lastHash = a.st.AppHash()
	a.logger.Info("initialized chain", "chainId", req.ChainId, "ledger", a.st.LedgerAddress.Hex())
	return &abci.InitChainResponse{AppHash: a.lastHash}, nil
}

func (a *DiceApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for i, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height, i)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *DiceApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// The journal goes first so that computations referenced by the saved
	// state are never lost to a crash.
	appHome := filepath.Join(a.home, "app")
	if err := savePending(appHome, a.pending); err != nil {
		return nil, err
	}
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if left, err := a.flushLocked(ctx); err != nil {
		a.logger.Error("journal pending computations", "height", a.st.Height, "err", err)
	} else if left > 0 {
		a.logger.Info("computations waiting for coprocessor", "height", a.st.Height, "batches", left)
	}
	return &abci.CommitResponse{}, nil
}

func executorSeed(height int64, txIndex int, txBytes []byte) []byte {
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(height))
	binary.BigEndian.PutUint32(buf[8:], uint32(txIndex))
	return crypto.Keccak256([]byte(executorSeedDomain), buf[:], txBytes)
}

// deliverTx executes one tx on a clone of the state and swaps it in only on
// success, together with the computations the tx recorded.
func (a *DiceApp) deliverTx(txBytes []byte, height int64, txIndex int) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	staged, err := a.st.Clone()
	if err != nil {
		return errResult(err)
	}
	ex := fhe.NewExecutor(staged.ACL, staged.LedgerAddress, executorSeed(height, txIndex, txBytes))

	res, err := a.execute(staged, ex, env)
	if err != nil {
		a.logger.Debug("tx failed", "type", env.Type, "height", height, "err", err)
		return errResult(err)
	}
	a.st = staged
	if comps := ex.Computations(); len(comps) > 0 {
		a.pending = append(a.pending, batch{Height: height, TxIdx: txIndex, Comps: comps})
	}
	return res
}

func (a *DiceApp) execute(st *state.State, ex *fhe.Executor, env codec.TxEnvelope) (*abci.ExecTxResult, error) {
	switch env.Type {
	case codec.TxBankMint:
		return execBankMint(st, env)
	case codec.TxBankSend:
		return execBankSend(st, env)
	case codec.TxDiceJoin:
		return execDiceJoin(st, ex, env)
	case codec.TxDiceStartRound:
		return execDiceStartRound(st, ex, env)
	case codec.TxDiceSubmitGuess:
		return execDiceSubmitGuess(st, ex, env)
	default:
		return nil, fmt.Errorf("unknown tx type: %s", env.Type)
	}
}

// errResult keeps the full error text in Log; ABCIInfo would redact
// unregistered errors.
func errResult(err error) *abci.ExecTxResult {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{Code: code, Codespace: codespace, Log: err.Error()}
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
