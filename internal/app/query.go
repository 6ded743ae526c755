package app

import (
	"context"
	"encoding/json"
	"strings"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"

	"onchaindice/internal/fhe"
	"onchaindice/internal/ledger"
	"onchaindice/internal/ocpcrypto"
	"onchaindice/internal/state"
)

type ParticipantView struct {
	Address common.Address `json:"address"`
	Joined  bool           `json:"joined"`
	Balance fhe.Handle     `json:"balance"`
}

type RoundView struct {
	ledger.RoundMetadata
	DiceResult fhe.Handle `json:"diceResult"`
	LastGuess  fhe.Handle `json:"lastGuess"`
	WinFlag    fhe.Handle `json:"winFlag"`
}

type HandleView struct {
	Handle fhe.Handle `json:"handle"`
}

type ACLView struct {
	Handle    fhe.Handle     `json:"handle"`
	Principal common.Address `json:"principal"`
	Allowed   bool           `json:"allowed"`
}

type ParamsView struct {
	Params           state.Params   `json:"params"`
	LedgerAddress    common.Address `json:"ledgerAddress"`
	NetworkPublicKey []byte         `json:"networkPublicKey,omitempty"`
}

func (a *DiceApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /params
	// - /account/<addr>
	// - /participant/<addr>, /joined/<addr>, /round/<addr>
	// - /balance/<addr>, /dice/<addr>, /guess/<addr>, /outcome/<addr>
	// - /acl/<handle>/<addr>
	k := ledger.NewKeeper(a.st, nil)
	path := strings.TrimSpace(req.Path)
	if path == "/params" {
		return a.queryOK(ParamsView{Params: a.st.Params, LedgerAddress: a.st.LedgerAddress, NetworkPublicKey: a.st.NetworkPublicKey})
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if parts[0] == "acl" {
		if len(parts) != 3 {
			return a.queryErr("expected /acl/<handle>/<addr>")
		}
		h, err := fhe.ParseHandle(parts[1])
		if err != nil {
			return a.queryErr("invalid handle")
		}
		addr, ok := parseAddress(parts[2])
		if !ok {
			return a.queryErr("invalid address")
		}
		return a.queryOK(ACLView{Handle: h, Principal: addr, Allowed: k.IsAllowed(h, addr)})
	}
	if len(parts) != 2 {
		return a.queryErr("unknown query path")
	}
	addr, ok := parseAddress(parts[1])
	if !ok {
		return a.queryErr("invalid address")
	}

	switch parts[0] {
	case "account":
		return a.queryOK(map[string]any{"addr": addr, "balance": a.st.Balance(addr), "nonce": a.st.NonceMax[addr]})
	case "participant":
		return a.queryOK(ParticipantView{Address: addr, Joined: k.HasJoined(addr), Balance: k.Balance(addr)})
	case "joined":
		return a.queryOK(map[string]bool{"joined": k.HasJoined(addr)})
	case "round":
		return a.queryOK(RoundView{
			RoundMetadata: k.RoundMetadata(addr),
			DiceResult:    k.DiceResult(addr),
			LastGuess:     k.LastGuess(addr),
			WinFlag:       k.LastOutcome(addr),
		})
	case "balance":
		return a.queryOK(HandleView{Handle: k.Balance(addr)})
	case "dice":
		return a.queryOK(HandleView{Handle: k.DiceResult(addr)})
	case "guess":
		return a.queryOK(HandleView{Handle: k.LastGuess(addr)})
	case "outcome":
		return a.queryOK(HandleView{Handle: k.LastOutcome(addr)})
	default:
		return a.queryErr("unknown query path")
	}
}

func (a *DiceApp) queryOK(v any) (*abci.QueryResponse, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
	}
	return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
}

func (a *DiceApp) queryErr(msg string) (*abci.QueryResponse, error) {
	return &abci.QueryResponse{Code: 1, Log: msg, Height: a.st.Height}, nil
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// IsAllowed reads the current ACL so an in-process relayer can share the
// node's state.
func (a *DiceApp) IsAllowed(_ context.Context, h fhe.Handle, p common.Address) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.ACL.IsAllowed(h, p), nil
}

func (a *DiceApp) LedgerAddress() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.LedgerAddress
}

func (a *DiceApp) Params() state.Params {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.Params
}

func (a *DiceApp) NetworkPublicKey() (ocpcrypto.Point, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ocpcrypto.DecodePoint(a.st.NetworkPublicKey)
}
