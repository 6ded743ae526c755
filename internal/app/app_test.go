package app

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"strconv"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"onchaindice/internal/codec"
	"onchaindice/internal/coprocessor"
	"onchaindice/internal/fhe"
)

const (
	testChainID = "odic-test"
	halfUnit    = "500000000000000000"
	oneUnit     = uint64(1_000_000_000_000_000_000)
)

type testAccount struct {
	key   *ecdsa.PrivateKey
	addr  common.Address
	nonce uint64
}

func newTestAccount(t *testing.T) *testAccount {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return &testAccount{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// tx signs value with the next nonce of acc.
func (acc *testAccount) tx(t *testing.T, typ string, value any) []byte {
	t.Helper()
	acc.nonce++
	b, err := codec.NewSignedTx(typ, value, acc.nonce, acc.key)
	if err != nil {
		t.Fatalf("NewSignedTx: %v", err)
	}
	return b
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func mustUnmarshal(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func parseU64(t *testing.T, s string) uint64 {
	t.Helper()
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		t.Fatalf("parse uint64 %q: %v", s, err)
	}
	return n
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got code=%d codespace=%q log=%q", res.Code, res.Codespace, res.Log)
	}
	return res
}

func mustFail(t *testing.T, res *abci.ExecTxResult, codespace string, code uint32) {
	t.Helper()
	if res.Code != code || res.Codespace != codespace {
		t.Fatalf("expected %s/%d, got code=%d codespace=%q log=%q", codespace, code, res.Code, res.Codespace, res.Log)
	}
}

type testNode struct {
	*DiceApp
	home string
	cop  *coprocessor.Coprocessor
}

func newTestNode(t *testing.T, beacon uint64) *testNode {
	t.Helper()
	return newWrappedTestNode(t, beacon, func(c *coprocessor.Coprocessor) fhe.Coprocessor { return c })
}

// newWrappedTestNode lets a test interpose on what the app sends to the
// coprocessor. The node's cop field stays the unwrapped coprocessor.
func newWrappedTestNode(t *testing.T, beacon uint64, wrap func(*coprocessor.Coprocessor) fhe.Coprocessor) *testNode {
	t.Helper()
	seed := bytes.Repeat([]byte{3}, 32)
	cop, err := coprocessor.New(dbm.NewMemDB(), seed, coprocessor.WithBeacon(coprocessor.FixedBeacon(beacon)))
	if err != nil {
		t.Fatalf("coprocessor.New: %v", err)
	}
	home := t.TempDir()
	a, err := New(home, WithCoprocessor(wrap(cop)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.InitChain(context.Background(), &abci.InitChainRequest{ChainId: testChainID}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}
	return &testNode{DiceApp: a, home: home, cop: cop}
}

func (n *testNode) commit(t *testing.T) {
	t.Helper()
	if _, err := n.Commit(context.Background(), &abci.CommitRequest{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func (n *testNode) decrypt(t *testing.T, h fhe.Handle) uint64 {
	t.Helper()
	v, err := n.cop.Decrypt(context.Background(), h)
	if err != nil {
		t.Fatalf("Decrypt(%s): %v", h, err)
	}
	return v
}

func (n *testNode) query(t *testing.T, path string, out any) {
	t.Helper()
	res, err := n.Query(context.Background(), &abci.QueryRequest{Path: path})
	if err != nil {
		t.Fatalf("Query(%s): %v", path, err)
	}
	if res.Code != 0 {
		t.Fatalf("Query(%s): code=%d log=%q", path, res.Code, res.Log)
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func (n *testNode) handle(t *testing.T, kind string, addr common.Address) fhe.Handle {
	t.Helper()
	var v HandleView
	n.query(t, "/"+kind+"/"+addr.Hex(), &v)
	return v.Handle
}

func (n *testNode) allowed(t *testing.T, h fhe.Handle, addr common.Address) bool {
	t.Helper()
	var v ACLView
	n.query(t, "/acl/"+h.String()+"/"+addr.Hex(), &v)
	return v.Allowed
}

func (n *testNode) guessTx(t *testing.T, acc *testAccount, guess uint64) []byte {
	t.Helper()
	pk, err := n.NetworkPublicKey()
	if err != nil {
		t.Fatalf("NetworkPublicKey: %v", err)
	}
	in, proof, err := fhe.EncryptInput(rand.Reader, pk, fhe.TypeUint32, guess, acc.addr, n.LedgerAddress())
	if err != nil {
		t.Fatalf("EncryptInput: %v", err)
	}
	return acc.tx(t, codec.TxDiceSubmitGuess, codec.DiceSubmitGuessTx{Participant: acc.addr, Guess: in, Proof: proof})
}

// fund mints oneUnit to acc and joins with half of it.
func (n *testNode) fundAndJoin(t *testing.T, acc *testAccount, height int64) *abci.ExecTxResult {
	t.Helper()
	mustOk(t, n.deliverTx(txBytes(t, codec.TxBankMint, map[string]any{"to": acc.addr, "amount": oneUnit}), height, 0))
	return mustOk(t, n.deliverTx(acc.tx(t, codec.TxDiceJoin, codec.DiceJoinTx{Participant: acc.addr, DepositAmount: halfUnit}), height, 1))
}
