package codec

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestDecodeTxEnvelope_OK(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"type":  TxBankMint,
		"value": map[string]any{"to": "0x00000000000000000000000000000000000000a1", "amount": 123},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := DecodeTxEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeTxEnvelope: %v", err)
	}
	if env.Type != TxBankMint {
		t.Fatalf("unexpected type: %q", env.Type)
	}

	var v BankMintTx
	if err := json.Unmarshal(env.Value, &v); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if v.To != common.HexToAddress("0xa1") || v.Amount != 123 {
		t.Fatalf("unexpected value: %+v", v)
	}
}

func TestDecodeTxEnvelope_MissingType(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"value": map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = DecodeTxEnvelope(b)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeTxEnvelope_InvalidJSON(t *testing.T) {
	_, err := DecodeTxEnvelope([]byte("{not json"))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestSignedTx_RecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	b, err := NewSignedTx(TxDiceStartRound, DiceStartRoundTx{Participant: addr}, 1, key)
	if err != nil {
		t.Fatalf("NewSignedTx: %v", err)
	}
	env, err := DecodeTxEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeTxEnvelope: %v", err)
	}
	if env.Signer != addr.Hex() || env.Nonce != "1" {
		t.Fatalf("unexpected envelope: signer=%q nonce=%q", env.Signer, env.Nonce)
	}
	got, err := RecoverSigner(env)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if got != addr {
		t.Fatalf("recovered %s want %s", got.Hex(), addr.Hex())
	}

	// Any change to the signed fields changes the recovered address.
	env.Nonce = "2"
	got, err = RecoverSigner(env)
	if err == nil && got == addr {
		t.Fatalf("signature still valid after nonce change")
	}
}

func TestRecoverSigner_BadLength(t *testing.T) {
	_, err := RecoverSigner(TxEnvelope{Type: TxDiceJoin, Sig: []byte{1, 2, 3}})
	if err == nil {
		t.Fatalf("expected error")
	}
}
