package codec

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const txAuthDomainV0 = "odic/tx/v0"

// TxSignBytesV0 is the preimage of the tx signature digest.
func TxSignBytesV0(typ string, value []byte, nonce string, signer string) []byte {
	// signBytes = DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV0)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomainV0)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// TxDigestV0 is keccak256(TxSignBytesV0(...)).
func TxDigestV0(env TxEnvelope) []byte {
	return crypto.Keccak256(TxSignBytesV0(env.Type, env.Value, env.Nonce, env.Signer))
}

// RecoverSigner returns the address whose key produced env.Sig.
func RecoverSigner(env TxEnvelope) (common.Address, error) {
	if len(env.Sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), crypto.SignatureLength)
	}
	pub, err := crypto.SigToPub(TxDigestV0(env), env.Sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// NewSignedTx encodes value and signs the envelope with key.
func NewSignedTx(typ string, value any, nonce uint64, key *ecdsa.PrivateKey) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode tx value: %w", err)
	}
	env := TxEnvelope{
		Type:   typ,
		Value:  raw,
		Nonce:  strconv.FormatUint(nonce, 10),
		Signer: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
	sig, err := crypto.Sign(TxDigestV0(env), key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	env.Sig = sig
	return json.Marshal(env)
}

// NewUnsignedTx builds an envelope without auth (devnet faucet only).
func NewUnsignedTx(typ string, value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode tx value: %w", err)
	}
	return json.Marshal(TxEnvelope{Type: typ, Value: raw})
}
