package app

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"onchaindice/internal/codec"
	"onchaindice/internal/state"
)

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return fmt.Errorf("missing tx.nonce")
	}
	if env.Signer == "" {
		return fmt.Errorf("missing tx.signer")
	}
	if !common.IsHexAddress(env.Signer) {
		return fmt.Errorf("invalid tx.signer %q", env.Signer)
	}
	if len(env.Sig) == 0 {
		return fmt.Errorf("missing tx.sig")
	}
	if len(env.Sig) != crypto.SignatureLength {
		return fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), crypto.SignatureLength)
	}
	return nil
}

// verifyEnvelope checks the signature statelessly and returns the signer.
func verifyEnvelope(env codec.TxEnvelope) (common.Address, error) {
	if err := requireSignedEnvelope(env); err != nil {
		return common.Address{}, err
	}
	signer := common.HexToAddress(env.Signer)
	recovered, err := codec.RecoverSigner(env)
	if err != nil {
		return common.Address{}, err
	}
	if recovered != signer {
		return common.Address{}, fmt.Errorf("invalid signature")
	}
	return signer, nil
}

// requireAccountAuth authenticates env as signed by account and consumes
// its nonce on st.
func requireAccountAuth(st *state.State, env codec.TxEnvelope, account common.Address) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	if account == (common.Address{}) {
		return fmt.Errorf("missing account")
	}
	signer, err := verifyEnvelope(env)
	if err != nil {
		return err
	}
	if signer != account {
		return fmt.Errorf("tx signer mismatch: signer=%s want=%s", signer.Hex(), account.Hex())
	}
	nonce, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tx.nonce %q", env.Nonce)
	}
	if last, ok := st.NonceMax[signer]; ok && nonce <= last {
		return fmt.Errorf("replayed tx.nonce: got %d, last %d", nonce, last)
	}
	st.NonceMax[signer] = nonce
	return nil
}
