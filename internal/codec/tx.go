package codec

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"onchaindice/internal/fhe"
)

const (
	TxBankMint        = "bank/mint"
	TxBankSend        = "bank/send"
	TxDiceJoin        = "dice/join"
	TxDiceStartRound  = "dice/start_round"
	TxDiceSubmitGuess = "dice/submit_guess"
)

// TxEnvelope is the v0 transaction container.
//
// CometBFT transactions are opaque bytes; txs are JSON envelopes routed by
// Type and, except for the devnet faucet, signed by the acting account.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Nonce must strictly increase per signer. Signer is the hex address of
	// the acting account and Sig a 65-byte secp256k1 signature over
	// TxSignBytesV0.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

type BankSendTx struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// ---- Dice ----

type DiceJoinTx struct {
	Participant common.Address `json:"participant"`
	// DepositAmount is a decimal string of native base units.
	DepositAmount string `json:"depositAmount"`
}

type DiceStartRoundTx struct {
	Participant common.Address `json:"participant"`
}

type DiceSubmitGuessTx struct {
	Participant common.Address `json:"participant"`
	Guess       fhe.Input      `json:"guess"`
	Proof       []byte         `json:"proof"` // base64 in JSON (64 bytes)
}
