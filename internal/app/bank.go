package app

import (
	"encoding/json"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"

	"onchaindice/internal/codec"
	"onchaindice/internal/state"
)

// execBankMint is the devnet faucet; it is unauthenticated.
func execBankMint(st *state.State, env codec.TxEnvelope) (*abci.ExecTxResult, error) {
	var msg codec.BankMintTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return nil, fmt.Errorf("bad bank/mint value")
	}
	if msg.To == (common.Address{}) || msg.Amount == 0 {
		return nil, fmt.Errorf("missing to/amount")
	}
	if err := st.Credit(msg.To, msg.Amount); err != nil {
		return nil, err
	}
	return okEvent("BankMinted", map[string]string{
		"to":     msg.To.Hex(),
		"amount": fmt.Sprintf("%d", msg.Amount),
	}), nil
}

func execBankSend(st *state.State, env codec.TxEnvelope) (*abci.ExecTxResult, error) {
	var msg codec.BankSendTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return nil, fmt.Errorf("bad bank/send value")
	}
	if msg.From == (common.Address{}) || msg.To == (common.Address{}) || msg.Amount == 0 {
		return nil, fmt.Errorf("missing from/to/amount")
	}
	if err := requireAccountAuth(st, env, msg.From); err != nil {
		return nil, err
	}
	if err := st.Debit(msg.From, msg.Amount); err != nil {
		return nil, err
	}
	if err := st.Credit(msg.To, msg.Amount); err != nil {
		return nil, err
	}
	return okEvent("BankSent", map[string]string{
		"from":   msg.From.Hex(),
		"to":     msg.To.Hex(),
		"amount": fmt.Sprintf("%d", msg.Amount),
	}), nil
}
