package app

import (
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	abci "github.com/cometbft/cometbft/abci/types"

	"onchaindice/internal/codec"
	"onchaindice/internal/fhe"
	"onchaindice/internal/ledger"
	"onchaindice/internal/state"
)

func ledgerResult(ev ledger.Event) *abci.ExecTxResult {
	return okEvent(ev.Type(), ev.Attributes())
}

func execDiceJoin(st *state.State, ex *fhe.Executor, env codec.TxEnvelope) (*abci.ExecTxResult, error) {
	var msg codec.DiceJoinTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return nil, errorsmod.Wrap(ledger.ErrInvalidRequest, "bad dice/join value")
	}
	if err := requireAccountAuth(st, env, msg.Participant); err != nil {
		return nil, err
	}
	deposit, err := sdkmath.ParseUint(msg.DepositAmount)
	if err != nil {
		return nil, errorsmod.Wrapf(ledger.ErrInvalidDeposit, "depositAmount %q", msg.DepositAmount)
	}
	// A deposit that mints nothing is rejected before any bank balance is
	// consulted.
	if _, err := ledger.MintPoints(st.Params, deposit); err != nil {
		return nil, err
	}
	if !deposit.BigInt().IsUint64() {
		return nil, errorsmod.Wrapf(ledger.ErrInvalidDeposit, "depositAmount %s exceeds any bank balance", deposit)
	}
	amount := deposit.Uint64()
	if err := st.Debit(msg.Participant, amount); err != nil {
		return nil, err
	}
	if err := st.Credit(st.LedgerAddress, amount); err != nil {
		return nil, err
	}

	_, ev, err := ledger.NewKeeper(st, ex).Join(msg.Participant, deposit)
	if err != nil {
		return nil, err
	}
	return ledgerResult(ev), nil
}

func execDiceStartRound(st *state.State, ex *fhe.Executor, env codec.TxEnvelope) (*abci.ExecTxResult, error) {
	var msg codec.DiceStartRoundTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return nil, errorsmod.Wrap(ledger.ErrInvalidRequest, "bad dice/start_round value")
	}
	if err := requireAccountAuth(st, env, msg.Participant); err != nil {
		return nil, err
	}
	ev, err := ledger.NewKeeper(st, ex).StartRound(msg.Participant)
	if err != nil {
		return nil, err
	}
	return ledgerResult(ev), nil
}

func execDiceSubmitGuess(st *state.State, ex *fhe.Executor, env codec.TxEnvelope) (*abci.ExecTxResult, error) {
	var msg codec.DiceSubmitGuessTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return nil, errorsmod.Wrap(ledger.ErrInvalidRequest, "bad dice/submit_guess value")
	}
	if err := requireAccountAuth(st, env, msg.Participant); err != nil {
		return nil, err
	}
	ev, err := ledger.NewKeeper(st, ex).SubmitGuess(msg.Participant, msg.Guess, msg.Proof)
	if err != nil {
		return nil, err
	}
	return ledgerResult(ev), nil
}
