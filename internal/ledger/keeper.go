// Package ledger implements the confidential balance ledger and the
// per-participant round state machine on top of the fhe executor.
package ledger

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"onchaindice/internal/fhe"
	"onchaindice/internal/ocpcrypto"
	"onchaindice/internal/state"
)

// Keeper is the sole writer of participants and rounds in st. A keeper
// built without an executor is read-only.
type Keeper struct {
	st *state.State
	ex *fhe.Executor
}

func NewKeeper(st *state.State, ex *fhe.Executor) Keeper {
	if st == nil {
		panic("ledger keeper: state is nil")
	}
	return Keeper{st: st, ex: ex}
}

func (k Keeper) Params() state.Params {
	return k.st.Params
}

func (k Keeper) LedgerAddress() common.Address {
	return k.st.LedgerAddress
}

func (k Keeper) executor() (*fhe.Executor, error) {
	if k.ex == nil {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "read-only keeper")
	}
	if k.ex.Self() != k.st.LedgerAddress {
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "executor principal %s is not ledger %s", k.ex.Self().Hex(), k.st.LedgerAddress.Hex())
	}
	return k.ex, nil
}

func (k Keeper) networkKey() (ocpcrypto.Point, error) {
	if len(k.st.NetworkPublicKey) == 0 {
		return ocpcrypto.Point{}, errorsmod.Wrap(ErrInvalidRequest, "network public key not configured")
	}
	pk, err := ocpcrypto.DecodePoint(k.st.NetworkPublicKey)
	if err != nil {
		return ocpcrypto.Point{}, errorsmod.Wrapf(ErrInvalidRequest, "network public key: %v", err)
	}
	return pk, nil
}

func (k Keeper) participant(p common.Address) *state.Participant {
	return k.st.Participants[p]
}

func (k Keeper) requireJoined(p common.Address) (*state.Participant, error) {
	part := k.participant(p)
	if part == nil || !part.Joined {
		return nil, errorsmod.Wrapf(ErrPlayerNotJoined, "participant %s", p.Hex())
	}
	return part, nil
}

// grant persists access for every principal on every handle.
func (k Keeper) grant(ex *fhe.Executor, principals []common.Address, hs ...fhe.Handle) error {
	for _, h := range hs {
		for _, p := range principals {
			if err := ex.Allow(h, p); err != nil {
				return err
			}
		}
	}
	return nil
}
