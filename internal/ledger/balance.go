package ledger

import (
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"onchaindice/internal/fhe"
	"onchaindice/internal/state"
)

// MintPoints returns floor(deposit * PointsPerUnit / UnitScale).
func MintPoints(params state.Params, deposit sdkmath.Uint) (uint64, error) {
	if deposit == (sdkmath.Uint{}) || deposit.IsZero() {
		return 0, errorsmod.Wrap(ErrInvalidDeposit, "deposit must be positive")
	}
	if params.UnitScale == 0 {
		return 0, errorsmod.Wrap(ErrInvalidRequest, "unit scale is zero")
	}
	minted := deposit.Mul(sdkmath.NewUint(params.PointsPerUnit)).Quo(sdkmath.NewUint(params.UnitScale))
	if minted.IsZero() {
		return 0, errorsmod.Wrapf(ErrInvalidDeposit, "deposit %s mints no points", deposit)
	}
	if !minted.BigInt().IsUint64() {
		return 0, errorsmod.Wrapf(ErrInvalidDeposit, "deposit %s mints more than uint64 points", deposit)
	}
	return minted.Uint64(), nil
}

// Join converts a public deposit into encrypted points added to the
// participant's balance. The minted amount is public; the running balance
// is not.
func (k Keeper) Join(p common.Address, deposit sdkmath.Uint) (uint64, PointsPurchased, error) {
	ex, err := k.executor()
	if err != nil {
		return 0, PointsPurchased{}, err
	}
	minted, err := MintPoints(k.st.Params, deposit)
	if err != nil {
		return 0, PointsPurchased{}, err
	}

	part := k.participant(p)
	if part == nil {
		part = &state.Participant{}
	}
	balance := part.Balance
	if balance.IsEmpty() {
		if balance, err = ex.TrivialEncrypt(0, fhe.TypeUint64); err != nil {
			return 0, PointsPurchased{}, err
		}
	}
	points, err := ex.TrivialEncrypt(minted, fhe.TypeUint64)
	if err != nil {
		return 0, PointsPurchased{}, err
	}
	newBalance, err := ex.Add(balance, points)
	if err != nil {
		return 0, PointsPurchased{}, err
	}
	if err := k.grant(ex, []common.Address{ex.Self(), p}, newBalance); err != nil {
		return 0, PointsPurchased{}, err
	}

	part.Balance = newBalance
	part.Joined = true
	k.st.Participants[p] = part

	return minted, PointsPurchased{
		Participant:   p,
		DepositAmount: deposit,
		MintedPoints:  minted,
		Balance:       newBalance,
	}, nil
}
