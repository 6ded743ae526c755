package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"onchaindice/internal/fhe"
)

// RoundMetadata is the public part of a round.
type RoundMetadata struct {
	IsActive   bool `json:"isActive"`
	HasHistory bool `json:"hasHistory"`
}

func (k Keeper) HasJoined(p common.Address) bool {
	part := k.participant(p)
	return part != nil && part.Joined
}

// Balance returns the participant's balance handle, or the empty handle.
func (k Keeper) Balance(p common.Address) fhe.Handle {
	if part := k.participant(p); part != nil {
		return part.Balance
	}
	return fhe.EmptyHandle
}

func (k Keeper) RoundMetadata(p common.Address) RoundMetadata {
	r := k.st.Rounds[p]
	if r == nil {
		return RoundMetadata{}
	}
	return RoundMetadata{IsActive: r.IsActive, HasHistory: r.HasHistory}
}

func (k Keeper) DiceResult(p common.Address) fhe.Handle {
	if r := k.st.Rounds[p]; r != nil {
		return r.DiceResult
	}
	return fhe.EmptyHandle
}

func (k Keeper) LastGuess(p common.Address) fhe.Handle {
	if r := k.st.Rounds[p]; r != nil {
		return r.LastGuess
	}
	return fhe.EmptyHandle
}

// LastOutcome returns the win flag handle of the current or last round.
func (k Keeper) LastOutcome(p common.Address) fhe.Handle {
	if r := k.st.Rounds[p]; r != nil {
		return r.WinFlag
	}
	return fhe.EmptyHandle
}

func (k Keeper) IsAllowed(h fhe.Handle, p common.Address) bool {
	return k.st.ACL.IsAllowed(h, p)
}
