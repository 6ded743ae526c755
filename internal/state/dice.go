package state

import "onchaindice/internal/fhe"

// Params are the public economic constants of the ledger.
type Params struct {
	// PointsPerUnit points are minted per UnitScale base units deposited.
	PointsPerUnit uint64 `json:"pointsPerUnit"`
	// UnitScale is the number of native base units in one whole unit.
	UnitScale uint64 `json:"unitScale"`
	// RoundReward is credited (encrypted) when a guess wins.
	RoundReward uint64 `json:"roundReward"`
	// ChainID is the numeric chain id used in the EIP-712 domain.
	ChainID uint64 `json:"chainId"`
}

func DefaultParams() Params {
	return Params{
		PointsPerUnit: 10_000,
		UnitScale:     1_000_000_000_000_000_000,
		RoundReward:   1_000,
		ChainID:       9000,
	}
}

type Participant struct {
	Joined  bool       `json:"joined"`
	Balance fhe.Handle `json:"balance"` // euint64
}

// Round is the per-participant game record. It is overwritten by the next
// round; handles from earlier rounds keep their grants.
type Round struct {
	DiceResult fhe.Handle `json:"diceResult"` // euint32 in 1..6
	LastGuess  fhe.Handle `json:"lastGuess"`  // euint32, 0 before a guess, else 1 (big) or 2 (small)
	WinFlag    fhe.Handle `json:"winFlag"`    // euint32 0/1
	IsActive   bool       `json:"isActive"`
	HasHistory bool       `json:"hasHistory"`
}
