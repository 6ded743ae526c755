package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"onchaindice/internal/fhe"
)

const (
	EventTypePointsPurchased = "PointsPurchased"
	EventTypeRoundStarted    = "RoundStarted"
	EventTypeGuessResolved   = "GuessResolved"
)

// Event is a ledger observability record. Attributes never carry secrets:
// only public amounts and ciphertext handles.
type Event interface {
	Type() string
	Attributes() map[string]string
}

type PointsPurchased struct {
	Participant   common.Address
	DepositAmount sdkmath.Uint
	MintedPoints  uint64
	Balance       fhe.Handle
}

func (PointsPurchased) Type() string { return EventTypePointsPurchased }

func (e PointsPurchased) Attributes() map[string]string {
	return map[string]string{
		"participant":   e.Participant.Hex(),
		"depositAmount": e.DepositAmount.String(),
		"mintedPoints":  fmt.Sprintf("%d", e.MintedPoints),
		"balance":       e.Balance.String(),
	}
}

type RoundStarted struct {
	Participant common.Address
	DiceResult  fhe.Handle
}

func (RoundStarted) Type() string { return EventTypeRoundStarted }

func (e RoundStarted) Attributes() map[string]string {
	return map[string]string{
		"participant": e.Participant.Hex(),
		"diceResult":  e.DiceResult.String(),
	}
}

type GuessResolved struct {
	Participant common.Address
	LastGuess   fhe.Handle
	WinFlag     fhe.Handle
	Balance     fhe.Handle
}

func (GuessResolved) Type() string { return EventTypeGuessResolved }

func (e GuessResolved) Attributes() map[string]string {
	return map[string]string{
		"participant": e.Participant.Hex(),
		"lastGuess":   e.LastGuess.String(),
		"winFlag":     e.WinFlag.String(),
		"balance":     e.Balance.String(),
	}
}
