package ledger

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"onchaindice/internal/fhe"
	"onchaindice/internal/state"
)

const (
	DiceFaces = 6

	// Guess categories. A zero guess only exists before the first guess of a round.
	GuessBig   = 1 // dice 4..6
	GuessSmall = 2 // dice 1..3

	smallMax = 3
)

// StartRound rolls a fresh encrypted die for p. Only the ledger may read
// the die until the round resolves.
func (k Keeper) StartRound(p common.Address) (RoundStarted, error) {
	ex, err := k.executor()
	if err != nil {
		return RoundStarted{}, err
	}
	if _, err := k.requireJoined(p); err != nil {
		return RoundStarted{}, err
	}
	r := k.st.Rounds[p]
	if r != nil && r.IsActive {
		return RoundStarted{}, errorsmod.Wrapf(ErrRoundAlreadyActive, "participant %s", p.Hex())
	}

	random, err := ex.Rand(fhe.TypeUint32)
	if err != nil {
		return RoundStarted{}, err
	}
	reduced, err := ex.RemScalar(random, DiceFaces)
	if err != nil {
		return RoundStarted{}, err
	}
	dice, err := ex.AddScalar(reduced, 1)
	if err != nil {
		return RoundStarted{}, err
	}
	lastGuess, err := ex.TrivialEncrypt(0, fhe.TypeUint32)
	if err != nil {
		return RoundStarted{}, err
	}
	winFlag, err := ex.TrivialEncrypt(0, fhe.TypeUint32)
	if err != nil {
		return RoundStarted{}, err
	}
	if err := ex.AllowSelf(dice, lastGuess, winFlag); err != nil {
		return RoundStarted{}, err
	}

	if r == nil {
		r = &state.Round{}
	}
	r.DiceResult = dice
	r.LastGuess = lastGuess
	r.WinFlag = winFlag
	r.IsActive = true
	k.st.Rounds[p] = r

	return RoundStarted{Participant: p, DiceResult: dice}, nil
}

// SubmitGuess resolves the active round against an encrypted guess. The
// outcome is computed with Select only; nothing is decrypted here.
func (k Keeper) SubmitGuess(p common.Address, guessInput fhe.Input, proof []byte) (GuessResolved, error) {
	ex, err := k.executor()
	if err != nil {
		return GuessResolved{}, err
	}
	part, err := k.requireJoined(p)
	if err != nil {
		return GuessResolved{}, err
	}
	r := k.st.Rounds[p]
	if r == nil || !r.IsActive {
		return GuessResolved{}, errorsmod.Wrapf(ErrRoundNotActive, "participant %s", p.Hex())
	}
	networkPK, err := k.networkKey()
	if err != nil {
		return GuessResolved{}, err
	}
	if guessInput.Type != fhe.TypeUint32 {
		return GuessResolved{}, errorsmod.Wrapf(ErrInvalidProof, "guess must be %s, got %s", fhe.TypeUint32, guessInput.Type)
	}
	guess, err := ex.VerifyInput(guessInput, proof, p, networkPK)
	if err != nil {
		return GuessResolved{}, errorsmod.Wrap(ErrInvalidProof, err.Error())
	}

	isBig, err := ex.GtScalar(r.DiceResult, smallMax)
	if err != nil {
		return GuessResolved{}, err
	}
	big, err := ex.TrivialEncrypt(GuessBig, fhe.TypeUint32)
	if err != nil {
		return GuessResolved{}, err
	}
	small, err := ex.TrivialEncrypt(GuessSmall, fhe.TypeUint32)
	if err != nil {
		return GuessResolved{}, err
	}
	category, err := ex.Select(isBig, big, small)
	if err != nil {
		return GuessResolved{}, err
	}
	matches, err := ex.Eq(guess, category)
	if err != nil {
		return GuessResolved{}, err
	}
	one, err := ex.TrivialEncrypt(1, fhe.TypeUint32)
	if err != nil {
		return GuessResolved{}, err
	}
	zero, err := ex.TrivialEncrypt(0, fhe.TypeUint32)
	if err != nil {
		return GuessResolved{}, err
	}
	winFlag, err := ex.Select(matches, one, zero)
	if err != nil {
		return GuessResolved{}, err
	}
	win64, err := ex.Cast(winFlag, fhe.TypeUint64)
	if err != nil {
		return GuessResolved{}, err
	}
	reward, err := ex.MulScalar(win64, k.st.Params.RoundReward)
	if err != nil {
		return GuessResolved{}, err
	}
	newBalance, err := ex.Add(part.Balance, reward)
	if err != nil {
		return GuessResolved{}, err
	}

	if err := ex.AllowSelf(newBalance, guess, winFlag); err != nil {
		return GuessResolved{}, err
	}
	if err := k.grant(ex, []common.Address{p}, r.DiceResult, guess, winFlag, newBalance); err != nil {
		return GuessResolved{}, err
	}

	part.Balance = newBalance
	r.LastGuess = guess
	r.WinFlag = winFlag
	r.IsActive = false
	r.HasHistory = true

	return GuessResolved{
		Participant: p,
		LastGuess:   guess,
		WinFlag:     winFlag,
		Balance:     newBalance,
	}, nil
}
