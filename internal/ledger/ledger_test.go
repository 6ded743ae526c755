package ledger

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"onchaindice/internal/coprocessor"
	"onchaindice/internal/fhe"
	"onchaindice/internal/ocpcrypto"
	"onchaindice/internal/state"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	halfUnit = sdkmath.NewUintFromString("500000000000000000")
)

// harness runs each call as its own transaction: a fresh executor whose
// computations reach the coprocessor only when the call succeeds.
type harness struct {
	t   *testing.T
	st  *state.State
	cop *coprocessor.Coprocessor
	txs int
}

func newHarness(t *testing.T, beacon uint64) *harness {
	t.Helper()
	seed := make([]byte, 32)
	copy(seed, "ledger-test-network-seed")
	cop, err := coprocessor.New(dbm.NewMemDB(), seed, coprocessor.WithBeacon(coprocessor.FixedBeacon(beacon)))
	require.NoError(t, err)

	st := state.NewState()
	st.NetworkPublicKey = cop.PublicKey().Bytes()
	return &harness{t: t, st: st, cop: cop}
}

func (h *harness) exec(fn func(k Keeper) error) error {
	h.t.Helper()
	h.txs++
	ex := fhe.NewExecutor(h.st.ACL, h.st.LedgerAddress, []byte(fmt.Sprintf("tx-%d", h.txs)))
	if err := fn(NewKeeper(h.st, ex)); err != nil {
		return err
	}
	require.NoError(h.t, h.cop.Process(context.Background(), ex.Computations()))
	return nil
}

func (h *harness) reader() Keeper { return NewKeeper(h.st, nil) }

func (h *harness) decrypt(hd fhe.Handle) uint64 {
	h.t.Helper()
	v, err := h.cop.Decrypt(context.Background(), hd)
	require.NoError(h.t, err)
	return v
}

func (h *harness) join(p common.Address, deposit sdkmath.Uint) {
	h.t.Helper()
	require.NoError(h.t, h.exec(func(k Keeper) error {
		_, _, err := k.Join(p, deposit)
		return err
	}))
}

func (h *harness) startRound(p common.Address) RoundStarted {
	h.t.Helper()
	var ev RoundStarted
	require.NoError(h.t, h.exec(func(k Keeper) (err error) {
		ev, err = k.StartRound(p)
		return err
	}))
	return ev
}

func (h *harness) guess(p common.Address, v uint64) (GuessResolved, error) {
	h.t.Helper()
	in, proof, err := fhe.EncryptInput(rand.Reader, h.cop.PublicKey(), fhe.TypeUint32, v, p, h.st.LedgerAddress)
	require.NoError(h.t, err)
	var ev GuessResolved
	err = h.exec(func(k Keeper) (err error) {
		ev, err = k.SubmitGuess(p, in, proof)
		return err
	})
	return ev, err
}

func TestMintPoints(t *testing.T) {
	params := state.DefaultParams()
	for _, tc := range []struct {
		name    string
		deposit sdkmath.Uint
		want    uint64
		wantErr error
	}{
		{name: "half unit", deposit: halfUnit, want: 5000},
		{name: "one unit", deposit: sdkmath.NewUint(params.UnitScale), want: 10000},
		{name: "floors", deposit: sdkmath.NewUint(100_000_000_000_001), want: 1},
		{name: "zero", deposit: sdkmath.ZeroUint(), wantErr: ErrInvalidDeposit},
		{name: "dust", deposit: sdkmath.NewUint(1), wantErr: ErrInvalidDeposit},
		{name: "overflow", deposit: sdkmath.NewUintFromString("100000000000000000000000000000000000000"), wantErr: ErrInvalidDeposit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MintPoints(params, tc.deposit)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestJoin_MintsEncryptedPoints(t *testing.T) {
	h := newHarness(t, 0)

	var ev PointsPurchased
	require.NoError(t, h.exec(func(k Keeper) (err error) {
		var minted uint64
		minted, ev, err = k.Join(alice, halfUnit)
		require.Equal(t, uint64(5000), minted)
		return err
	}))

	k := h.reader()
	require.True(t, k.HasJoined(alice))
	require.False(t, k.HasJoined(bob))
	require.Equal(t, ev.Balance, k.Balance(alice))
	require.Equal(t, fhe.TypeUint64, k.Balance(alice).Type())
	require.Equal(t, uint64(5000), h.decrypt(k.Balance(alice)))
	require.True(t, k.IsAllowed(k.Balance(alice), alice))
	require.True(t, k.IsAllowed(k.Balance(alice), h.st.LedgerAddress))
	require.False(t, k.IsAllowed(k.Balance(alice), bob))

	attrs := ev.Attributes()
	require.Equal(t, "500000000000000000", attrs["depositAmount"])
	require.Equal(t, "5000", attrs["mintedPoints"])
	require.Equal(t, EventTypePointsPurchased, ev.Type())
}

func TestJoin_AccumulatesAndKeepsOldGrants(t *testing.T) {
	h := newHarness(t, 0)
	h.join(alice, halfUnit)
	first := h.reader().Balance(alice)
	h.join(alice, halfUnit)
	second := h.reader().Balance(alice)

	require.NotEqual(t, first, second)
	require.Equal(t, uint64(10000), h.decrypt(second))
	require.True(t, h.reader().IsAllowed(first, alice))
}

func TestJoin_RejectsDustWithoutSideEffects(t *testing.T) {
	h := newHarness(t, 0)
	err := h.exec(func(k Keeper) error {
		_, _, err := k.Join(alice, sdkmath.NewUint(1))
		return err
	})
	require.ErrorIs(t, err, ErrInvalidDeposit)
	require.False(t, h.reader().HasJoined(alice))
	require.True(t, h.reader().Balance(alice).IsEmpty())
	require.Zero(t, h.st.ACL.Len())
}

func TestReadOnlyKeeperCannotMutate(t *testing.T) {
	h := newHarness(t, 0)
	_, _, err := h.reader().Join(alice, halfUnit)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.reader().StartRound(alice)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStartRound_RequiresJoinAndNoActiveRound(t *testing.T) {
	h := newHarness(t, 4)

	err := h.exec(func(k Keeper) error {
		_, err := k.StartRound(alice)
		return err
	})
	require.ErrorIs(t, err, ErrPlayerNotJoined)

	h.join(alice, halfUnit)
	ev := h.startRound(alice)

	k := h.reader()
	meta := k.RoundMetadata(alice)
	require.True(t, meta.IsActive)
	require.False(t, meta.HasHistory)
	require.Equal(t, ev.DiceResult, k.DiceResult(alice))
	require.Equal(t, uint64(5), h.decrypt(k.DiceResult(alice)))
	require.Equal(t, uint64(0), h.decrypt(k.LastGuess(alice)))
	require.Equal(t, uint64(0), h.decrypt(k.LastOutcome(alice)))

	// The die stays hidden from the participant while the round is open.
	require.True(t, k.IsAllowed(k.DiceResult(alice), h.st.LedgerAddress))
	require.False(t, k.IsAllowed(k.DiceResult(alice), alice))

	err = h.exec(func(k Keeper) error {
		_, err := k.StartRound(alice)
		return err
	})
	require.ErrorIs(t, err, ErrRoundAlreadyActive)
}

func TestSubmitGuess_RequiresActiveRound(t *testing.T) {
	h := newHarness(t, 4)

	_, err := h.guess(alice, GuessBig)
	require.ErrorIs(t, err, ErrPlayerNotJoined)

	h.join(alice, halfUnit)
	_, err = h.guess(alice, GuessBig)
	require.ErrorIs(t, err, ErrRoundNotActive)
}

func TestSubmitGuess_Outcomes(t *testing.T) {
	for _, tc := range []struct {
		name    string
		beacon  uint64
		dice    uint64
		guess   uint64
		win     uint64
		balance uint64
	}{
		{name: "big guess on five wins", beacon: 4, dice: 5, guess: GuessBig, win: 1, balance: 6000},
		{name: "small guess on five loses", beacon: 4, dice: 5, guess: GuessSmall, win: 0, balance: 5000},
		{name: "small guess on two wins", beacon: 1, dice: 2, guess: GuessSmall, win: 1, balance: 6000},
		{name: "big guess on three loses", beacon: 2, dice: 3, guess: GuessBig, win: 0, balance: 5000},
		{name: "big guess on four wins", beacon: 3, dice: 4, guess: GuessBig, win: 1, balance: 6000},
		{name: "out of range guess loses", beacon: 5, dice: 6, guess: 7, win: 0, balance: 5000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.beacon)
			h.join(alice, halfUnit)
			h.startRound(alice)

			ev, err := h.guess(alice, tc.guess)
			require.NoError(t, err)

			k := h.reader()
			require.Equal(t, ev.Balance, k.Balance(alice))
			require.Equal(t, ev.WinFlag, k.LastOutcome(alice))
			require.Equal(t, ev.LastGuess, k.LastGuess(alice))
			require.Equal(t, tc.dice, h.decrypt(k.DiceResult(alice)))
			require.Equal(t, tc.guess, h.decrypt(k.LastGuess(alice)))
			require.Equal(t, tc.win, h.decrypt(k.LastOutcome(alice)))
			require.Equal(t, tc.balance, h.decrypt(k.Balance(alice)))

			meta := k.RoundMetadata(alice)
			require.False(t, meta.IsActive)
			require.True(t, meta.HasHistory)

			for _, hd := range []fhe.Handle{k.DiceResult(alice), k.LastGuess(alice), k.LastOutcome(alice), k.Balance(alice)} {
				require.True(t, k.IsAllowed(hd, alice), "participant on %s", hd)
				require.True(t, k.IsAllowed(hd, h.st.LedgerAddress), "ledger on %s", hd)
				require.False(t, k.IsAllowed(hd, bob), "stranger on %s", hd)
			}
		})
	}
}

func TestStartRound_DiceStaysOnTheFaces(t *testing.T) {
	for _, beacon := range []uint64{0, 5, 6, math.MaxUint32 - 1, math.MaxUint32, math.MaxUint32 + 1, math.MaxUint64} {
		t.Run(fmt.Sprint(beacon), func(t *testing.T) {
			h := newHarness(t, beacon)
			h.join(alice, halfUnit)
			h.startRound(alice)

			dice := h.decrypt(h.reader().DiceResult(alice))
			require.Equal(t, uint64(uint32(beacon)%DiceFaces+1), dice)
			require.GreaterOrEqual(t, dice, uint64(1))
			require.LessOrEqual(t, dice, uint64(DiceFaces))
		})
	}
}

func TestSubmitGuess_UndecodableGuessLoses(t *testing.T) {
	h := newHarness(t, 4)
	h.join(alice, halfUnit)
	h.startRound(alice)

	r, err := ocpcrypto.RandomScalar(rand.Reader)
	require.NoError(t, err)
	ct, err := ocpcrypto.ElGamalEncrypt(h.cop.PublicKey(), ocpcrypto.MulBase(ocpcrypto.ScalarFromUint64(1<<20)), r)
	require.NoError(t, err)
	in, proof, err := fhe.ProveInput(rand.Reader, h.cop.PublicKey(), fhe.TypeUint32, ct, r, alice, h.st.LedgerAddress)
	require.NoError(t, err)
	require.NoError(t, h.exec(func(k Keeper) error {
		_, err := k.SubmitGuess(alice, in, proof)
		return err
	}))

	k := h.reader()
	require.Equal(t, uint64(0), h.decrypt(k.LastGuess(alice)))
	require.Equal(t, uint64(0), h.decrypt(k.LastOutcome(alice)))
	require.Equal(t, uint64(5000), h.decrypt(k.Balance(alice)))
	require.False(t, k.RoundMetadata(alice).IsActive)
}

func TestSubmitGuess_RejectsForeignInput(t *testing.T) {
	h := newHarness(t, 4)
	h.join(alice, halfUnit)
	h.startRound(alice)
	before := h.st.AppHash()

	// Encrypted by bob, submitted as alice.
	in, proof, err := fhe.EncryptInput(rand.Reader, h.cop.PublicKey(), fhe.TypeUint32, GuessBig, bob, h.st.LedgerAddress)
	require.NoError(t, err)
	err = h.exec(func(k Keeper) error {
		_, err := k.SubmitGuess(alice, in, proof)
		return err
	})
	require.ErrorIs(t, err, ErrInvalidProof)
	require.Equal(t, before, h.st.AppHash())
	require.True(t, h.reader().RoundMetadata(alice).IsActive)

	// Wrong ciphertext type.
	in, proof, err = fhe.EncryptInput(rand.Reader, h.cop.PublicKey(), fhe.TypeUint64, GuessBig, alice, h.st.LedgerAddress)
	require.NoError(t, err)
	err = h.exec(func(k Keeper) error {
		_, err := k.SubmitGuess(alice, in, proof)
		return err
	})
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestRounds_RepeatAndAccumulate(t *testing.T) {
	h := newHarness(t, 4)
	h.join(alice, halfUnit)

	for i := 0; i < 3; i++ {
		h.startRound(alice)
		_, err := h.guess(alice, GuessBig)
		require.NoError(t, err)
	}
	require.Equal(t, uint64(8000), h.decrypt(h.reader().Balance(alice)))

	h.startRound(alice)
	meta := h.reader().RoundMetadata(alice)
	require.True(t, meta.IsActive)
	require.True(t, meta.HasHistory)
	require.Equal(t, uint64(0), h.decrypt(h.reader().LastOutcome(alice)))
}

func TestParticipantsAreIsolated(t *testing.T) {
	h := newHarness(t, 4)
	h.join(alice, halfUnit)
	h.join(bob, sdkmath.NewUint(state.DefaultParams().UnitScale))
	h.startRound(alice)
	_, err := h.guess(alice, GuessBig)
	require.NoError(t, err)

	k := h.reader()
	require.Equal(t, uint64(6000), h.decrypt(k.Balance(alice)))
	require.Equal(t, uint64(10000), h.decrypt(k.Balance(bob)))
	require.False(t, k.RoundMetadata(bob).HasHistory)
	require.True(t, k.DiceResult(bob).IsEmpty())
	require.False(t, k.IsAllowed(k.Balance(alice), bob))
}
