package gateway

import (
	"context"
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"onchaindice/internal/eip712"
	"onchaindice/internal/fhe"
	"onchaindice/internal/relayer"
)

var (
	ledger = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	now    = time.Unix(1_800_000_000, 0)

	balanceHandle = fhe.Handle{1, 30: byte(fhe.TypeUint64)}
	diceHandle    = fhe.Handle{2, 30: byte(fhe.TypeUint32)}
	outcomeHandle = fhe.Handle{3, 30: byte(fhe.TypeUint32)}
)

type aclMap map[fhe.Handle][]common.Address

func (m aclMap) IsAllowed(_ context.Context, h fhe.Handle, p common.Address) (bool, error) {
	for _, q := range m[h] {
		if q == p {
			return true, nil
		}
	}
	return false, nil
}

type plaintexts map[fhe.Handle]uint64

func (m plaintexts) Decrypt(_ context.Context, h fhe.Handle) (uint64, error) {
	v, ok := m[h]
	if !ok {
		return 0, errors.New("unknown handle")
	}
	return v, nil
}

type countingRelayer struct {
	relayer.Relayer
	calls int
	last  *relayer.UserDecryptRequest
}

func (c *countingRelayer) UserDecrypt(ctx context.Context, req *relayer.UserDecryptRequest) (map[fhe.Handle]uint64, error) {
	c.calls++
	c.last = req
	return c.Relayer.UserDecrypt(ctx, req)
}

type failingRelayer struct{ err error }

func (f failingRelayer) UserDecrypt(context.Context, *relayer.UserDecryptRequest) (map[fhe.Handle]uint64, error) {
	return nil, f.err
}

type refusingSigner struct{ addr common.Address }

func (s refusingSigner) Address() common.Address { return s.addr }

func (refusingSigner) SignTypedData(context.Context, eip712.Domain, eip712.Authorization) ([]byte, error) {
	return nil, errors.New("user rejected request")
}

type fixture struct {
	gw     *Gateway
	rel    *countingRelayer
	signer *LocalSigner
	acl    aclMap
	domain eip712.Domain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewLocalSigner(key)
	user := signer.Address()

	acl := aclMap{
		balanceHandle: {user, ledger},
		outcomeHandle: {user, ledger},
		diceHandle:    {ledger},
	}
	svc := relayer.NewService(relayer.Config{ChainID: 9000, MaxDuration: 48 * time.Hour}, ledger, acl,
		plaintexts{balanceHandle: 6000, diceHandle: 5, outcomeHandle: 1},
		relayer.WithClock(func() time.Time { return now }))
	rel := &countingRelayer{Relayer: svc}
	gw := New(rel, signer, svc.Domain(), WithClock(func() time.Time { return now }))
	return &fixture{gw: gw, rel: rel, signer: signer, acl: acl, domain: svc.Domain()}
}

func TestReveal_MapsValuesToFields(t *testing.T) {
	f := newFixture(t)
	res := f.gw.Reveal(context.Background(), Handles{Balance: balanceHandle, Outcome: outcomeHandle})

	require.Equal(t, StatusOK, res.Status)
	require.NoError(t, res.Err)
	require.Equal(t, map[Field]uint64{FieldBalance: 6000, FieldOutcome: 1}, res.Values)

	req := f.rel.last
	require.Len(t, req.HandleContractPairs, 2)
	require.Equal(t, []common.Address{ledger}, req.ContractAddresses)
	require.Equal(t, f.signer.Address(), req.UserAddress)
	require.Len(t, req.PublicKey, 32)
	require.Len(t, req.PrivateKey, 32)
	require.LessOrEqual(t, req.StartTimestamp, uint64(now.Unix()))
}

func TestReveal_SkipsEmptyHandlesWithoutCallingRelayer(t *testing.T) {
	f := newFixture(t)
	res := f.gw.Reveal(context.Background(), Handles{})
	require.Equal(t, StatusNothingToDecrypt, res.Status)
	require.Zero(t, f.rel.calls)

	res = f.gw.Reveal(context.Background(), Handles{Balance: balanceHandle, Dice: fhe.EmptyHandle})
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, 1, f.rel.calls)
	require.Len(t, f.rel.last.HandleContractPairs, 1)
}

func TestReveal_SharedHandleFillsEveryField(t *testing.T) {
	f := newFixture(t)
	res := f.gw.Reveal(context.Background(), Handles{Guess: outcomeHandle, Outcome: outcomeHandle})
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, map[Field]uint64{FieldGuess: 1, FieldOutcome: 1}, res.Values)
	require.Len(t, f.rel.last.HandleContractPairs, 1)
}

func TestReveal_DiceHiddenUntilGranted(t *testing.T) {
	f := newFixture(t)
	res := f.gw.Reveal(context.Background(), Handles{Dice: diceHandle})
	require.Equal(t, StatusDenied, res.Status)
	require.ErrorIs(t, res.Err, relayer.ErrNotAllowed)

	f.acl[diceHandle] = append(f.acl[diceHandle], f.signer.Address())
	res = f.gw.Reveal(context.Background(), Handles{Dice: diceHandle})
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, uint64(5), res.Values[FieldDice])
}

func TestReveal_LocalFailuresAreStatuses(t *testing.T) {
	f := newFixture(t)
	hs := Handles{Balance: balanceHandle}

	res := New(f.rel, nil, f.domain).Reveal(context.Background(), hs)
	require.Equal(t, StatusNoSigner, res.Status)

	res = New(f.rel, refusingSigner{addr: f.signer.Address()}, f.domain).Reveal(context.Background(), hs)
	require.Equal(t, StatusSignatureRejected, res.Status)

	res = New(f.rel, f.signer, f.domain, WithRand(iotest.ErrReader(errors.New("entropy exhausted")))).Reveal(context.Background(), hs)
	require.Equal(t, StatusKeygenFailed, res.Status)
	require.ErrorContains(t, res.Err, "entropy exhausted")

	res = New(failingRelayer{err: relayer.ErrUnavailable}, f.signer, f.domain).Reveal(context.Background(), hs)
	require.Equal(t, StatusRelayerUnavailable, res.Status)

	res = New(failingRelayer{err: context.DeadlineExceeded}, f.signer, f.domain).Reveal(context.Background(), hs)
	require.Equal(t, StatusRelayerUnavailable, res.Status)

	require.Zero(t, f.rel.calls)
}

func TestLoadConfig_ShapesAuthorizationWindow(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, Config{Validity: 24 * time.Hour, Backdate: time.Minute}, cfg)

	t.Setenv("ODIC_GATEWAY_VALIDITY", "2h")
	t.Setenv("ODIC_GATEWAY_BACKDATE", "30s")
	cfg, err = LoadConfig()
	require.NoError(t, err)

	f := newFixture(t)
	gw := New(f.rel, f.signer, f.domain, WithClock(func() time.Time { return now }), WithConfig(cfg))
	res := gw.Reveal(context.Background(), Handles{Balance: balanceHandle})
	require.Equal(t, StatusOK, res.Status, "err: %v", res.Err)
	require.Equal(t, uint64(now.Add(-30*time.Second).Unix()), f.rel.last.StartTimestamp)
	require.Equal(t, uint64((2*time.Hour+30*time.Second)/time.Second), f.rel.last.DurationSeconds)

	t.Setenv("ODIC_GATEWAY_VALIDITY", "soon")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestReveal_SignatureForOtherLedgerIsRejected(t *testing.T) {
	f := newFixture(t)
	other := f.domain
	other.ChainID++
	gw := New(f.rel, f.signer, other, WithClock(func() time.Time { return now }))

	res := gw.Reveal(context.Background(), Handles{Balance: balanceHandle})
	require.Equal(t, StatusSignatureRejected, res.Status)
	require.ErrorIs(t, res.Err, relayer.ErrBadSignature)
}

func TestReveal_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.gw.Reveal(ctx, Handles{Balance: balanceHandle})
	require.NotEqual(t, StatusOK, res.Status)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Zero(t, f.rel.calls)
}
