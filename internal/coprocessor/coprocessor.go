// Package coprocessor is the reference off-chain evaluator for the ledger's
// symbolic ciphertexts. It holds the network secret, replays committed
// computations and keeps every plaintext sealed at rest. Only the relayer
// reads plaintexts back, and only for callers the ACL allows.
package coprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"

	"onchaindice/internal/fhe"
	"onchaindice/internal/ocpcrypto"
)

const networkKeyContext = "odic coprocessor 2026 network key v0"

// ErrUnknownHandle is returned for handles the coprocessor never materialized.
var ErrUnknownHandle = errors.New("coprocessor: unknown handle")

type Option func(*Coprocessor)

// WithBeacon replaces the keyed beacon, mainly for deterministic tests.
func WithBeacon(b Beacon) Option {
	return func(c *Coprocessor) { c.beacon = b }
}

func WithLogger(l log.Logger) Option {
	return func(c *Coprocessor) { c.logger = l }
}

type Coprocessor struct {
	mu     sync.Mutex
	sk     ocpcrypto.Scalar
	pk     ocpcrypto.Point
	vault  *vault
	beacon Beacon
	logger log.Logger
}

// New derives the network key pair from seed and stores records in db.
func New(db dbm.DB, seed []byte, opts ...Option) (*Coprocessor, error) {
	if db == nil {
		return nil, fmt.Errorf("coprocessor: db is nil")
	}
	if len(seed) < 32 {
		return nil, fmt.Errorf("coprocessor: seed must be at least 32 bytes")
	}
	sk := ocpcrypto.DeriveScalar(networkKeyContext, seed)
	v, err := newVault(db, sk.Bytes())
	if err != nil {
		return nil, err
	}
	c := &Coprocessor{
		sk:     sk,
		pk:     ocpcrypto.MulBase(sk),
		vault:  v,
		beacon: NewKeyedBeacon(sk.Bytes()),
		logger: log.NewNopLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// PublicKey is the network key clients encrypt inputs to.
func (c *Coprocessor) PublicKey() ocpcrypto.Point { return c.pk }

// Process materializes comps in order. Either all results are stored or
// none are.
func (c *Coprocessor) Process(ctx context.Context, comps []fhe.Computation) error {
	if len(comps) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[fhe.Handle]record, len(comps))
	order := make([]fhe.Handle, 0, len(comps))
	lookup := func(h fhe.Handle) (record, error) {
		if r, ok := pending[h]; ok {
			return r, nil
		}
		r, ok, err := c.vault.get(h)
		if err != nil {
			return record{}, err
		}
		if !ok {
			return record{}, errorsmod.Wrapf(ErrUnknownHandle, "operand %s", h)
		}
		return r, nil
	}

	for i, comp := range comps {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := c.eval(comp, lookup)
		if err != nil {
			return fmt.Errorf("computation %d (%s -> %s): %w", i, comp.Op, comp.Result, err)
		}
		t := comp.Result.Type()
		if _, seen := pending[comp.Result]; !seen {
			order = append(order, comp.Result)
		}
		pending[comp.Result] = record{Type: t, Value: v & t.Mask()}
	}
	if err := c.vault.writeBatch(pending, order); err != nil {
		return fmt.Errorf("coprocessor: store results: %w", err)
	}
	c.logger.Debug("processed computations", "count", len(comps), "results", len(order))
	return nil
}

func (c *Coprocessor) eval(comp fhe.Computation, lookup func(fhe.Handle) (record, error)) (uint64, error) {
	vals := make([]uint64, len(comp.Operands))
	for i, h := range comp.Operands {
		r, err := lookup(h)
		if err != nil {
			return 0, err
		}
		vals[i] = r.Value
	}
	rhs := func() (uint64, error) {
		if comp.IsScalar {
			if len(vals) != 1 {
				return 0, fmt.Errorf("want 1 operand, got %d", len(vals))
			}
			return comp.Scalar, nil
		}
		if len(vals) != 2 {
			return 0, fmt.Errorf("want 2 operands, got %d", len(vals))
		}
		return vals[1], nil
	}
	b2u := func(b bool) uint64 {
		if b {
			return 1
		}
		return 0
	}

	switch comp.Op {
	case fhe.OpTrivialEncrypt:
		return comp.Scalar, nil
	case fhe.OpAdd:
		b, err := rhs()
		if err != nil {
			return 0, err
		}
		return vals[0] + b, nil
	case fhe.OpMul:
		b, err := rhs()
		if err != nil {
			return 0, err
		}
		return vals[0] * b, nil
	case fhe.OpRem:
		b, err := rhs()
		if err != nil {
			return 0, err
		}
		if b == 0 {
			return 0, fmt.Errorf("modulo by zero")
		}
		return vals[0] % b, nil
	case fhe.OpGt:
		b, err := rhs()
		if err != nil {
			return 0, err
		}
		return b2u(vals[0] > b), nil
	case fhe.OpEq:
		b, err := rhs()
		if err != nil {
			return 0, err
		}
		return b2u(vals[0] == b), nil
	case fhe.OpSelect:
		if len(vals) != 3 {
			return 0, fmt.Errorf("select wants 3 operands, got %d", len(vals))
		}
		if vals[0] != 0 {
			return vals[1], nil
		}
		return vals[2], nil
	case fhe.OpCast:
		if len(vals) != 1 {
			return 0, fmt.Errorf("cast wants 1 operand, got %d", len(vals))
		}
		return vals[0], nil
	case fhe.OpRand:
		return c.beacon.Value(comp.Payload), nil
	case fhe.OpVerifyInput:
		return c.importInput(comp), nil
	default:
		return 0, fmt.Errorf("unsupported opcode %s", comp.Op)
	}
}

// importInput decrypts a client input. The input proof only covers the
// encryption randomness, so a ciphertext outside the decodable range (or
// wider than its type) still reaches here; it materializes as zero.
func (c *Coprocessor) importInput(comp fhe.Computation) uint64 {
	ct, err := ocpcrypto.DecodeElGamalCiphertext(comp.Payload)
	if err != nil {
		c.logger.Warn("undecodable input imported as zero", "handle", comp.Result, "err", err)
		return 0
	}
	v, err := ocpcrypto.DecryptValue(c.sk, ct)
	if err != nil {
		c.logger.Warn("out-of-range input imported as zero", "handle", comp.Result, "err", err)
		return 0
	}
	if v&comp.Result.Type().Mask() != v {
		c.logger.Warn("input wider than its type imported as zero", "handle", comp.Result, "type", comp.Result.Type())
		return 0
	}
	return v
}

// Decrypt returns the plaintext behind h. Callers are responsible for
// authorization.
func (c *Coprocessor) Decrypt(_ context.Context, h fhe.Handle) (uint64, error) {
	if h.IsEmpty() {
		return 0, errorsmod.Wrap(fhe.ErrInvalidHandle, "empty handle")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok, err := c.vault.get(h)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errorsmod.Wrapf(ErrUnknownHandle, "%s", h)
	}
	return r.Value, nil
}
