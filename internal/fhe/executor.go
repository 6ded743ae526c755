package fhe

import (
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const handleDomain = "odic/fhe/handle/v0"

// Executor is the confidential arithmetic engine for one transaction. It
// only manipulates handles: each call type-checks, derives a fresh result
// handle, and records a Computation for the coprocessor.
//
// Handles produced by the executor are usable by the ledger for the rest of
// the transaction. Carrying them across transactions requires a persistent
// ACL grant.
type Executor struct {
	acl       *ACL
	self      common.Address
	seed      []byte
	counter   uint32
	transient map[Handle]struct{}
	comps     []Computation
}

// NewExecutor binds an executor to the ledger principal self. seed must be
// unique per transaction (the host derives it from height and tx bytes).
func NewExecutor(acl *ACL, self common.Address, seed []byte) *Executor {
	return &Executor{
		acl:       acl,
		self:      self,
		seed:      append([]byte(nil), seed...),
		transient: map[Handle]struct{}{},
	}
}

func (e *Executor) Self() common.Address { return e.self }

func (e *Executor) ACL() *ACL { return e.acl }

// Computations returns the recorded operations in execution order.
func (e *Executor) Computations() []Computation {
	return append([]Computation(nil), e.comps...)
}

// Allow persists a grant for p on h.
func (e *Executor) Allow(h Handle, p common.Address) error {
	return e.acl.Allow(h, p)
}

// AllowSelf persists a grant for the ledger itself on every handle.
func (e *Executor) AllowSelf(hs ...Handle) error {
	for _, h := range hs {
		if err := e.acl.Allow(h, e.self); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) canUse(h Handle) error {
	if h.IsEmpty() {
		return errorsmod.Wrap(ErrInvalidHandle, "empty handle used as operand")
	}
	if !h.Type().Valid() {
		return errorsmod.Wrapf(ErrInvalidHandle, "unknown type %d", h.Type())
	}
	if _, ok := e.transient[h]; ok {
		return nil
	}
	if e.acl.IsAllowed(h, e.self) {
		return nil
	}
	return errorsmod.Wrapf(ErrACLNotAllowed, "ledger %s on %s", e.self.Hex(), h)
}

func (e *Executor) record(c Computation, t Type) Handle {
	var sc [8]byte
	binary.BigEndian.PutUint64(sc[:], c.Scalar)
	var ctr [4]byte
	binary.BigEndian.PutUint32(ctr[:], e.counter)
	e.counter++

	parts := [][]byte{[]byte(handleDomain), {byte(c.Op), byte(t)}}
	for _, op := range c.Operands {
		parts = append(parts, op[:])
	}
	flag := byte(0)
	if c.IsScalar {
		flag = 1
	}
	parts = append(parts, []byte{flag}, sc[:], c.Payload, e.seed, ctr[:])

	c.Result = newHandle(crypto.Keccak256(parts...), t)
	e.transient[c.Result] = struct{}{}
	e.comps = append(e.comps, c)
	return c.Result
}

func (e *Executor) binaryOperands(a, b Handle) error {
	if err := e.canUse(a); err != nil {
		return err
	}
	if err := e.canUse(b); err != nil {
		return err
	}
	if a.Type() != b.Type() {
		return errorsmod.Wrapf(ErrTypeMismatch, "%s vs %s", a.Type(), b.Type())
	}
	return nil
}

func (e *Executor) numeric(h Handle) error {
	if err := e.canUse(h); err != nil {
		return err
	}
	if h.Type() == TypeBool {
		return errorsmod.Wrapf(ErrTypeMismatch, "arithmetic on %s", h.Type())
	}
	return nil
}

// TrivialEncrypt lifts a public value into a ciphertext of type t.
func (e *Executor) TrivialEncrypt(v uint64, t Type) (Handle, error) {
	if !t.Valid() {
		return Handle{}, errorsmod.Wrapf(ErrTypeMismatch, "unknown type %d", t)
	}
	if v&t.Mask() != v {
		return Handle{}, errorsmod.Wrapf(ErrTypeMismatch, "value %d does not fit %s", v, t)
	}
	return e.record(Computation{Op: OpTrivialEncrypt, Scalar: v, IsScalar: true}, t), nil
}

func (e *Executor) Add(a, b Handle) (Handle, error) {
	if err := e.binaryOperands(a, b); err != nil {
		return Handle{}, err
	}
	if err := e.numeric(a); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpAdd, Operands: []Handle{a, b}}, a.Type()), nil
}

func (e *Executor) AddScalar(a Handle, s uint64) (Handle, error) {
	if err := e.numeric(a); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpAdd, Operands: []Handle{a}, Scalar: s, IsScalar: true}, a.Type()), nil
}

func (e *Executor) Mul(a, b Handle) (Handle, error) {
	if err := e.binaryOperands(a, b); err != nil {
		return Handle{}, err
	}
	if err := e.numeric(a); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpMul, Operands: []Handle{a, b}}, a.Type()), nil
}

func (e *Executor) MulScalar(a Handle, s uint64) (Handle, error) {
	if err := e.numeric(a); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpMul, Operands: []Handle{a}, Scalar: s, IsScalar: true}, a.Type()), nil
}

// RemScalar computes a mod s. Only plaintext divisors are supported.
func (e *Executor) RemScalar(a Handle, s uint64) (Handle, error) {
	if err := e.numeric(a); err != nil {
		return Handle{}, err
	}
	if s == 0 {
		return Handle{}, errorsmod.Wrap(ErrInvalidInput, "modulo by zero")
	}
	return e.record(Computation{Op: OpRem, Operands: []Handle{a}, Scalar: s, IsScalar: true}, a.Type()), nil
}

func (e *Executor) Gt(a, b Handle) (Handle, error) {
	if err := e.binaryOperands(a, b); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpGt, Operands: []Handle{a, b}}, TypeBool), nil
}

func (e *Executor) GtScalar(a Handle, s uint64) (Handle, error) {
	if err := e.canUse(a); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpGt, Operands: []Handle{a}, Scalar: s, IsScalar: true}, TypeBool), nil
}

func (e *Executor) Eq(a, b Handle) (Handle, error) {
	if err := e.binaryOperands(a, b); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpEq, Operands: []Handle{a, b}}, TypeBool), nil
}

func (e *Executor) EqScalar(a Handle, s uint64) (Handle, error) {
	if err := e.canUse(a); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpEq, Operands: []Handle{a}, Scalar: s, IsScalar: true}, TypeBool), nil
}

// Select returns ifTrue when cond decrypts to 1 and ifFalse otherwise,
// without revealing which.
func (e *Executor) Select(cond, ifTrue, ifFalse Handle) (Handle, error) {
	if err := e.canUse(cond); err != nil {
		return Handle{}, err
	}
	if cond.Type() != TypeBool {
		return Handle{}, errorsmod.Wrapf(ErrTypeMismatch, "select condition is %s", cond.Type())
	}
	if err := e.binaryOperands(ifTrue, ifFalse); err != nil {
		return Handle{}, err
	}
	return e.record(Computation{Op: OpSelect, Operands: []Handle{cond, ifTrue, ifFalse}}, ifTrue.Type()), nil
}

// Cast converts a to type t, truncating when narrowing.
func (e *Executor) Cast(a Handle, t Type) (Handle, error) {
	if err := e.canUse(a); err != nil {
		return Handle{}, err
	}
	if !t.Valid() {
		return Handle{}, errorsmod.Wrapf(ErrTypeMismatch, "unknown type %d", t)
	}
	if a.Type() == t {
		return a, nil
	}
	return e.record(Computation{Op: OpCast, Operands: []Handle{a}, Scalar: uint64(t)}, t), nil
}

// Rand requests a fresh secret uniform value of type t. Nobody learns it
// until someone is granted access.
func (e *Executor) Rand(t Type) (Handle, error) {
	if !t.Valid() {
		return Handle{}, errorsmod.Wrapf(ErrTypeMismatch, "unknown type %d", t)
	}
	var ctr [4]byte
	binary.BigEndian.PutUint32(ctr[:], e.counter)
	seed := crypto.Keccak256([]byte("odic/fhe/rand"), e.seed, ctr[:])
	return e.record(Computation{Op: OpRand, Payload: seed}, t), nil
}
