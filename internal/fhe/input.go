package fhe

import (
	"fmt"
	"io"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"onchaindice/internal/ocpcrypto"
)

// Input is a client-encrypted value addressed to the coprocessor network key.
type Input struct {
	Type       Type   `json:"type"`
	Ciphertext []byte `json:"ciphertext"` // base64 in JSON, C1(32) || C2(32)
}

func inputBindings(pk ocpcrypto.Point, in Input, c2 ocpcrypto.Point, user, ledger common.Address) []ocpcrypto.Binding {
	return []ocpcrypto.Binding{
		{Label: "pk", Msg: pk.Bytes()},
		{Label: "type", Msg: []byte{byte(in.Type)}},
		{Label: "c2", Msg: c2.Bytes()},
		{Label: "user", Msg: user.Bytes()},
		{Label: "ledger", Msg: ledger.Bytes()},
	}
}

// EncryptInput encrypts v for the network key and proves knowledge of the
// encryption randomness, bound to user and the target ledger. The proof
// does not verify for any other (user, ledger) pair.
func EncryptInput(rnd io.Reader, networkPK ocpcrypto.Point, t Type, v uint64, user, ledger common.Address) (Input, []byte, error) {
	if !t.Valid() {
		return Input{}, nil, fmt.Errorf("encrypt input: unknown type %d", t)
	}
	if v&t.Mask() != v {
		return Input{}, nil, fmt.Errorf("encrypt input: %d does not fit %s", v, t)
	}
	r, err := ocpcrypto.RandomScalar(rnd)
	if err != nil {
		return Input{}, nil, err
	}
	ct, err := ocpcrypto.EncryptValue(networkPK, v, r)
	if err != nil {
		return Input{}, nil, fmt.Errorf("encrypt input: %w", err)
	}
	return ProveInput(rnd, networkPK, t, ct, r, user, ledger)
}

// ProveInput wraps a ciphertext made with randomness r as an Input for ledger
// and proves knowledge of r. The proof says nothing about the plaintext, so
// the coprocessor still has to cope with values it cannot decode.
func ProveInput(rnd io.Reader, networkPK ocpcrypto.Point, t Type, ct ocpcrypto.ElGamalCiphertext, r ocpcrypto.Scalar, user, ledger common.Address) (Input, []byte, error) {
	in := Input{Type: t, Ciphertext: ct.Bytes()}
	w, err := ocpcrypto.RandomScalar(rnd)
	if err != nil {
		return Input{}, nil, err
	}
	proof, err := ocpcrypto.SchnorrProve(ct.C1, r, w, inputBindings(networkPK, in, ct.C2, user, ledger)...)
	if err != nil {
		return Input{}, nil, fmt.Errorf("prove input: %w", err)
	}
	return in, ocpcrypto.EncodeSchnorrProof(proof), nil
}

// VerifyInput checks that in was produced by user for this ledger and
// imports it as a new handle.
func (e *Executor) VerifyInput(in Input, proof []byte, user common.Address, networkPK ocpcrypto.Point) (Handle, error) {
	if !in.Type.Valid() {
		return Handle{}, errorsmod.Wrapf(ErrInvalidInput, "unknown type %d", in.Type)
	}
	ct, err := ocpcrypto.DecodeElGamalCiphertext(in.Ciphertext)
	if err != nil {
		return Handle{}, errorsmod.Wrap(ErrInvalidInput, err.Error())
	}
	pok, err := ocpcrypto.DecodeSchnorrProof(proof)
	if err != nil {
		return Handle{}, errorsmod.Wrap(ErrInvalidInput, err.Error())
	}
	ok, err := ocpcrypto.SchnorrVerify(ct.C1, pok, inputBindings(networkPK, in, ct.C2, user, e.self)...)
	if err != nil {
		return Handle{}, errorsmod.Wrap(ErrInvalidInput, err.Error())
	}
	if !ok {
		return Handle{}, errorsmod.Wrap(ErrInvalidInput, "proof does not bind ciphertext to caller and ledger")
	}
	payload := append([]byte(nil), in.Ciphertext...)
	// The input handle depends on the ciphertext and its binding only, so
	// resubmitting the same input yields the same handle.
	digest := crypto.Keccak256([]byte(handleDomain), []byte("input"), payload, user.Bytes(), e.self.Bytes())
	h := newHandle(digest, in.Type)
	e.transient[h] = struct{}{}
	e.comps = append(e.comps, Computation{Op: OpVerifyInput, Result: h, Payload: payload})
	return h, nil
}
