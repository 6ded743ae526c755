package fhe

import (
	"context"
	"fmt"
)

// Opcode identifies a coprocessor operation.
type Opcode uint8

const (
	OpTrivialEncrypt Opcode = iota + 1
	OpAdd
	OpMul
	OpRem
	OpGt
	OpEq
	OpSelect
	OpCast
	OpRand
	OpVerifyInput
)

func (o Opcode) String() string {
	switch o {
	case OpTrivialEncrypt:
		return "trivialEncrypt"
	case OpAdd:
		return "add"
	case OpMul:
		return "mul"
	case OpRem:
		return "rem"
	case OpGt:
		return "gt"
	case OpEq:
		return "eq"
	case OpSelect:
		return "select"
	case OpCast:
		return "cast"
	case OpRand:
		return "rand"
	case OpVerifyInput:
		return "verifyInput"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Computation is one symbolic operation recorded by an Executor. The
// coprocessor replays computations in order to materialize Result.
type Computation struct {
	Op       Opcode   `json:"op" cbor:"1,keyasint"`
	Result   Handle   `json:"result" cbor:"2,keyasint"`
	Operands []Handle `json:"operands,omitempty" cbor:"3,keyasint,omitempty"`
	// Scalar is the plaintext right operand when IsScalar is set, and the
	// public value for OpTrivialEncrypt.
	Scalar   uint64 `json:"scalar,omitempty" cbor:"4,keyasint,omitempty"`
	IsScalar bool   `json:"isScalar,omitempty" cbor:"5,keyasint,omitempty"`
	// Payload is the rand seed for OpRand and the ElGamal ciphertext for
	// OpVerifyInput.
	Payload []byte `json:"payload,omitempty" cbor:"6,keyasint,omitempty"`
}

// Coprocessor evaluates committed computations off the critical path of the
// ledger. Implementations hold the network secret and must never return
// plaintext to the ledger.
type Coprocessor interface {
	Process(ctx context.Context, comps []Computation) error
}
