// Package fhe holds the ciphertext and capability model plus the symbolic
// executor that expresses arithmetic over encrypted values.
//
// A Handle names an encrypted scalar; the plaintext lives only inside the
// coprocessor. Nothing in this package can observe it.
package fhe

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	HandleBytes   = 32
	handleTypePos = 30
	handleVerPos  = 31

	HandleVersion byte = 0
)

// Type is the logical plaintext width carried by a handle.
type Type uint8

const (
	TypeBool   Type = 0
	TypeUint32 Type = 4
	TypeUint64 Type = 5
)

func (t Type) Valid() bool {
	switch t {
	case TypeBool, TypeUint32, TypeUint64:
		return true
	default:
		return false
	}
}

// Mask returns the value mask for arithmetic in t.
func (t Type) Mask() uint64 {
	switch t {
	case TypeBool:
		return 1
	case TypeUint32:
		return 0xffffffff
	default:
		return ^uint64(0)
	}
}

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "ebool"
	case TypeUint32:
		return "euint32"
	case TypeUint64:
		return "euint64"
	default:
		return fmt.Sprintf("etype(%d)", uint8(t))
	}
}

// Handle layout: id(30) || type(1) || version(1). The zero handle is the
// empty sentinel meaning "nothing recorded yet".
type Handle [HandleBytes]byte

// EmptyHandle is the canonical empty ciphertext.
var EmptyHandle Handle

func newHandle(digest []byte, t Type) Handle {
	var h Handle
	copy(h[:handleTypePos], digest)
	h[handleTypePos] = byte(t)
	h[handleVerPos] = HandleVersion
	return h
}

func (h Handle) IsEmpty() bool {
	return h == EmptyHandle
}

func (h Handle) Type() Type {
	return Type(h[handleTypePos])
}

func (h Handle) Bytes() []byte {
	out := make([]byte, HandleBytes)
	copy(out, h[:])
	return out
}

func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(b []byte) error {
	parsed, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle decodes a 0x-prefixed (or bare) 64-char hex handle.
func ParseHandle(s string) (Handle, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x"))
	if err != nil {
		return Handle{}, fmt.Errorf("handle: %w", err)
	}
	if len(raw) != HandleBytes {
		return Handle{}, fmt.Errorf("handle: expected %d bytes, got %d", HandleBytes, len(raw))
	}
	var h Handle
	copy(h[:], raw)
	if !h.IsEmpty() && (!h.Type().Valid() || h[handleVerPos] != HandleVersion) {
		return Handle{}, fmt.Errorf("handle: unsupported type/version %d/%d", h[handleTypePos], h[handleVerPos])
	}
	return h, nil
}
