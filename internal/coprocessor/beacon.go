package coprocessor

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

const beaconKeyContext = "odic coprocessor 2026 rand beacon key v0"

// Beacon turns the public seed of a rand computation into a secret value.
type Beacon interface {
	Value(seed []byte) uint64
}

// KeyedBeacon is a keyed blake3 PRF over the seed. Without the key the
// output is unpredictable even though the seed is on chain.
type KeyedBeacon struct {
	key [32]byte
}

func NewKeyedBeacon(secret []byte) *KeyedBeacon {
	b := &KeyedBeacon{}
	blake3.DeriveKey(beaconKeyContext, secret, b.key[:])
	return b
}

func (b *KeyedBeacon) Value(seed []byte) uint64 {
	h, err := blake3.NewKeyed(b.key[:])
	if err != nil {
		// key is always 32 bytes
		panic(err)
	}
	_, _ = h.Write(seed)
	var out [8]byte
	_, _ = h.Digest().Read(out[:])
	return binary.LittleEndian.Uint64(out[:])
}

// FixedBeacon returns the same value for every seed.
type FixedBeacon uint64

func (b FixedBeacon) Value([]byte) uint64 { return uint64(b) }
