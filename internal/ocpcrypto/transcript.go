package ocpcrypto

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
)

const transcriptContext = "odic 2026 fiat-shamir transcript v0"

// Transcript is a Fiat-Shamir transcript over a running BLAKE3 state.
// Every message is framed as label length, label, msg length, msg.
type Transcript struct {
	h *blake3.Hasher
}

func NewTranscript(domainSep string) *Transcript {
	var key [32]byte
	blake3.DeriveKey(transcriptContext, []byte(domainSep), key[:])
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails on a key that is not 32 bytes.
		panic(err)
	}
	return &Transcript{h: h}
}

func (t *Transcript) frame(kind byte, label string, msg []byte) {
	var n [4]byte
	_, _ = t.h.Write([]byte{kind})
	binary.LittleEndian.PutUint32(n[:], uint32(len(label)))
	_, _ = t.h.Write(n[:])
	_, _ = t.h.Write([]byte(label))
	binary.LittleEndian.PutUint32(n[:], uint32(len(msg)))
	_, _ = t.h.Write(n[:])
	_, _ = t.h.Write(msg)
}

func (t *Transcript) AppendMessage(label string, msg []byte) error {
	if t == nil || t.h == nil {
		return fmt.Errorf("transcript: nil receiver")
	}
	if msg == nil {
		return fmt.Errorf("transcript: nil msg")
	}
	t.frame('m', label, msg)
	return nil
}

// ChallengeScalar squeezes a challenge without consuming the transcript.
func (t *Transcript) ChallengeScalar(label string) (Scalar, error) {
	if t == nil || t.h == nil {
		return Scalar{}, fmt.Errorf("transcript: nil receiver")
	}
	fork := t.h.Clone()
	(&Transcript{h: fork}).frame('c', label, []byte{})
	var wide [64]byte
	if _, err := fork.Digest().Read(wide[:]); err != nil {
		return Scalar{}, err
	}
	return ScalarFromUniformBytes(wide[:])
}
