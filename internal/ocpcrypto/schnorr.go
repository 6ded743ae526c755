package ocpcrypto

import "fmt"

// SchnorrProof proves knowledge of r such that c1 = r*G, bound to a caller
// supplied context through the transcript.
type SchnorrProof struct {
	// a = w*G
	A Point
	// s = w + e*r
	S Scalar
}

const schnorrDomain = "odic/v1/input-pok"

// Binding is appended to the transcript in order. Each entry is (label, msg).
type Binding struct {
	Label string
	Msg   []byte
}

func schnorrChallenge(c1 Point, a Point, binds []Binding) (Scalar, error) {
	tr := NewTranscript(schnorrDomain)
	for _, b := range binds {
		if err := tr.AppendMessage(b.Label, b.Msg); err != nil {
			return Scalar{}, err
		}
	}
	if err := tr.AppendMessage("c1", c1.Bytes()); err != nil {
		return Scalar{}, err
	}
	if err := tr.AppendMessage("a", a.Bytes()); err != nil {
		return Scalar{}, err
	}
	return tr.ChallengeScalar("e")
}

func SchnorrProve(c1 Point, r Scalar, w Scalar, binds ...Binding) (SchnorrProof, error) {
	if w.IsZero() {
		return SchnorrProof{}, fmt.Errorf("schnorr: w must be non-zero")
	}
	a := MulBase(w)
	e, err := schnorrChallenge(c1, a, binds)
	if err != nil {
		return SchnorrProof{}, err
	}
	return SchnorrProof{A: a, S: ScalarAdd(w, ScalarMul(e, r))}, nil
}

func SchnorrVerify(c1 Point, proof SchnorrProof, binds ...Binding) (bool, error) {
	e, err := schnorrChallenge(c1, proof.A, binds)
	if err != nil {
		return false, err
	}
	// Check: s*G == a + e*c1
	lhs := MulBase(proof.S)
	rhs := proof.A.Add(c1.Mul(e))
	return lhs.Equal(rhs), nil
}

// Encoding: A(32) || s(32 le)
func EncodeSchnorrProof(p SchnorrProof) []byte {
	return append(p.A.Bytes(), p.S.Bytes()...)
}

func DecodeSchnorrProof(b []byte) (SchnorrProof, error) {
	if len(b) != PointBytes+ScalarBytes {
		return SchnorrProof{}, fmt.Errorf("schnorr: expected %d bytes", PointBytes+ScalarBytes)
	}
	a, err := DecodePoint(b[:PointBytes])
	if err != nil {
		return SchnorrProof{}, err
	}
	s, err := ScalarFromBytesCanonical(b[PointBytes:])
	if err != nil {
		return SchnorrProof{}, err
	}
	return SchnorrProof{A: a, S: s}, nil
}
