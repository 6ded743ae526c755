package ocpcrypto

import (
	"fmt"
	"sync"
)

// MaxEncodedValue bounds values carried by exponential ElGamal. Decryption
// recovers v from v*G by search, so it must stay small.
const MaxEncodedValue = 1 << 16

type ElGamalCiphertext struct {
	C1 Point
	C2 Point
}

// ElGamal in additive notation:
//
//	PK = Y = x*G
//	Enc(Y, M; r) = (r*G, M + r*Y)
func ElGamalEncrypt(pk Point, m Point, r Scalar) (ElGamalCiphertext, error) {
	if r.IsZero() {
		// Zero randomness is valid mathematically but leaks the plaintext.
		return ElGamalCiphertext{}, fmt.Errorf("elgamal: r must be non-zero")
	}
	c1 := MulBase(r)
	c2 := m.Add(pk.Mul(r))
	return ElGamalCiphertext{C1: c1, C2: c2}, nil
}

// Dec(x, (c1,c2)) = c2 - x*c1
func ElGamalDecrypt(sk Scalar, ct ElGamalCiphertext) Point {
	return ct.C2.Sub(ct.C1.Mul(sk))
}

// EncryptValue encrypts v "in the exponent": M = v*G.
func EncryptValue(pk Point, v uint64, r Scalar) (ElGamalCiphertext, error) {
	if v >= MaxEncodedValue {
		return ElGamalCiphertext{}, fmt.Errorf("elgamal: value %d exceeds %d", v, MaxEncodedValue-1)
	}
	return ElGamalEncrypt(pk, MulBase(ScalarFromUint64(v)), r)
}

// decodeStep splits the search for v into v = i*decodeStep + j.
const decodeStep = 1 << 8

var (
	decodeOnce  sync.Once
	decodeTable map[[PointBytes]byte]uint64
	decodeGiant Point
)

func buildDecodeTable() {
	decodeTable = make(map[[PointBytes]byte]uint64, decodeStep)
	for j := uint64(0); j < decodeStep; j++ {
		decodeTable[[PointBytes]byte(MulBase(ScalarFromUint64(j)).Bytes())] = j
	}
	decodeGiant = MulBase(ScalarFromUint64(decodeStep))
}

// DecryptValue inverts EncryptValue. Plaintexts outside [0, MaxEncodedValue)
// are reported as an error rather than searched for.
func DecryptValue(sk Scalar, ct ElGamalCiphertext) (uint64, error) {
	decodeOnce.Do(buildDecodeTable)
	m := ElGamalDecrypt(sk, ct)
	for i := uint64(0); i < MaxEncodedValue/decodeStep; i++ {
		if j, ok := decodeTable[[PointBytes]byte(m.Bytes())]; ok {
			return i*decodeStep + j, nil
		}
		m = m.Sub(decodeGiant)
	}
	return 0, fmt.Errorf("elgamal: plaintext outside [0,%d)", MaxEncodedValue)
}

// Encoding: C1(32) || C2(32)
func (ct ElGamalCiphertext) Bytes() []byte {
	return append(ct.C1.Bytes(), ct.C2.Bytes()...)
}

func DecodeElGamalCiphertext(b []byte) (ElGamalCiphertext, error) {
	if len(b) != 2*PointBytes {
		return ElGamalCiphertext{}, fmt.Errorf("elgamal: expected %d bytes", 2*PointBytes)
	}
	c1, err := DecodePoint(b[:PointBytes])
	if err != nil {
		return ElGamalCiphertext{}, err
	}
	c2, err := DecodePoint(b[PointBytes:])
	if err != nil {
		return ElGamalCiphertext{}, err
	}
	return ElGamalCiphertext{C1: c1, C2: c2}, nil
}
