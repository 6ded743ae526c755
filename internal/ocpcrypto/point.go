package ocpcrypto

import (
	"fmt"

	"github.com/gtank/ristretto255"
)

const PointBytes = 32

// Point is a ristretto255 element. The zero value is not a valid point; build
// points with MulBase or DecodePoint.
type Point struct {
	v ristretto255.Element
}

// DecodePoint parses the canonical 32-byte encoding carried in ciphertexts
// and proofs.
func DecodePoint(b []byte) (Point, error) {
	if len(b) != PointBytes {
		return Point{}, fmt.Errorf("point: expected %d bytes, got %d", PointBytes, len(b))
	}
	var p Point
	if _, err := p.v.SetCanonicalBytes(b); err != nil {
		return Point{}, fmt.Errorf("point: %w", err)
	}
	return p, nil
}

func (p Point) Bytes() []byte { return p.v.Bytes() }

func (p Point) Equal(q Point) bool { return p.v.Equal(&q.v) == 1 }

func (p Point) Add(q Point) Point {
	var out Point
	out.v.Add(&p.v, &q.v)
	return out
}

func (p Point) Sub(q Point) Point {
	var out Point
	out.v.Subtract(&p.v, &q.v)
	return out
}

// Mul returns k*p.
func (p Point) Mul(k Scalar) Point {
	var out Point
	out.v.ScalarMult(&k.v, &p.v)
	return out
}

// MulBase returns k*G.
func MulBase(k Scalar) Point {
	var out Point
	out.v.ScalarBaseMult(&k.v)
	return out
}
