package ocpcrypto

import "github.com/zeebo/blake3"

// DeriveScalar maps secret key material to a scalar under a context string.
// Distinct contexts give independent scalars for the same material.
func DeriveScalar(context string, material []byte) Scalar {
	var wide [64]byte
	blake3.DeriveKey(context, material, wide[:])
	var s Scalar
	s.v.FromUniformBytes(wide[:])
	return s
}
