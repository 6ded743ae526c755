package gateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/nacl/box"

	"onchaindice/internal/eip712"
)

// Keypair is an ephemeral X25519 key pair for one decryption session.
type Keypair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

func GenerateKeypair(rnd io.Reader) (Keypair, error) {
	pub, priv, err := box.GenerateKey(rnd)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Keypair{PublicKey: *pub, PrivateKey: *priv}, nil
}

// Signer is the participant's wallet. SignTypedData may block on user
// interaction and must honor ctx.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, d eip712.Domain, a eip712.Authorization) ([]byte, error)
}

// LocalSigner signs with an in-memory secp256k1 key.
type LocalSigner struct {
	key *ecdsa.PrivateKey
}

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

func (s *LocalSigner) Address() common.Address {
	return ethAddress(s.key)
}

func (s *LocalSigner) SignTypedData(ctx context.Context, d eip712.Domain, a eip712.Authorization) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return eip712.Sign(d, a, s.key)
}
