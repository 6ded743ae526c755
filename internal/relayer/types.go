// Package relayer is the reference decryption relayer. It checks a
// participant's signed, time-boxed authorization and the ledger ACL, then
// returns each requested plaintext sealed to the participant's ephemeral key.
package relayer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/nacl/box"

	"onchaindice/internal/fhe"
)

const (
	UserDecryptPath = "/v1/user-decrypt"

	KeySize = 32
)

type HandleContractPair struct {
	Handle          fhe.Handle     `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}

// UserDecryptRequest is what a participant presents to the relayer.
// PrivateKey is the ephemeral secret used to open the response locally; it
// is never serialized.
type UserDecryptRequest struct {
	HandleContractPairs []HandleContractPair `json:"handleContractPairs"`
	PublicKey           []byte               `json:"publicKey"`
	PrivateKey          []byte               `json:"-"`
	Signature           []byte               `json:"signature"`
	ContractAddresses   []common.Address     `json:"contractAddresses"`
	UserAddress         common.Address       `json:"userAddress"`
	StartTimestamp      uint64               `json:"startTimestamp,string"`
	DurationSeconds     uint64               `json:"durationSeconds,string"`
}

type SealedResult struct {
	Handle fhe.Handle `json:"handle"`
	Sealed []byte     `json:"sealed"`
}

type UserDecryptResponse struct {
	Results []SealedResult `json:"results"`
}

// Relayer decrypts handles for an authorized participant.
type Relayer interface {
	UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[fhe.Handle]uint64, error)
}

func sealValue(pub *[KeySize]byte, v uint64, rnd io.Reader) ([]byte, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], v)
	return box.SealAnonymous(nil, msg[:], pub, rnd)
}

// Open unseals resp with the ephemeral key pair of the request.
func Open(resp *UserDecryptResponse, publicKey, privateKey []byte) (map[fhe.Handle]uint64, error) {
	if len(publicKey) != KeySize || len(privateKey) != KeySize {
		return nil, fmt.Errorf("relayer: ephemeral keys must be %d bytes", KeySize)
	}
	var pub, priv [KeySize]byte
	copy(pub[:], publicKey)
	copy(priv[:], privateKey)

	out := make(map[fhe.Handle]uint64, len(resp.Results))
	for _, r := range resp.Results {
		msg, ok := box.OpenAnonymous(nil, r.Sealed, &pub, &priv)
		if !ok || len(msg) != 8 {
			return nil, fmt.Errorf("relayer: cannot open result for %s", r.Handle)
		}
		out[r.Handle] = binary.BigEndian.Uint64(msg)
	}
	return out, nil
}
