// Package eip712 builds and verifies the structured authorization a
// participant signs to let the relayer decrypt handles on their behalf.
package eip712

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DomainName    = "OnChainDice Decryption"
	DomainVersion = "1"
	PrimaryType   = "UserDecryptRequestVerification"

	// SignatureLength is r || s || v.
	SignatureLength = crypto.SignatureLength
)

// Domain pins a signature to one chain and one ledger instance.
type Domain struct {
	ChainID           uint64
	VerifyingContract common.Address
}

// Authorization is the signed record. The window is
// [StartTimestamp, StartTimestamp+DurationSeconds) in unix seconds.
type Authorization struct {
	PublicKey         []byte
	ContractAddresses []common.Address
	StartTimestamp    uint64
	DurationSeconds   uint64
}

var types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "publicKey", Type: "bytes"},
		{Name: "contractAddresses", Type: "address[]"},
		{Name: "startTimestamp", Type: "uint256"},
		{Name: "durationSeconds", Type: "uint256"},
	},
}

// TypedData returns the wallet-facing typed data for a.
func TypedData(d Domain, a Authorization) apitypes.TypedData {
	contracts := make([]interface{}, 0, len(a.ContractAddresses))
	for _, c := range a.ContractAddresses {
		contracts = append(contracts, c.Hex())
	}
	return apitypes.TypedData{
		Types:       types,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(int64(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(a.PublicKey),
			"contractAddresses": contracts,
			"startTimestamp":    strconv.FormatUint(a.StartTimestamp, 10),
			"durationSeconds":   strconv.FormatUint(a.DurationSeconds, 10),
		},
	}
}

// Hash is keccak256(0x1901 || domainSeparator || hashStruct(a)).
func Hash(d Domain, a Authorization) ([]byte, error) {
	if len(a.PublicKey) == 0 {
		return nil, fmt.Errorf("eip712: empty public key")
	}
	if d.ChainID > 1<<63-1 {
		return nil, fmt.Errorf("eip712: chain id %d out of range", d.ChainID)
	}
	h, _, err := apitypes.TypedDataAndHash(TypedData(d, a))
	if err != nil {
		return nil, fmt.Errorf("eip712: hash: %w", err)
	}
	return h, nil
}

// Sign produces a 65-byte signature with v in {27, 28}, as wallets do.
func Sign(d Domain, a Authorization, key *ecdsa.PrivateKey) ([]byte, error) {
	h, err := Hash(d, a)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(h, key)
	if err != nil {
		return nil, fmt.Errorf("eip712: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that signed a under d. Both v encodings
// (0/1 and 27/28) are accepted.
func Recover(d Domain, a Authorization, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("eip712: signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	h, err := Hash(d, a)
	if err != nil {
		return common.Address{}, err
	}
	norm := append([]byte(nil), sig...)
	if norm[crypto.RecoveryIDOffset] >= 27 {
		norm[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(h, norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("eip712: recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
