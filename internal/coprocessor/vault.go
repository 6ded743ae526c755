package coprocessor

import (
	"crypto/rand"
	"fmt"

	dbm "github.com/cosmos/cosmos-db"
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"

	"onchaindice/internal/fhe"
)

const vaultKeyContext = "odic coprocessor 2026 vault sealing key v0"

var vaultPrefix = []byte("v/")

// record is the plaintext behind one handle.
type record struct {
	Type  fhe.Type `cbor:"1,keyasint"`
	Value uint64   `cbor:"2,keyasint"`
}

// vault stores records sealed under a key derived from the network secret.
// The handle is the AEAD associated data, so a sealed record cannot be
// replayed under another handle.
type vault struct {
	db   dbm.DB
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

func newVault(db dbm.DB, secret []byte) (*vault, error) {
	var key [chacha20poly1305.KeySize]byte
	blake3.DeriveKey(vaultKeyContext, secret, key[:])
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("vault aead: %w", err)
	}
	return &vault{db: db, aead: aead}, nil
}

func vaultKey(h fhe.Handle) []byte {
	return append(append([]byte(nil), vaultPrefix...), h[:]...)
}

func (v *vault) seal(h fhe.Handle, r record) ([]byte, error) {
	pt, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, pt, h[:]), nil
}

func (v *vault) open(h fhe.Handle, sealed []byte) (record, error) {
	ns := v.aead.NonceSize()
	if len(sealed) < ns {
		return record{}, fmt.Errorf("sealed record for %s too short", h)
	}
	pt, err := v.aead.Open(nil, sealed[:ns], sealed[ns:], h[:])
	if err != nil {
		return record{}, fmt.Errorf("open record for %s: %w", h, err)
	}
	var r record
	if err := cbor.Unmarshal(pt, &r); err != nil {
		return record{}, fmt.Errorf("decode record for %s: %w", h, err)
	}
	return r, nil
}

// get returns ok=false when h was never materialized.
func (v *vault) get(h fhe.Handle) (record, bool, error) {
	sealed, err := v.db.Get(vaultKey(h))
	if err != nil {
		return record{}, false, err
	}
	if sealed == nil {
		return record{}, false, nil
	}
	r, err := v.open(h, sealed)
	if err != nil {
		return record{}, false, err
	}
	return r, true, nil
}

func (v *vault) writeBatch(recs map[fhe.Handle]record, order []fhe.Handle) error {
	b := v.db.NewBatch()
	defer b.Close()
	for _, h := range order {
		sealed, err := v.seal(h, recs[h])
		if err != nil {
			return err
		}
		if err := b.Set(vaultKey(h), sealed); err != nil {
			return err
		}
	}
	return b.Write()
}
