package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"onchaindice/internal/fhe"
)

const DefaultChainID = "odic-localnet"

type State struct {
	Height int64 `json:"height"`

	// LedgerAddress identifies this ledger instance as an ACL principal and
	// as the EIP-712 verifying contract.
	LedgerAddress common.Address `json:"ledgerAddress"`
	Params        Params         `json:"params"`
	// NetworkPublicKey is the coprocessor key inputs are encrypted to
	// (32-byte ristretto point, base64 in JSON).
	NetworkPublicKey []byte `json:"networkPublicKey,omitempty"`

	Accounts map[common.Address]uint64 `json:"accounts"`
	NonceMax map[common.Address]uint64 `json:"nonceMax,omitempty"` // signer -> last accepted tx.nonce

	Participants map[common.Address]*Participant `json:"participants"`
	Rounds       map[common.Address]*Round       `json:"rounds"`
	ACL          *fhe.ACL                        `json:"acl"`
}

// LedgerAddressForChain derives the ledger principal for a chain id.
func LedgerAddressForChain(chainID string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("odic/ledger"), []byte(chainID))[12:])
}

func NewState() *State {
	return &State{
		Height:        0,
		LedgerAddress: LedgerAddressForChain(DefaultChainID),
		Params:        DefaultParams(),
		Accounts:      map[common.Address]uint64{},
		NonceMax:      map[common.Address]uint64{},
		Participants:  map[common.Address]*Participant{},
		Rounds:        map[common.Address]*Round{},
		ACL:           fhe.NewACL(),
	}
}

func (s *State) normalize() {
	if s.Accounts == nil {
		s.Accounts = map[common.Address]uint64{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[common.Address]uint64{}
	}
	if s.Participants == nil {
		s.Participants = map[common.Address]*Participant{}
	}
	if s.Rounds == nil {
		s.Rounds = map[common.Address]*Round{}
	}
	if s.ACL == nil {
		s.ACL = fhe.NewACL()
	}
	if s.Params == (Params{}) {
		s.Params = DefaultParams()
	}
	if s.LedgerAddress == (common.Address{}) {
		s.LedgerAddress = LedgerAddressForChain(DefaultChainID)
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	// Replace atomically.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

func (s *State) AppHash() []byte {
	// Maps are normalized into address-sorted slices so the hash does not
	// depend on encoder behaviour.
	type accountKV struct {
		Addr    common.Address `json:"addr"`
		Balance uint64         `json:"balance"`
	}
	type nonceKV struct {
		Signer common.Address `json:"signer"`
		Nonce  uint64         `json:"nonce"`
	}
	type participantKV struct {
		Addr        common.Address `json:"addr"`
		Participant *Participant   `json:"participant"`
		Round       *Round         `json:"round,omitempty"`
	}
	less := func(a, b common.Address) bool { return bytes.Compare(a[:], b[:]) < 0 }

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return less(accounts[i].Addr, accounts[j].Addr) })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return less(nonces[i].Signer, nonces[j].Signer) })

	participants := make([]participantKV, 0, len(s.Participants))
	for k, p := range s.Participants {
		participants = append(participants, participantKV{Addr: k, Participant: p, Round: s.Rounds[k]})
	}
	sort.Slice(participants, func(i, j int) bool { return less(participants[i].Addr, participants[j].Addr) })

	normalized := struct {
		Height           int64           `json:"height"`
		LedgerAddress    common.Address  `json:"ledgerAddress"`
		Params           Params          `json:"params"`
		NetworkPublicKey []byte          `json:"networkPublicKey,omitempty"`
		Accounts         []accountKV     `json:"accounts"`
		NonceMax         []nonceKV       `json:"nonceMax,omitempty"`
		Participants     []participantKV `json:"participants"`
		ACL              *fhe.ACL        `json:"acl"`
	}{
		Height:           s.Height,
		LedgerAddress:    s.LedgerAddress,
		Params:           s.Params,
		NetworkPublicKey: s.NetworkPublicKey,
		Accounts:         accounts,
		NonceMax:         nonces,
		Participants:     participants,
		ACL:              s.ACL,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr common.Address) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr common.Address, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr common.Address, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}
