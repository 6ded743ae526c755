package fhe

import (
	"bytes"
	"encoding/json"
	"sort"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
)

// ACL records which principals may request decryption of which handles.
// Grants are append-only; there is no revoke.
type ACL struct {
	grants map[Handle][]common.Address
}

func NewACL() *ACL {
	return &ACL{grants: map[Handle][]common.Address{}}
}

// Allow grants p decrypt access on h. Granting twice is a no-op.
func (a *ACL) Allow(h Handle, p common.Address) error {
	if h.IsEmpty() {
		return errorsmod.Wrap(ErrInvalidHandle, "cannot grant on empty handle")
	}
	if a.grants == nil {
		a.grants = map[Handle][]common.Address{}
	}
	ps := a.grants[h]
	i := sort.Search(len(ps), func(i int) bool { return bytes.Compare(ps[i][:], p[:]) >= 0 })
	if i < len(ps) && ps[i] == p {
		return nil
	}
	ps = append(ps, common.Address{})
	copy(ps[i+1:], ps[i:])
	ps[i] = p
	a.grants[h] = ps
	return nil
}

func (a *ACL) IsAllowed(h Handle, p common.Address) bool {
	if a == nil || h.IsEmpty() {
		return false
	}
	ps := a.grants[h]
	i := sort.Search(len(ps), func(i int) bool { return bytes.Compare(ps[i][:], p[:]) >= 0 })
	return i < len(ps) && ps[i] == p
}

// Principals returns the sorted grant list for h.
func (a *ACL) Principals(h Handle) []common.Address {
	if a == nil {
		return nil
	}
	return append([]common.Address(nil), a.grants[h]...)
}

func (a *ACL) Len() int {
	if a == nil {
		return 0
	}
	return len(a.grants)
}

type aclEntry struct {
	Handle     Handle           `json:"handle"`
	Principals []common.Address `json:"principals"`
}

// MarshalJSON emits entries ordered by handle so the encoding is stable.
func (a *ACL) MarshalJSON() ([]byte, error) {
	entries := make([]aclEntry, 0, a.Len())
	if a != nil {
		for h, ps := range a.grants {
			entries = append(entries, aclEntry{Handle: h, Principals: ps})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Handle[:], entries[j].Handle[:]) < 0
	})
	return json.Marshal(entries)
}

func (a *ACL) UnmarshalJSON(b []byte) error {
	var entries []aclEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	a.grants = make(map[Handle][]common.Address, len(entries))
	for _, e := range entries {
		for _, p := range e.Principals {
			if err := a.Allow(e.Handle, p); err != nil {
				return err
			}
		}
	}
	return nil
}
