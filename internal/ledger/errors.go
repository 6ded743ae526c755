package ledger

import errorsmod "cosmossdk.io/errors"

// ModuleName is also the ABCI codespace of ledger errors.
const ModuleName = "dice"

// Ledger sentinel errors.
var (
	ErrInvalidRequest     = errorsmod.Register(ModuleName, 1, "invalid request")
	ErrInvalidDeposit     = errorsmod.Register(ModuleName, 2, "invalid deposit")
	ErrPlayerNotJoined    = errorsmod.Register(ModuleName, 3, "player not joined")
	ErrRoundAlreadyActive = errorsmod.Register(ModuleName, 4, "round already active")
	ErrRoundNotActive     = errorsmod.Register(ModuleName, 5, "round not active")
	ErrInvalidProof       = errorsmod.Register(ModuleName, 6, "invalid input proof")
)
