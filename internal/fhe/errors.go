package fhe

import errorsmod "cosmossdk.io/errors"

// Codespace is the ABCI codespace for ciphertext/capability errors.
const Codespace = "fhe"

var (
	ErrInvalidHandle = errorsmod.Register(Codespace, 1, "invalid ciphertext handle")
	ErrTypeMismatch  = errorsmod.Register(Codespace, 2, "ciphertext type mismatch")
	ErrACLNotAllowed = errorsmod.Register(Codespace, 3, "principal not allowed on handle")
	ErrInvalidInput  = errorsmod.Register(Codespace, 4, "invalid encrypted input")
)
