// Package common contains common constants and variables used across services
package common

import "github.com/gagliardetto/solana-go"

var (
	TokenProgramID         = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ID            = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	ATAProgramID           = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	SystemProgramID        = solana.SystemProgramID

	// NativeMint is wrapped SOL. Swaps from or to it are settled in lamports.
	NativeMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

const (
	// MaxTransactionSize is the largest serialized transaction the cluster
	// accepts.
	MaxTransactionSize = 1232

	SignatureSize = 64

	// SPL token instruction tags
	TokenInstructionTransferChecked = 12
	TokenInstructionCloseAccount    = 9

	// associated token account instruction tags
	ATAInstructionCreate           = 0
	ATAInstructionCreateIdempotent = 1

	// mint account layout
	MintAccountSize    = 82
	MintDecimalsOffset = 44
)

// IsTokenProgram reports whether id is one of the SPL token programs.
func IsTokenProgram(id solana.PublicKey) bool {
	return id.Equals(TokenProgramID) || id.Equals(Token2022ID)
}
