package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Token2022ProgramID is the Token-2022 (Token Extensions) program.
var Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// MintTo instruction discriminator in the token program instruction set.
const mintToInstruction = 7

// DeriveAssociatedTokenAddress derives the associated token account for an
// owner and mint held by the Token-2022 program. The stock helper in
// solana-go hardcodes the legacy token program seed, so the derivation is
// done explicitly here.
func DeriveAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			Token2022ProgramID.Bytes(),
			mint.Bytes(),
		},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token-2022 ata: %w", err)
	}
	return addr, nil
}

// NewCreateAssociatedTokenAccountInstruction builds the instruction that
// creates the associated token account for owner/mint under Token-2022.
// The payer funds the rent-exempt balance.
func NewCreateAssociatedTokenAccountInstruction(payer, ata, owner, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(Token2022ProgramID, false, false),
		},
		// Empty data selects the Create instruction
		[]byte{},
	)
}

// NewMintToInstruction builds a Token-2022 MintTo instruction crediting
// `amount` base units of the mint to the destination token account. The
// authority must sign the containing transaction.
func NewMintToInstruction(mint, destination, authority solana.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = mintToInstruction
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		Token2022ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(mint, true, false),
			solana.NewAccountMeta(destination, true, false),
			solana.NewAccountMeta(authority, false, true),
		},
		data,
	)
}
