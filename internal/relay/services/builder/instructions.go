package builder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/hxuan190/sponsor-relay/internal/common"
	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
)

var ErrNotAMint = errors.New("account is not a token mint")

type ataKey struct {
	Wallet       solana.PublicKey
	Mint         solana.PublicKey
	TokenProgram solana.PublicKey
}

var (
	ataCache   = make(map[ataKey]solana.PublicKey)
	ataCacheMu sync.RWMutex
)

func GetATAAddressForMint(wallet, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	key := ataKey{Wallet: wallet, Mint: mint, TokenProgram: tokenProgram}

	ataCacheMu.RLock()
	if cached, ok := ataCache[key]; ok {
		ataCacheMu.RUnlock()
		return cached, nil
	}
	ataCacheMu.RUnlock()

	ata, _, err := solana.FindProgramAddress(
		[][]byte{
			wallet[:],
			tokenProgram[:],
			mint[:],
		},
		common.ATAProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, err
	}

	ataCacheMu.Lock()
	ataCache[key] = ata
	ataCacheMu.Unlock()

	return ata, nil
}

// CreateATAIdempotentInstruction creates owner's token account for mint if it
// does not exist yet; payer funds the rent.
func CreateATAIdempotentInstruction(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := GetATAAddressForMint(owner, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	return &createATAInstruction{
		payer:        payer,
		ata:          ata,
		owner:        owner,
		mint:         mint,
		tokenProgram: tokenProgram,
	}, nil
}

type createATAInstruction struct {
	payer        solana.PublicKey
	ata          solana.PublicKey
	owner        solana.PublicKey
	mint         solana.PublicKey
	tokenProgram solana.PublicKey
}

func (i *createATAInstruction) ProgramID() solana.PublicKey {
	return common.ATAProgramID
}

func (i *createATAInstruction) Accounts() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		{PublicKey: i.payer, IsSigner: true, IsWritable: true},
		{PublicKey: i.ata, IsSigner: false, IsWritable: true},
		{PublicKey: i.owner, IsSigner: false, IsWritable: false},
		{PublicKey: i.mint, IsSigner: false, IsWritable: false},
		{PublicKey: common.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: i.tokenProgram, IsSigner: false, IsWritable: false},
	}
}

func (i *createATAInstruction) Data() ([]byte, error) {
	return []byte{common.ATAInstructionCreateIdempotent}, nil
}

// transferCheckedInstruction moves amount of mint from source to destination.
// It works for both token programs.
type transferCheckedInstruction struct {
	tokenProgram solana.PublicKey
	source       solana.PublicKey
	mint         solana.PublicKey
	destination  solana.PublicKey
	authority    solana.PublicKey
	amount       uint64
	decimals     uint8
}

func (i *transferCheckedInstruction) ProgramID() solana.PublicKey {
	return i.tokenProgram
}

func (i *transferCheckedInstruction) Accounts() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		{PublicKey: i.source, IsSigner: false, IsWritable: true},
		{PublicKey: i.mint, IsSigner: false, IsWritable: false},
		{PublicKey: i.destination, IsSigner: false, IsWritable: true},
		{PublicKey: i.authority, IsSigner: true, IsWritable: false},
	}
}

func (i *transferCheckedInstruction) Data() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(common.TokenInstructionTransferChecked); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(i.amount, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(i.decimals); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type mintInfo struct {
	tokenProgram solana.PublicKey
	decimals     uint8
}

// mintRegistry caches the owning token program and decimals of mints.
type mintRegistry struct {
	chain blockchain.Client

	mu    sync.RWMutex
	mints map[solana.PublicKey]mintInfo
}

func newMintRegistry(chain blockchain.Client) *mintRegistry {
	return &mintRegistry{chain: chain, mints: make(map[solana.PublicKey]mintInfo)}
}

func (r *mintRegistry) Get(ctx context.Context, mint solana.PublicKey) (mintInfo, error) {
	r.mu.RLock()
	info, ok := r.mints[mint]
	r.mu.RUnlock()
	if ok {
		return info, nil
	}

	acc, err := r.chain.GetAccount(ctx, mint)
	if err != nil {
		return mintInfo{}, fmt.Errorf("mint %s: %w", mint, err)
	}
	if !common.IsTokenProgram(acc.Owner) || len(acc.Data) < common.MintAccountSize {
		return mintInfo{}, fmt.Errorf("mint %s: %w", mint, ErrNotAMint)
	}
	info = mintInfo{tokenProgram: acc.Owner, decimals: acc.Data[common.MintDecimalsOffset]}

	r.mu.Lock()
	r.mints[mint] = info
	r.mu.Unlock()
	return info, nil
}

// feeInstructions moves the platform fee from the requester to the recipient
// in the input asset. Native SOL is paid with a system transfer; token fees
// first create the recipient's account at the relay's expense.
func (svc *Service) feeInstructions(ctx context.Context, intent domain.SwapIntent, fee domain.FeeDecision, feePayer solana.PublicKey) ([]solana.Instruction, error) {
	if intent.InputMint.Equals(common.NativeMint) {
		ix, err := system.NewTransferInstruction(fee.FeeAmount, intent.Requester, fee.FeeRecipient).ValidateAndBuild()
		if err != nil {
			return nil, err
		}
		return []solana.Instruction{ix}, nil
	}

	mint, err := svc.mints.Get(ctx, intent.InputMint)
	if err != nil {
		return nil, err
	}
	source, err := GetATAAddressForMint(intent.Requester, intent.InputMint, mint.tokenProgram)
	if err != nil {
		return nil, err
	}
	createRecipient, err := CreateATAIdempotentInstruction(feePayer, fee.FeeRecipient, intent.InputMint, mint.tokenProgram)
	if err != nil {
		return nil, err
	}
	destination, err := GetATAAddressForMint(fee.FeeRecipient, intent.InputMint, mint.tokenProgram)
	if err != nil {
		return nil, err
	}

	return []solana.Instruction{
		createRecipient,
		&transferCheckedInstruction{
			tokenProgram: mint.tokenProgram,
			source:       source,
			mint:         intent.InputMint,
			destination:  destination,
			authority:    intent.Requester,
			amount:       fee.FeeAmount,
			decimals:     mint.decimals,
		},
	}, nil
}
