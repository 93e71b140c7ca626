package priority

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/common"
)

const (
	discriminatorSetComputeUnitLimit = 2
	discriminatorSetComputeUnitPrice = 3
)

// SetComputeUnitLimitInstruction sets the compute unit limit
type SetComputeUnitLimitInstruction struct {
	Units uint32
}

func NewSetComputeUnitLimitInstruction(units uint32) *SetComputeUnitLimitInstruction {
	return &SetComputeUnitLimitInstruction{Units: units}
}

func (ix *SetComputeUnitLimitInstruction) ProgramID() solana.PublicKey {
	return common.ComputeBudgetProgramID
}

func (ix *SetComputeUnitLimitInstruction) Accounts() []*solana.AccountMeta {
	return nil
}

func (ix *SetComputeUnitLimitInstruction) Data() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(discriminatorSetComputeUnitLimit); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(ix.Units, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SetComputeUnitPriceInstruction sets the compute unit price in micro-lamports
type SetComputeUnitPriceInstruction struct {
	MicroLamports uint64
}

func NewSetComputeUnitPriceInstruction(microLamports uint64) *SetComputeUnitPriceInstruction {
	return &SetComputeUnitPriceInstruction{MicroLamports: microLamports}
}

func (ix *SetComputeUnitPriceInstruction) ProgramID() solana.PublicKey {
	return common.ComputeBudgetProgramID
}

func (ix *SetComputeUnitPriceInstruction) Accounts() []*solana.AccountMeta {
	return nil
}

func (ix *SetComputeUnitPriceInstruction) Data() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(discriminatorSetComputeUnitPrice); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(ix.MicroLamports, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RouteBudget is what a route's own compute budget instructions asked for.
// Instructions that neither set the limit nor the price are kept in Other.
type RouteBudget struct {
	Units *uint32
	Price *uint64
	Other []solana.Instruction
}

// DecodeRouteBudget reads limit and price out of compute budget instructions.
func DecodeRouteBudget(ixs []solana.Instruction) (*RouteBudget, error) {
	out := &RouteBudget{}
	for _, ix := range ixs {
		if !ix.ProgramID().Equals(common.ComputeBudgetProgramID) {
			return nil, fmt.Errorf("unexpected program %s in compute budget instructions", ix.ProgramID())
		}
		data, err := ix.Data()
		if err != nil {
			return nil, err
		}

		dec := bin.NewBinDecoder(data)
		disc, err := dec.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("compute budget instruction: %w", err)
		}
		switch disc {
		case discriminatorSetComputeUnitLimit:
			units, err := dec.ReadUint32(binary.LittleEndian)
			if err != nil {
				return nil, fmt.Errorf("compute unit limit: %w", err)
			}
			out.Units = &units
		case discriminatorSetComputeUnitPrice:
			price, err := dec.ReadUint64(binary.LittleEndian)
			if err != nil {
				return nil, fmt.Errorf("compute unit price: %w", err)
			}
			out.Price = &price
		default:
			out.Other = append(out.Other, ix)
		}
	}
	return out, nil
}
