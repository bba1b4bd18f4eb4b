// Package disasm implements a pure, total function from a decoded
// instruction to its textual mnemonic line.
package disasm

import (
	"fmt"

	"github.com/kclejeune/rv32sim/internal/isa"
)

// Disassemble renders in as one line of assembly text. The function
// never fails: unrecognized opcodes/functs produce an
// "Undisassemblable …" line instead of an error. It renders every load
// and branch mnemonic, including ones this engine's executor does not
// implement — disassembly is independent of which subset of the
// instruction set actually runs. Immediate and register math render only
// addi and add.
func Disassemble(in isa.Instruction) string {
	switch in.Opcode() {
	case isa.OpLUI:
		return fmt.Sprintf("lui x%d, %s", in.Rd(), hexImm(in.ImmU()))
	case isa.OpAUIPC:
		return fmt.Sprintf("auipc x%d, %s", in.Rd(), hexImm(in.ImmU()))
	case isa.OpImmMath:
		switch in.Funct3() {
		case isa.Funct3ADDI:
			return fmt.Sprintf("addi x%d, x%d, %d", in.Rd(), in.R1(), in.ImmI())
		default:
			return fmt.Sprintf("Undisassemblable immediate math op funct3=%#x", in.Funct3())
		}
	case isa.OpRegMath:
		switch {
		case in.Funct3() == isa.Funct3ADD && in.Funct7() == isa.Funct7ADD:
			return fmt.Sprintf("add x%d, x%d, x%d", in.Rd(), in.R1(), in.R2())
		default:
			return fmt.Sprintf("Undisassemblable register math op funct3=%#x funct7=%#x", in.Funct3(), in.Funct7())
		}
	case isa.OpStore:
		mnemonic, ok := storeMnemonics[in.Funct3()]
		if !ok {
			return fmt.Sprintf("Undisassemblable store op funct3=%#x", in.Funct3())
		}
		return fmt.Sprintf("%s [x%d%s], x%d", mnemonic, in.R1(), signedOffset(in.ImmS()), in.R2())
	case isa.OpLoad:
		mnemonic, ok := loadMnemonics[in.Funct3()]
		if !ok {
			return fmt.Sprintf("Undisassemblable load op funct3=%#x", in.Funct3())
		}
		return fmt.Sprintf("%s x%d, [x%d%s]", mnemonic, in.Rd(), in.R1(), signedOffset(in.ImmI()))
	case isa.OpJAL:
		return fmt.Sprintf("jal x%d, %s", in.Rd(), hexImm(in.ImmJ()))
	case isa.OpJALR:
		switch in.Funct3() {
		case isa.Funct3JALR:
			return fmt.Sprintf("jalr x%d %d", in.R1(), in.ImmI())
		default:
			return fmt.Sprintf("Undisassemblable jalr op funct3=%#x", in.Funct3())
		}
	case isa.OpBranch:
		mnemonic, ok := branchMnemonics[in.Funct3()]
		if !ok {
			return fmt.Sprintf("Undisassemblable branch op funct3=%#x", in.Funct3())
		}
		return fmt.Sprintf("%s x%d, x%d, %s", mnemonic, in.R1(), in.R2(), signedOffset(in.ImmB()))
	default:
		return fmt.Sprintf("Undisassemblable opcode %#07b", in.Opcode())
	}
}

var storeMnemonics = map[uint32]string{
	isa.Funct3SB: "sb",
	isa.Funct3SH: "sh",
	isa.Funct3SW: "sw",
}

var loadMnemonics = map[uint32]string{
	isa.Funct3LB:  "lb",
	isa.Funct3LH:  "lh",
	isa.Funct3LW:  "lw",
	isa.Funct3LBU: "lbu",
	isa.Funct3LHU: "lhu",
}

var branchMnemonics = map[uint32]string{
	isa.Funct3BEQ:  "beq",
	isa.Funct3BNE:  "bne",
	isa.Funct3BLT:  "blt",
	isa.Funct3BGE:  "bge",
	isa.Funct3BLTU: "bltu",
	isa.Funct3BGEU: "bgeu",
}

// hexImm renders an immediate in uppercase hex with a 0x prefix, for
// U- and J-type contexts.
func hexImm(v int32) string {
	return fmt.Sprintf("0x%X", uint32(v))
}

// signedOffset renders a load/store/branch offset with an explicit
// sign; zero prints as "+0".
func signedOffset(v int32) string {
	if v >= 0 {
		return fmt.Sprintf("+%d", v)
	}
	return fmt.Sprintf("%d", v)
}
