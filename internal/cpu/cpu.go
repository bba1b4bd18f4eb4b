// Package cpu implements the fetch-decode-execute loop and per-opcode
// semantics of the implemented RISC-V subset.
package cpu

import (
	"fmt"

	"github.com/kclejeune/rv32sim/internal/isa"
	"github.com/kclejeune/rv32sim/internal/memory"
)

// NumRegisters is the number of general purpose registers, x0..x31.
const NumRegisters = 32

// CPU is the register file, instruction pointer and memory bus of a
// single execution context, owned by exactly one actor and never
// re-entered.
type CPU struct {
	Regs [NumRegisters]int32
	IP   int32
	Bus  *memory.Bus
}

// New constructs a CPU with ip=0 and all registers zeroed, wired to bus.
func New(bus *memory.Bus) *CPU {
	return &CPU{Bus: bus}
}

// GetReg reads a register; x0 always reads as 0.
func (c *CPU) GetReg(r uint32) int32 {
	if r == 0 {
		return 0
	}
	return c.Regs[r]
}

// SetReg writes a register; writes to x0 are silently discarded.
func (c *CPU) SetReg(r uint32, v int32) {
	if r == 0 {
		return
	}
	c.Regs[r] = v
}

// ReservedLengthError reports an instruction whose leading 16-bit tag
// decodes to a length this engine does not execute.
type ReservedLengthError struct {
	Tag uint16
	Len int
	IP  int32
}

func (e *ReservedLengthError) Error() string {
	return fmt.Sprintf("cpu: unsupported instruction length %d (tag=%#04x) at ip=%#08x", e.Len, e.Tag, uint32(e.IP))
}

// UnimplementedOpcodeError reports an opcode outside the implemented
// table, or a recognized opcode with an unimplemented funct3/funct7.
type UnimplementedOpcodeError struct {
	Word   uint32
	Opcode uint32
	Funct3 uint32
	Funct7 uint32
	IP     int32
}

func (e *UnimplementedOpcodeError) Error() string {
	return fmt.Sprintf(
		"cpu: unimplemented opcode=%#07b funct3=%#x funct7=%#x (word=%#08x) at ip=%#08x",
		e.Opcode, e.Funct3, e.Funct7, e.Word, uint32(e.IP),
	)
}

// Step fetches, decodes and executes exactly one instruction, advancing
// IP afterward. Returns the memory/decode/execute error, if any; on
// error neither IP nor any register has been changed by the failing
// step, but a store whose byte range crosses a region boundary may
// already have written (or emitted) its leading bytes before the fault
// in a later region.
func (c *CPU) Step() error {
	c.Bus.IP = c.IP

	tag, err := c.Bus.ReadU16(uint32(c.IP))
	if err != nil {
		return err
	}
	length := isa.InstLen(tag)
	if length != 2 {
		return &ReservedLengthError{Tag: tag, Len: length, IP: c.IP}
	}

	word, err := c.Bus.ReadU32(uint32(c.IP))
	if err != nil {
		return err
	}
	in := isa.Decode(word)

	jumped, err := c.execute(in)
	if err != nil {
		return err
	}
	if !jumped {
		c.IP += int32(length) * 2
	}
	return nil
}

// execute dispatches on opcode and runs one instruction's semantics.
// Returns true if the instruction itself updated IP (taken branch, JAL,
// JALR), in which case Step must not also advance it.
func (c *CPU) execute(in isa.Instruction) (jumped bool, err error) {
	opcode := in.Opcode()
	switch opcode {
	case isa.OpLUI:
		c.SetReg(in.Rd(), in.ImmU()<<12)

	case isa.OpAUIPC:
		// ip + (imm_U << 12), in that grouping: AUIPC adds the current
		// instruction pointer to the shifted immediate, not the other way
		// around.
		c.SetReg(in.Rd(), c.IP+(in.ImmU()<<12))

	case isa.OpImmMath:
		switch in.Funct3() {
		case isa.Funct3ADDI:
			c.SetReg(in.Rd(), c.GetReg(in.R1())+in.ImmI())
		default:
			return false, c.unimplemented(in)
		}

	case isa.OpRegMath:
		switch {
		case in.Funct3() == isa.Funct3ADD && in.Funct7() == isa.Funct7ADD:
			c.SetReg(in.Rd(), c.GetReg(in.R1())+c.GetReg(in.R2()))
		default:
			return false, c.unimplemented(in)
		}

	case isa.OpStore:
		if err := c.executeStore(in); err != nil {
			return false, err
		}

	case isa.OpLoad:
		if err := c.executeLoad(in); err != nil {
			return false, err
		}

	case isa.OpJAL:
		c.SetReg(in.Rd(), c.IP+4)
		c.IP += in.ImmJ()
		return true, nil

	case isa.OpJALR:
		switch in.Funct3() {
		case isa.Funct3JALR:
			target := c.GetReg(in.R1()) + in.ImmI()
			c.SetReg(in.Rd(), c.IP+4)
			c.IP = target
			return true, nil
		default:
			return false, c.unimplemented(in)
		}

	case isa.OpBranch:
		taken, ok := evalBranch(c, in)
		if !ok {
			return false, c.unimplemented(in)
		}
		if taken {
			c.IP += in.ImmB()
			return true, nil
		}

	default:
		return false, c.unimplemented(in)
	}
	return false, nil
}

// evalBranch evaluates the predicate for a BRANCH-family instruction.
// ok is false when funct3 selects an unimplemented branch variant.
func evalBranch(c *CPU, in isa.Instruction) (taken bool, ok bool) {
	r1, r2 := c.GetReg(in.R1()), c.GetReg(in.R2())
	switch in.Funct3() {
	case isa.Funct3BEQ:
		return r1 == r2, true
	case isa.Funct3BNE:
		return r1 != r2, true
	case isa.Funct3BGE:
		return r1 >= r2, true
	default:
		return false, false
	}
}

func (c *CPU) executeStore(in isa.Instruction) error {
	addr := uint32(c.GetReg(in.R1()) + in.ImmS())
	v := c.GetReg(in.R2())
	switch in.Funct3() {
	case isa.Funct3SB:
		return c.Bus.Write(addr, []byte{byte(v)})
	case isa.Funct3SH:
		return c.Bus.Write(addr, []byte{byte(v), byte(v >> 8)})
	case isa.Funct3SW:
		return c.Bus.Write(addr, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	default:
		return c.unimplemented(in)
	}
}

func (c *CPU) executeLoad(in isa.Instruction) error {
	addr := uint32(c.GetReg(in.R1()) + in.ImmI())
	switch in.Funct3() {
	case isa.Funct3LW:
		v, err := c.Bus.ReadU32(addr)
		if err != nil {
			return err
		}
		c.SetReg(in.Rd(), int32(v))
		return nil
	case isa.Funct3LBU:
		var b [1]byte
		if err := c.Bus.Read(addr, b[:]); err != nil {
			return err
		}
		c.SetReg(in.Rd(), int32(b[0]))
		return nil
	default:
		return c.unimplemented(in)
	}
}

func (c *CPU) unimplemented(in isa.Instruction) error {
	return &UnimplementedOpcodeError{
		Word: in.Word, Opcode: in.Opcode(), Funct3: in.Funct3(), Funct7: in.Funct7(), IP: c.IP,
	}
}
