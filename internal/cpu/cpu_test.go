package cpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kclejeune/rv32sim/internal/cpu"
	"github.com/kclejeune/rv32sim/internal/memory"
)

func newCPU(t *testing.T, program []byte, ramSize int) *cpu.CPU {
	t.Helper()
	ram := make([]byte, ramSize)
	copy(ram, program)
	m := memory.NewMap([]memory.Region{memory.NewRAM(0, ram)})
	return cpu.New(memory.NewBus(m))
}

func encodeI(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return (uint32(imm) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func encodeR(opcode, funct3, funct7, rd, rs1, rs2 uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func encodeB(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	var w uint32
	w |= ((u >> 12) & 0b1) << 31
	w |= ((u >> 5) & 0b111111) << 25
	w |= rs2 << 20
	w |= rs1 << 15
	w |= funct3 << 12
	w |= ((u >> 1) & 0b1111) << 8
	w |= ((u >> 11) & 0b1) << 7
	w |= opcode
	return w
}

func encodeJ(opcode, rd uint32, imm int32) uint32 {
	u := uint32(imm)
	var w uint32
	w |= ((u >> 20) & 0b1) << 31
	w |= ((u >> 1) & 0b1111111111) << 21
	w |= ((u >> 11) & 0b1) << 20
	w |= ((u >> 12) & 0b11111111) << 12
	w |= rd << 7
	w |= opcode
	return w
}

func le32(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

func program(words ...uint32) []byte {
	var out []byte
	for _, w := range words {
		out = append(out, le32(w)...)
	}
	return out
}

const (
	opImmMath = 0b0010011
	opRegMath = 0b0110011
	opBranch  = 0b1100011
	opJAL     = 0b1101111
)

func TestAddiOnlyProgram(t *testing.T) {
	// addi x1, x0, 5
	c := newCPU(t, []byte{0x93, 0x00, 0x50, 0x00}, 64)
	require.NoError(t, c.Step())
	assert.Equal(t, int32(5), c.GetReg(1))
	assert.Equal(t, int32(4), c.IP)
}

func TestX0IsAlwaysZero(t *testing.T) {
	// addi x0, x0, 9
	c := newCPU(t, program(encodeI(opImmMath, 0, 0, 0, 9)), 64)
	require.NoError(t, c.Step())
	assert.Equal(t, int32(0), c.GetReg(0))
}

func TestBranchTakenVsFallthrough(t *testing.T) {
	// addi x1,x0,1; addi x2,x0,1; beq x1,x2,+8; addi x3,x0,7; addi x4,x0,9
	prog := program(
		encodeI(opImmMath, 0, 1, 0, 1),
		encodeI(opImmMath, 0, 2, 0, 1),
		encodeB(opBranch, 0, 1, 2, 8),
		encodeI(opImmMath, 0, 3, 0, 7),
		encodeI(opImmMath, 0, 4, 0, 9),
	)
	c := newCPU(t, prog, 64)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Step())
	}
	assert.Equal(t, int32(0), c.GetReg(3))
	assert.Equal(t, int32(9), c.GetReg(4))
}

func TestJALReturnAddress(t *testing.T) {
	ram := make([]byte, 0x200)
	copy(ram[0x100:], le32(encodeJ(opJAL, 1, 8)))
	m := memory.NewMap([]memory.Region{memory.NewRAM(0, ram)})
	c := cpu.New(memory.NewBus(m))
	c.IP = 0x100
	require.NoError(t, c.Step())
	assert.Equal(t, int32(0x104), c.GetReg(1))
	assert.Equal(t, int32(0x108), c.IP)
}

func TestAddRegisterMath(t *testing.T) {
	prog := program(
		encodeI(opImmMath, 0, 1, 0, 3),
		encodeI(opImmMath, 0, 2, 0, 4),
		encodeR(opRegMath, 0, 0, 3, 1, 2),
	)
	c := newCPU(t, prog, 64)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Step())
	}
	assert.Equal(t, int32(7), c.GetReg(3))
}

func TestStoreLoadRoundTrip(t *testing.T) {
	// addi x1,x0,0x7f; sw x1,[x0+0x40]; lw x2,[x0+0x40]
	prog := program(
		encodeI(opImmMath, 0, 1, 0, 0x7f),
		0, // placeholder for sw, filled below
		0, // placeholder for lw
	)
	// sw: opcode STORE=0x23 funct3=2, imm_S split.
	const opStore = 0b0100011
	const opLoad = 0b0000011
	sw := (uint32(0x40>>5) << 25) | (1 << 20) | (0 << 15) | (2 << 12) | ((0x40 & 0x1f) << 7) | opStore
	lw := encodeI(opLoad, 2, 2, 0, 0x40)
	copy(prog[4:8], le32(sw))
	copy(prog[8:12], le32(lw))
	c := newCPU(t, prog, 128)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Step())
	}
	assert.Equal(t, int32(0x7f), c.GetReg(2))
}

func TestUnimplementedOpcodeIsFatal(t *testing.T) {
	// SUB uses REG_MATH opcode with funct7=0x20, which is unimplemented here.
	prog := program(encodeR(opRegMath, 0, 0x20, 1, 0, 0))
	c := newCPU(t, prog, 64)
	err := c.Step()
	require.Error(t, err)
	var ue *cpu.UnimplementedOpcodeError
	require.ErrorAs(t, err, &ue)
}

func TestReservedLengthFatal(t *testing.T) {
	// Bottom two bits of the tag != 0b11 selects the unimplemented
	// 16-bit instruction form, which is fatal to this engine.
	prog := []byte{0x00, 0x00, 0x00, 0x00}
	c := newCPU(t, prog, 64)
	err := c.Step()
	require.Error(t, err)
	var rl *cpu.ReservedLengthError
	require.ErrorAs(t, err, &rl)
}
