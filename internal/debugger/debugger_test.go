package debugger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kclejeune/rv32sim/internal/cpu"
	"github.com/kclejeune/rv32sim/internal/debugger"
	"github.com/kclejeune/rv32sim/internal/memory"
)

func encodeI(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return (uint32(imm) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func encodeS(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	hi := (u >> 5) & 0b1111111
	lo := u & 0b11111
	return (hi << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (lo << 7) | opcode
}

func le32(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

func newDebugger(t *testing.T, words ...uint32) *debugger.Debugger {
	t.Helper()
	var prog []byte
	for _, w := range words {
		prog = append(prog, le32(w)...)
	}
	ram := make([]byte, 64)
	copy(ram, prog)
	m := memory.NewMap([]memory.Region{memory.NewRAM(0, ram)})
	return debugger.New(cpu.New(memory.NewBus(m)))
}

const opImmMath = 0b0010011

func TestStepAdvancesOneInstruction(t *testing.T) {
	d := newDebugger(t, encodeI(opImmMath, 0, 1, 0, 5), encodeI(opImmMath, 0, 2, 0, 6))
	require.NoError(t, d.Step())
	assert.Equal(t, int32(4), d.CPU.IP)
	assert.Equal(t, int32(5), d.CPU.GetReg(1))
}

func TestContinueStopsAtBreakpoint(t *testing.T) {
	d := newDebugger(t,
		encodeI(opImmMath, 0, 1, 0, 1),
		encodeI(opImmMath, 0, 2, 0, 2),
		encodeI(opImmMath, 0, 3, 0, 3),
	)
	d.AddBreakpoint(8)
	require.NoError(t, d.Continue())
	assert.Equal(t, int32(8), d.CPU.IP)
	assert.Equal(t, int32(1), d.CPU.GetReg(1))
	assert.Equal(t, int32(2), d.CPU.GetReg(2))
	assert.Equal(t, int32(0), d.CPU.GetReg(3))
}

// TestContinueAtExistingBreakpointDoesNotStep: when IP is already
// sitting on an armed breakpoint, continue returns immediately without
// executing anything.
func TestContinueAtExistingBreakpointDoesNotStep(t *testing.T) {
	d := newDebugger(t, encodeI(opImmMath, 0, 1, 0, 9))
	d.AddBreakpoint(0)
	require.NoError(t, d.Continue())
	assert.Equal(t, int32(0), d.CPU.IP)
	assert.Equal(t, int32(0), d.CPU.GetReg(1))
}

func TestAddAndRemoveBreakpoint(t *testing.T) {
	d := newDebugger(t, encodeI(opImmMath, 0, 1, 0, 1))
	d.AddBreakpoint(4)
	assert.True(t, d.HasBreakpoint(4))
	assert.True(t, d.RemoveBreakpoint(4))
	assert.False(t, d.HasBreakpoint(4))
	assert.False(t, d.RemoveBreakpoint(4))
}

func TestDisassembleDoesNotMutateState(t *testing.T) {
	d := newDebugger(t, encodeI(opImmMath, 0, 1, 0, 5))
	line, err := d.Disassemble(0)
	require.NoError(t, err)
	assert.Equal(t, "addi x1, x0, 5", line)
	assert.Equal(t, int32(0), d.CPU.IP)
	assert.Equal(t, int32(0), d.CPU.GetReg(1))
}

func TestInfoRegsShowsIPAndRegisters(t *testing.T) {
	d := newDebugger(t, encodeI(opImmMath, 0, 1, 0, 5))
	require.NoError(t, d.Step())
	out := d.InfoRegs()
	assert.Contains(t, out, "IP=00000004")
	assert.Contains(t, out, "x1 (ra)=00000005")
}

func TestExamineMemoryReadsHexBytes(t *testing.T) {
	d := newDebugger(t, encodeI(opImmMath, 0, 1, 0, 5))
	out, err := d.ExamineMemory(0, 4)
	require.NoError(t, err)
	assert.Equal(t, "93 00 50 00", out)
}

const opStore = 0b0100011

// TestContinueStopsOnGuestExit proves a write to an ExitPort region
// from within Continue halts execution at that instruction rather than
// running past it: the instruction following the exit write must never
// run.
func TestContinueStopsOnGuestExit(t *testing.T) {
	const exitAddr = 0x40
	prog := []uint32{
		encodeI(opImmMath, 0, 1, 0, 7),       // addi x1, x0, 7
		encodeS(opStore, 0, 0, 1, exitAddr),  // sb x1, [x0+0x40]
		encodeI(opImmMath, 0, 2, 0, 99),      // addi x2, x0, 99 (must not run)
	}
	var code []byte
	for _, w := range prog {
		code = append(code, le32(w)...)
	}
	ram := make([]byte, 0x80)
	copy(ram, code)
	m := memory.NewMap([]memory.Region{
		memory.NewRAM(0, ram[:exitAddr]),
		memory.NewExitPort(exitAddr),
		memory.NewRAM(exitAddr+1, ram[exitAddr+1:]),
	})
	d := debugger.New(cpu.New(memory.NewBus(m)))

	err := d.Continue()
	require.Error(t, err)
	var exit *memory.ExitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, byte(7), exit.Code)
	assert.Equal(t, int32(0), d.CPU.GetReg(2))
}
