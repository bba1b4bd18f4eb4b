// Package debugger implements single-step execution control over a
// *cpu.CPU: breakpoints, step/continue, disassembly of arbitrary
// addresses, and register introspection. REPL is the interactive front
// end in repl.go.
package debugger

import (
	"fmt"

	"github.com/kclejeune/rv32sim/internal/cpu"
	"github.com/kclejeune/rv32sim/internal/disasm"
	"github.com/kclejeune/rv32sim/internal/isa"
)

// Debugger owns a CPU and the breakpoint set layered over it. Like the
// CPU it wraps, a Debugger is driven by exactly one actor at a time.
type Debugger struct {
	CPU         *cpu.CPU
	breakpoints map[int32]struct{}
}

// New wraps c for stepped, breakpointed execution.
func New(c *cpu.CPU) *Debugger {
	return &Debugger{CPU: c, breakpoints: make(map[int32]struct{})}
}

// Step executes exactly one instruction.
func (d *Debugger) Step() error {
	return d.CPU.Step()
}

// Continue steps until the instruction pointer lands on a set
// breakpoint, or a step fails. If IP is already at a breakpoint when
// Continue is called, it returns immediately without stepping: the
// breakpoint set is checked before each step rather than after, so
// continuing from an already-armed breakpoint is a no-op instead of
// running past it. A guest write to an ExitPort region surfaces here as
// an ordinary step error (*memory.ExitError), stopping Continue at the
// exact instruction that performed the write.
func (d *Debugger) Continue() error {
	for {
		if _, hit := d.breakpoints[d.CPU.IP]; hit {
			return nil
		}
		if err := d.CPU.Step(); err != nil {
			return err
		}
	}
}

// AddBreakpoint arms a breakpoint at addr.
func (d *Debugger) AddBreakpoint(addr int32) {
	d.breakpoints[addr] = struct{}{}
}

// RemoveBreakpoint disarms the breakpoint at addr, reporting whether
// one had been set.
func (d *Debugger) RemoveBreakpoint(addr int32) bool {
	if _, ok := d.breakpoints[addr]; !ok {
		return false
	}
	delete(d.breakpoints, addr)
	return true
}

// HasBreakpoint reports whether addr currently carries a breakpoint.
func (d *Debugger) HasBreakpoint(addr int32) bool {
	_, ok := d.breakpoints[addr]
	return ok
}

// Disassemble decodes and renders the instruction at addr without
// advancing IP or otherwise mutating CPU state.
func (d *Debugger) Disassemble(addr uint32) (string, error) {
	word, err := d.CPU.Bus.ReadU32(addr)
	if err != nil {
		return "", err
	}
	return disasm.Disassemble(isa.Decode(word)), nil
}

// regNames gives each register its RISC-V calling-convention alias,
// display-only — nothing in this engine treats registers by anything
// but their xN index.
var regNames = [cpu.NumRegisters]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// InfoRegs renders the register file for the "i regs" command: IP on
// its own line, then x0..x31 eight per line, each annotated with its
// ABI alias.
func (d *Debugger) InfoRegs() string {
	out := fmt.Sprintf("IP=%08X\n", uint32(d.CPU.IP))
	for i := 0; i < cpu.NumRegisters; i++ {
		if i > 0 {
			out += " "
			if i%8 == 0 {
				out += "\n"
			}
		}
		out += fmt.Sprintf("x%-2d(%s)=%08X", i, regNames[i], uint32(d.CPU.GetReg(uint32(i))))
	}
	return out + "\n"
}

// ExamineMemory reads n bytes starting at addr and renders them as
// space-separated hex, for the "x" command.
func (d *Debugger) ExamineMemory(addr uint32, n int) (string, error) {
	buf := make([]byte, n)
	if err := d.CPU.Bus.Read(addr, buf); err != nil {
		return "", err
	}
	out := ""
	for i, b := range buf {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%02X", b)
	}
	return out, nil
}
