package debugger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// REPL drives a Debugger from line-oriented commands: n/next,
// c/continue, b/bp/break ADDR, rb/db/delbreakpoint ADDR, d/disasm ADDR,
// i regs/info, q/quit/exit, and w/x/examine ADDR LEN. Built on
// chzyer/readline for history and line editing.
type REPL struct {
	dbg      *Debugger
	rl       *readline.Instance
	out      io.Writer
	addr     *color.Color
	errColor *color.Color
	lastLine string
}

// NewREPL builds a REPL over dbg. noColor forces ANSI coloring off
// regardless of the output stream; coloring is also auto-disabled when
// out is not a terminal.
func NewREPL(dbg *Debugger, out io.Writer, noColor bool) (*REPL, error) {
	historyFile := ""
	if cacheDir, err := os.UserCacheDir(); err == nil {
		historyFile = filepath.Join(cacheDir, "rv32sim", "history")
		_ = os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          out,
	})
	if err != nil {
		return nil, fmt.Errorf("debugger: initializing line editor: %w", err)
	}

	useColor := !noColor
	if f, ok := out.(*os.File); ok {
		useColor = useColor && term.IsTerminal(int(f.Fd()))
	} else {
		useColor = false
	}

	addrColor := color.New(color.FgCyan)
	errColor := color.New(color.FgRed)
	addrColor.EnableColor()
	errColor.EnableColor()
	if !useColor {
		addrColor.DisableColor()
		errColor.DisableColor()
	}

	return &REPL{dbg: dbg, rl: rl, out: out, addr: addrColor, errColor: errColor}, nil
}

// Close releases the underlying line editor and its history file.
func (r *REPL) Close() error {
	return r.rl.Close()
}

// Run executes the debugger's read-eval-print loop until the user
// quits, a step/continue fails fatally, or the guest exits via an
// ExitPort write — both surface as the error returned to the caller to
// unwrap and act on.
func (r *REPL) Run() error {
	r.printDisasmLine(uint32(r.dbg.CPU.IP))
	for {
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if r.lastLine == "" {
				continue
			}
			line = r.lastLine
		}
		r.lastLine = line

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		quit, stepErr := r.dispatch(cmd, arg)
		if stepErr != nil {
			return stepErr
		}
		if quit {
			return nil
		}
		r.printDisasmLine(uint32(r.dbg.CPU.IP))
	}
}

// dispatch runs one command. stepErr is a fatal engine error (from
// Step/Continue) that should propagate out of Run; a parse/usage
// mistake is reported to r.out and does not stop the REPL.
func (r *REPL) dispatch(cmd, arg string) (quit bool, stepErr error) {
	switch cmd {
	case "n", "next":
		if err := r.dbg.Step(); err != nil {
			return false, err
		}
	case "c", "continue":
		if err := r.dbg.Continue(); err != nil {
			return false, err
		}
	case "b", "bp", "break":
		addr, ok := r.parseHexAddr(arg, "b|bp|break <address>")
		if !ok {
			return false, nil
		}
		r.dbg.AddBreakpoint(int32(addr))
		fmt.Fprintf(r.out, "Set breakpoint at 0x%08X\n", addr)
	case "rb", "db", "delbreakpoint":
		addr, ok := r.parseHexAddr(arg, "rb|db|delbreakpoint <address>")
		if !ok {
			return false, nil
		}
		if !r.dbg.RemoveBreakpoint(int32(addr)) {
			r.printError("Breakpoint 0x%08X does not exist", addr)
		}
	case "d", "disasm":
		addr, ok := r.parseHexAddr(arg, "d|disasm <address>")
		if !ok {
			return false, nil
		}
		line, err := r.dbg.Disassemble(addr)
		if err != nil {
			r.printError("%v", err)
			return false, nil
		}
		r.printAddrLine(addr, line)
	case "w", "x", "examine":
		if !r.dispatchExamine(arg) {
			return false, nil
		}
	case "i", "info":
		if arg != "regs" {
			r.printError("Invalid usage of info command with arg: %s\n i|info regs", arg)
			return false, nil
		}
		fmt.Fprint(r.out, r.dbg.InfoRegs())
	case "q", "quit", "exit":
		return true, nil
	default:
		r.printError("Unknown cmd %s", cmd)
	}
	return false, nil
}

func (r *REPL) dispatchExamine(arg string) bool {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		r.printError("Invalid usage of examine command:\n w|x|examine <address> <length>")
		return false
	}
	addr, ok := r.parseHexAddr(fields[0], "w|x|examine <address> <length>")
	if !ok {
		return false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n <= 0 {
		r.printError("Invalid length: %s", fields[1])
		return false
	}
	bytes, err := r.dbg.ExamineMemory(addr, n)
	if err != nil {
		r.printError("%v", err)
		return false
	}
	fmt.Fprintln(r.out, bytes)
	return true
}

func (r *REPL) parseHexAddr(arg, usage string) (uint32, bool) {
	hex, ok := strings.CutPrefix(arg, "0x")
	if !ok {
		r.printError("Invalid usage:\n %s\nBut got argument: %s", usage, arg)
		return 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		r.printError("Failed to parse hex literal: %v", err)
		return 0, false
	}
	return uint32(v), true
}

func (r *REPL) printError(format string, args ...any) {
	fmt.Fprintln(r.out, r.errColor.Sprintf("ERROR: "+format, args...))
}

func (r *REPL) printAddrLine(addr uint32, line string) {
	fmt.Fprintf(r.out, "%s%s\n", r.addr.Sprintf("%08X>", addr), line)
}

func (r *REPL) printDisasmLine(addr uint32) {
	line, err := r.dbg.Disassemble(addr)
	if err != nil {
		r.printError("%v", err)
	} else {
		fmt.Fprintf(r.out, "%s%s\n", r.addr.Sprintf("%08X>", addr), line)
	}
	fmt.Fprint(r.out, r.addr.Sprint(":"))
}
