// Command rv32sim runs or interactively debugs a raw RV32I-subset
// program image.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kclejeune/rv32sim/internal/cpu"
	"github.com/kclejeune/rv32sim/internal/debugger"
	"github.com/kclejeune/rv32sim/internal/diag"
	"github.com/kclejeune/rv32sim/internal/machine"
	"github.com/kclejeune/rv32sim/internal/memory"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var dbgMode bool
	var machineName string
	var profilePath string
	var logFilePath string
	var noColor bool

	root := &cobra.Command{
		Use:           "rv32sim IMAGE",
		Short:         "Run or debug a raw RV32I-subset program image",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
	}
	root.Flags().BoolVar(&dbgMode, "dbg", false, "enter the interactive debugger instead of headless execution")
	root.Flags().StringVarP(&machineName, "machine", "m", "", `machine profile ("s"/"simple"; ignored when --profile is given)`)
	root.Flags().StringVar(&profilePath, "profile", "", "load the machine profile from a YAML file instead of the builtin simple profile")
	root.Flags().StringVar(&logFilePath, "log-file", "", "also write diagnostics to this file")
	root.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI coloring of debugger output")

	v := viper.New()
	v.SetEnvPrefix("RV32SIM")
	v.AutomaticEnv()
	_ = v.BindPFlag("profile", root.Flags().Lookup("profile"))
	_ = v.BindPFlag("log-file", root.Flags().Lookup("log-file"))
	_ = v.BindPFlag("no-color", root.Flags().Lookup("no-color"))

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, positional []string) error {
		profilePath = v.GetString("profile")
		logFilePath = v.GetString("log-file")
		noColor = noColor || v.GetBool("no-color")

		code, err := execute(positional[0], dbgMode, machineName, profilePath, logFilePath, noColor)
		exitCode = code
		return err
	}
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 1
		}
		fmt.Fprintln(os.Stderr, "ERROR:", err)
	}
	return exitCode
}

func execute(imagePath string, dbgMode bool, machineName, profilePath, logFilePath string, noColor bool) (int, error) {
	var logWriter io.Writer
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 1, fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logWriter = f
	}
	log := diag.New(logWriter)

	profile, err := resolveProfile(machineName, profilePath)
	if err != nil {
		return 1, err
	}

	imgFile, err := os.Open(imagePath)
	if err != nil {
		return 1, fmt.Errorf("opening image %s: %w", imagePath, err)
	}
	defer imgFile.Close()

	ram, err := machine.LoadImage(imgFile, profile.RAMSize)
	if err != nil {
		return 1, err
	}

	regionMap := profile.Build(ram, os.Stdout)
	bus := memory.NewBus(regionMap)
	c := cpu.New(bus)
	c.SetReg(2, profile.InitialSP)

	if dbgMode {
		return runDebugger(c, log, noColor)
	}
	return runHeadless(c, profile.RAMSize, log)
}

func resolveProfile(machineName, profilePath string) (machine.Profile, error) {
	if profilePath != "" {
		return machine.LoadProfile(profilePath)
	}
	return machine.Resolve(machineName)
}

// runHeadless steps the CPU until ip reaches the end of RAM (normal
// end-of-image) or the guest exits via the ExitPort.
func runHeadless(c *cpu.CPU, ramSize uint32, log diagLogger) (int, error) {
	for uint32(c.IP) < ramSize {
		if err := c.Step(); err != nil {
			var exit *memory.ExitError
			if errors.As(err, &exit) {
				return int(int8(exit.Code)), nil
			}
			log.Error(err.Error())
			return fatalCode(err), nil
		}
	}
	return 0, nil
}

// runDebugger hands the CPU to an interactive REPL. A guest exit from
// within "continue" bypasses the REPL's Stopped/Running state machine
// entirely: it surfaces as an *memory.ExitError returned out of Run,
// the same error a Step would have returned, and is unwrapped here the
// same way the headless loop unwraps it.
func runDebugger(c *cpu.CPU, log diagLogger, noColor bool) (int, error) {
	dbg := debugger.New(c)
	repl, err := debugger.NewREPL(dbg, os.Stderr, noColor)
	if err != nil {
		return 1, err
	}
	defer repl.Close()

	runErr := repl.Run()
	if runErr == nil {
		return 0, nil
	}
	var exit *memory.ExitError
	if errors.As(runErr, &exit) {
		return int(int8(exit.Code)), nil
	}
	log.Error(runErr.Error())
	return fatalCode(runErr), nil
}

// fatalCode maps any non-exit engine error to the process exit status.
// Exit codes 0/1/guest-status are spoken for; fatal engine aborts use 2
// here so they're distinguishable from a plain argument error at the
// shell.
func fatalCode(error) int { return 2 }

// diagLogger is the subset of *slog.Logger this command needs, kept
// narrow so tests can substitute a stub.
type diagLogger interface {
	Error(msg string, args ...any)
}
