// Package machine builds the region map and initial CPU state for a
// named machine profile, and loads program images into RAM.
package machine

import (
	"fmt"
	"io"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kclejeune/rv32sim/internal/memory"
)

// Simple machine profile layout.
const (
	SimpleRAMSize    = 0x0100_0000 // 16 MiB
	SimpleSerialAddr = 0x0000_6969
	SimpleExitAddr   = 0x0000_6970
	simpleStackGap   = 0x1000
)

// Profile describes a machine's address space layout and initial CPU
// state, independent of any particular program image.
type Profile struct {
	Name    string
	RAMSize uint32
	// InitialSP is the value loaded into x2 at startup.
	InitialSP int32
}

// Build constructs the region map for this profile over ram (which must
// have length RAMSize), wiring serial output to out. Every profile
// currently built or loaded by this package uses the canonical simple
// layout; RAMSize and InitialSP are what varies between them.
func (p Profile) Build(ram []byte, out io.Writer) *memory.Map {
	return buildSimple(ram, out)
}

// buildSimple assembles the four-region layout: RAM up to the serial
// port, the one-byte serial port, the one-byte exit port, then RAM to
// the end of the address space.
func buildSimple(ram []byte, out io.Writer) *memory.Map {
	serial := memory.NewSerialDevice(out)
	regions := []memory.Region{
		memory.NewRAM(0, ram[:SimpleSerialAddr]),
		memory.NewSerialOut(SimpleSerialAddr, serial),
		memory.NewExitPort(SimpleExitAddr),
		memory.NewRAM(SimpleExitAddr+1, ram[SimpleExitAddr+1:]),
	}
	return memory.NewMap(regions)
}

// Simple returns the built-in "s"/"simple" profile: a 16 MiB address
// space with x2 initialized to RAMSize-0x1000.
func Simple() Profile {
	return Profile{
		Name:      "simple",
		RAMSize:   SimpleRAMSize,
		InitialSP: int32(SimpleRAMSize - simpleStackGap),
	}
}

// Resolve looks up a profile by the CLI's -m/--machine name. "s" and
// "simple" select the builtin Simple profile; any other name is a host
// configuration error.
func Resolve(name string) (Profile, error) {
	switch name {
	case "", "s", "simple":
		return Simple(), nil
	default:
		return Profile{}, fmt.Errorf("machine: unknown profile %q (only \"s\"/\"simple\" is built in; use --profile to load one from file)", name)
	}
}

// yamlProfile is the on-disk shape for a --profile FILE document,
// loaded with viper so profile paths can equally come from
// RV32SIM_PROFILE.
type yamlProfile struct {
	Name      string `yaml:"name" mapstructure:"name"`
	RAMSizeKB uint32 `yaml:"ram_size_kb" mapstructure:"ram_size_kb"`
	InitialSP int32  `yaml:"initial_sp" mapstructure:"initial_sp"`
}

// LoadProfile reads a YAML machine profile from path via viper. Only
// RAM size and initial stack pointer are currently externally
// configurable; the region layout itself remains the canonical
// simple-profile shape (serial/exit port placement is part of the
// execution engine's contract, not something a profile file should be
// able to silently relocate).
func LoadProfile(path string) (Profile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Profile{}, fmt.Errorf("machine: reading profile %s: %w", path, err)
	}

	var raw yamlProfile
	if err := v.Unmarshal(&raw); err != nil {
		return Profile{}, fmt.Errorf("machine: parsing profile %s: %w", path, err)
	}
	if raw.RAMSizeKB == 0 {
		return Profile{}, fmt.Errorf("machine: profile %s: ram_size_kb must be nonzero", path)
	}
	ramSize := raw.RAMSizeKB * 1024
	if ramSize <= SimpleExitAddr+1 {
		return Profile{}, fmt.Errorf("machine: profile %s: ram_size_kb too small to hold the simple region layout", path)
	}
	sp := raw.InitialSP
	if sp == 0 {
		sp = int32(ramSize - simpleStackGap)
	}
	name := raw.Name
	if name == "" {
		name = path
	}
	return Profile{Name: name, RAMSize: ramSize, InitialSP: sp}, nil
}

// MarshalYAML renders a profile back into the document shape LoadProfile
// reads, for tooling that wants to generate a starting profile file.
func (p Profile) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(yamlProfile{
		Name:      p.Name,
		RAMSizeKB: p.RAMSize / 1024,
		InitialSP: p.InitialSP,
	})
}
