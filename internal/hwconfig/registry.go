// Package hwconfig holds the static catalog of per-hardware configuration
// profiles: which kexts a device class needs, the boot arguments that make
// its drivers attach, and the configuration tree patches that describe the
// device to the booted OS. The catalog is data, not code; the generator
// owns the mechanism that applies it.
package hwconfig

import (
	"encoding/hex"
	"fmt"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/ocforge/ocforge/internal/hwprofile"
)

// Profile is one entry of the hardware configuration catalog.
type Profile struct {
	Name     string
	Title    string
	Kexts    []string
	BootArgs []string
	SMBIOS   string
	Patches  []TreePatch
}

// TreePatch addresses one value in the configuration document. Path
// segments are literal dictionary keys; the first segment is a top-level
// section name.
type TreePatch struct {
	Path  []string
	Value any
}

// UnknownProfileError reports a profile name the catalog does not carry.
// Generation aborts on it; a typo here means the operator asked for
// hardware support that does not exist.
type UnknownProfileError struct {
	Name string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown hardware profile %q", e.Name)
}

const bootArgsGUID = "7C436110-AB2A-4BBB-A880-FE41995C9F82"

var registry = map[string]Profile{
	"nvidia_gtx970": {
		Name:     "nvidia_gtx970",
		Title:    "NVIDIA GTX 970",
		Kexts:    []string{"Lilu.kext", "WhateverGreen.kext", "NVBridgeCore.kext", "NVBridgeMetal.kext", "NVBridgeCUDA.kext"},
		BootArgs: []string{"ngfxcompat=1", "ngfxgl=1", "nvda_drv_vrl=1", "-v"},
		SMBIOS:   "MacPro7,1",
		Patches: []TreePatch{
			{Path: []string{"NVRAM", "Add", bootArgsGUID, "csr-active-config"}, Value: mustHex("03000000")},
			{Path: []string{"DeviceProperties", "Add", "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)", "device-id"}, Value: pciID(0x13C2)},
			{Path: []string{"DeviceProperties", "Add", "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)", "vendor-id"}, Value: pciID(0x10DE)},
			{Path: []string{"DeviceProperties", "Add", "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)", "AAPL,slot-name"}, Value: "Slot-1"},
			{Path: []string{"DeviceProperties", "Add", "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)", "model"}, Value: "NVIDIA GeForce GTX 970"},
		},
	},
	"intel_arc770": {
		Name:     "intel_arc770",
		Title:    "Intel Arc A770",
		Kexts:    []string{"Lilu.kext", "WhateverGreen.kext", "ArcBridgeCore.kext", "ArcBridgeMetal.kext"},
		BootArgs: []string{"iarccompat=1", "iarcgl=1", "-v"},
		SMBIOS:   "MacPro7,1",
		Patches: []TreePatch{
			{Path: []string{"NVRAM", "Add", bootArgsGUID, "csr-active-config"}, Value: mustHex("03000000")},
			{Path: []string{"DeviceProperties", "Add", "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)", "device-id"}, Value: pciID(0x56A0)},
			{Path: []string{"DeviceProperties", "Add", "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)", "vendor-id"}, Value: pciID(0x8086)},
			{Path: []string{"DeviceProperties", "Add", "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)", "AAPL,slot-name"}, Value: "Slot-1"},
			{Path: []string{"DeviceProperties", "Add", "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)", "model"}, Value: "Intel Arc A770"},
		},
	},
	"intel_alderlake": {
		Name:     "intel_alderlake",
		Title:    "Intel Alder Lake",
		Kexts:    []string{"Lilu.kext", "CpuTopologyRebuild.kext", "CPUFriend.kext"},
		BootArgs: []string{"ipc_control_port_options=0", "-v"},
		SMBIOS:   "MacPro7,1",
		Patches: []TreePatch{
			{Path: []string{"Kernel", "Emulate", "Cpuid1Data"}, Value: mustHex("55060A00000000000000000000000000")},
			{Path: []string{"Kernel", "Emulate", "Cpuid1Mask"}, Value: mustHex("FFFFFFFF000000000000000000000000")},
		},
	},
	"intel_raptorlake": {
		Name:     "intel_raptorlake",
		Title:    "Intel Raptor Lake",
		Kexts:    []string{"Lilu.kext", "CpuTopologyRebuild.kext", "CPUFriend.kext"},
		BootArgs: []string{"ipc_control_port_options=0", "-v"},
		SMBIOS:   "MacPro7,1",
		Patches: []TreePatch{
			{Path: []string{"Kernel", "Emulate", "Cpuid1Data"}, Value: mustHex("B5060A00000000000000000000000000")},
			{Path: []string{"Kernel", "Emulate", "Cpuid1Mask"}, Value: mustHex("FFFFFFFF000000000000000000000000")},
		},
	},
}

// Lookup returns the named profile. The returned value owns its slices,
// so callers cannot mutate catalog state.
func Lookup(name string) (Profile, error) {
	p, ok := registry[name]
	if !ok {
		return Profile{}, &UnknownProfileError{Name: name}
	}
	return p.clone(), nil
}

// Names returns all catalog keys, sorted.
func Names() []string {
	names := maps.Keys(registry)
	sort.Strings(names)
	return names
}

// Select maps a probed hardware profile to the catalog entries that apply
// to it. Device classes share an entry: any bridged NVIDIA card takes the
// GTX 970 profile, any Arc board the A770 profile.
func Select(hw *hwprofile.Profile) []string {
	var names []string
	add := func(name string) {
		for _, n := range names {
			if n == name {
				return
			}
		}
		names = append(names, name)
	}

	switch hwprofile.ClassifyCPU(hw.CPU) {
	case hwprofile.CPUAlderLake:
		add("intel_alderlake")
	case hwprofile.CPURaptorLake:
		add("intel_raptorlake")
	}

	for _, gpu := range hw.SupportedGPUs() {
		switch gpu.Vendor() {
		case "nvidia":
			add("nvidia_gtx970")
		case "intel":
			add("intel_arc770")
		}
	}
	return names
}

func (p Profile) clone() Profile {
	out := p
	out.Kexts = append([]string(nil), p.Kexts...)
	out.BootArgs = append([]string(nil), p.BootArgs...)
	out.Patches = make([]TreePatch, len(p.Patches))
	for i, tp := range p.Patches {
		out.Patches[i] = TreePatch{Path: append([]string(nil), tp.Path...), Value: tp.Value}
	}
	return out
}

// mustHex decodes a static hex literal. Catalog data only; a bad literal
// is a programming error.
func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("hwconfig: bad hex literal %q: %v", s, err))
	}
	return b
}

// pciID renders a PCI vendor or device ID as the 4-byte little-endian
// data blob device properties expect.
func pciID(id uint16) []byte {
	return []byte{byte(id), byte(id >> 8), 0x00, 0x00}
}
