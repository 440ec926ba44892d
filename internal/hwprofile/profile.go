package hwprofile

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "hwprofile")

// Vendor IDs seen on PCI display controllers.
const (
	VendorNVIDIA = 0x10DE
	VendorIntel  = 0x8086
	VendorAMD    = 0x1002
)

// MinimumRAMBytes is the smallest memory size the target OS installs on.
const MinimumRAMBytes = 8 << 30

// Profile describes the machine a configuration is generated for. A
// profile is built once, by probing the running host or by loading a
// profile file, and is never mutated afterwards.
type Profile struct {
	CPU      CPU    `yaml:"cpu" json:"cpu"`
	GPUs     []GPU  `yaml:"gpus" json:"gpus"`
	RAMBytes uint64 `yaml:"ram_bytes" json:"ram_bytes"`
	Board    Board  `yaml:"board" json:"board"`

	// Source records where the profile came from: "probe" or "file".
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// CPU identification from CPUID leaves as exposed by the kernel.
type CPU struct {
	Vendor   string `yaml:"vendor" json:"vendor"`
	Brand    string `yaml:"brand" json:"brand"`
	Family   int    `yaml:"family" json:"family"`
	Model    int    `yaml:"model" json:"model"`
	Stepping int    `yaml:"stepping" json:"stepping"`
	Cores    int    `yaml:"cores" json:"cores"`
	Threads  int    `yaml:"threads" json:"threads"`
}

// GPU is one PCI display controller.
type GPU struct {
	VendorID uint16 `yaml:"vendor_id" json:"vendor_id"`
	DeviceID uint16 `yaml:"device_id" json:"device_id"`
	Model    string `yaml:"model" json:"model"`

	// PCIPath is the firmware device path, e.g.
	// PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0).
	PCIPath string `yaml:"pci_path" json:"pci_path"`

	// VRAMBytes is nil when sysfs does not expose the framebuffer size.
	VRAMBytes *uint64 `yaml:"vram_bytes,omitempty" json:"vram_bytes,omitempty"`

	BootVGA bool `yaml:"boot_vga,omitempty" json:"boot_vga,omitempty"`

	// Supported and SupportReason are derived, never probed. Unsupported
	// hardware is reported, not rejected.
	Supported     bool   `yaml:"supported" json:"supported"`
	SupportReason string `yaml:"support_reason,omitempty" json:"support_reason,omitempty"`
}

// Board is the DMI baseboard identity.
type Board struct {
	Vendor string `yaml:"vendor,omitempty" json:"vendor,omitempty"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
}

// Vendor returns a short vendor tag for the GPU: nvidia, intel, amd, or
// the hex vendor ID for anything else.
func (g *GPU) Vendor() string {
	switch g.VendorID {
	case VendorNVIDIA:
		return "nvidia"
	case VendorIntel:
		return "intel"
	case VendorAMD:
		return "amd"
	}
	return fmt.Sprintf("0x%04X", g.VendorID)
}

// Warnings reports requirements the host misses. The pipeline keeps
// going; the caller decides whether to surface them as hard stops.
func (p *Profile) Warnings() []string {
	var warns []string
	if p.RAMBytes > 0 && p.RAMBytes < MinimumRAMBytes {
		warns = append(warns, fmt.Sprintf("%.1f GiB RAM detected, target OS needs at least 8 GiB",
			float64(p.RAMBytes)/(1<<30)))
	}
	if len(p.GPUs) == 0 {
		warns = append(warns, "no display controller detected")
	}
	for _, gpu := range p.GPUs {
		if !gpu.Supported {
			warns = append(warns, fmt.Sprintf("%s: %s", gpu.Model, gpu.SupportReason))
		}
	}
	return warns
}

// SupportedGPUs returns the GPUs that passed the support gate.
func (p *Profile) SupportedGPUs() []GPU {
	var out []GPU
	for _, gpu := range p.GPUs {
		if gpu.Supported {
			out = append(out, gpu)
		}
	}
	return out
}
