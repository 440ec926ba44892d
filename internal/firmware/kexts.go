package firmware

import (
	"github.com/ocforge/ocforge/internal/conftree"
	"github.com/ocforge/ocforge/internal/hwprofile"
)

// Kexts every generated configuration loads, whatever the hardware. Lilu
// is the patch engine the others plug into, so it stays first.
var alwaysKexts = []string{
	"Lilu.kext",
	"VirtualSMC.kext",
	"WhateverGreen.kext",
}

// Baseline support kexts appended after the hardware-specific set.
var supportKexts = []string{
	"AppleALC.kext",
	"USBInjectAll.kext",
	"NVMeFix.kext",
}

// kextComments annotates known bundles in the emitted document.
var kextComments = map[string]string{
	"Lilu.kext":                    "Patch engine",
	"VirtualSMC.kext":              "SMC emulator",
	"WhateverGreen.kext":           "Graphics patching",
	"AppleALC.kext":                "Audio support",
	"USBInjectAll.kext":            "USB port injection",
	"NVMeFix.kext":                 "NVMe power management",
	"CPUFriend.kext":               "CPU power management",
	"CPUFriendDataProvider.kext":   "CPU power management data",
	"CpuTopologyRebuild.kext":      "Hybrid core topology",
	"NVBridgeCore.kext":            "NVIDIA driver bridge",
	"NVBridgeMetal.kext":           "NVIDIA Metal bridge",
	"NVBridgeCUDA.kext":            "NVIDIA CUDA bridge",
	"ArcBridgeCore.kext":           "Intel Arc driver bridge",
	"ArcBridgeMetal.kext":          "Intel Arc Metal bridge",
	"AppleIntelSNBGraphicsFB.kext": "Sandy Bridge framebuffer",
}

// Bundles that ship no executable, plist personalities only.
var codelessKexts = map[string]bool{
	"CPUFriendDataProvider.kext": true,
}

// cpuKexts returns the bundles a CPU needs beyond the always set.
func cpuKexts(hw *hwprofile.Profile) []string {
	var out []string
	if hw.CPU.Vendor == "GenuineIntel" {
		out = append(out, "CPUFriend.kext", "CPUFriendDataProvider.kext")
	}
	if hwprofile.ClassifyCPU(hw.CPU) != hwprofile.CPUUnknown {
		out = append(out, "CpuTopologyRebuild.kext")
	}
	return out
}

// gpuKexts returns the bundles the supported GPUs need.
func gpuKexts(hw *hwprofile.Profile) []string {
	var out []string
	for _, gpu := range hw.SupportedGPUs() {
		switch gpu.Vendor() {
		case "nvidia":
			out = append(out, "NVBridgeCore.kext", "NVBridgeMetal.kext", "NVBridgeCUDA.kext")
		case "intel":
			out = append(out, "ArcBridgeCore.kext", "ArcBridgeMetal.kext")
		}
	}
	return out
}

// kextEntry builds one Kernel/Add record.
func kextEntry(bundle string) *conftree.Dict {
	execPath := ""
	if !codelessKexts[bundle] {
		execPath = "Contents/MacOS/" + trimKextSuffix(bundle)
	}

	entry := conftree.NewDict()
	entry.Set("BundlePath", bundle)
	entry.Set("Comment", kextComments[bundle])
	entry.Set("Enabled", true)
	entry.Set("ExecutablePath", execPath)
	entry.Set("MaxKernel", "")
	entry.Set("MinKernel", "")
	entry.Set("PlistPath", "Contents/Info.plist")
	return entry
}

func trimKextSuffix(bundle string) string {
	const suffix = ".kext"
	if len(bundle) > len(suffix) && bundle[len(bundle)-len(suffix):] == suffix {
		return bundle[:len(bundle)-len(suffix)]
	}
	return bundle
}
