package hwprofile

import "fmt"

// CPUClass groups CPU models that take the same patch set.
type CPUClass string

const (
	CPUUnknown    CPUClass = ""
	CPUAlderLake  CPUClass = "alder_lake"
	CPURaptorLake CPUClass = "raptor_lake"
)

// Hybrid Intel desktop models (family 6) that need topology and CPUID
// masking help.
var (
	alderLakeModels  = map[int]bool{0x97: true, 0x9A: true}
	raptorLakeModels = map[int]bool{0xB7: true, 0xBA: true, 0xBF: true}
)

// Display controllers with a working acceleration path.
var (
	supportedNVIDIAGPUs = map[uint16]string{
		0x13C2: "NVIDIA GeForce GTX 970",
		0x17C8: "NVIDIA GeForce GTX 980 Ti",
		0x1B81: "NVIDIA GeForce GTX 1070",
		0x1B06: "NVIDIA GeForce GTX 1080 Ti",
	}
	supportedIntelGPUs = map[uint16]string{
		0x56A0: "Intel Arc A770",
		0x56A1: "Intel Arc A750",
		0x56A5: "Intel Arc A580",
		0x56A6: "Intel Arc A380",
	}
)

// ClassifyCPU maps CPUID family/model to a patch class. Anything outside
// the hybrid desktop families is CPUUnknown and takes no CPU patches.
func ClassifyCPU(cpu CPU) CPUClass {
	if cpu.Family != 6 {
		return CPUUnknown
	}
	if alderLakeModels[cpu.Model] {
		return CPUAlderLake
	}
	if raptorLakeModels[cpu.Model] {
		return CPURaptorLake
	}
	return CPUUnknown
}

// classifyGPU fills the Supported/SupportReason/Model fields from the
// support tables. Unknown devices stay in the profile so the operator
// sees what was found and why it was skipped.
func classifyGPU(gpu *GPU) {
	switch gpu.VendorID {
	case VendorNVIDIA:
		if name, ok := supportedNVIDIAGPUs[gpu.DeviceID]; ok {
			gpu.Model = name
			gpu.Supported = true
			gpu.SupportReason = "bridged Maxwell/Pascal driver"
			return
		}
		gpu.SupportReason = fmt.Sprintf("NVIDIA device 0x%04X has no bridged driver", gpu.DeviceID)
	case VendorIntel:
		if name, ok := supportedIntelGPUs[gpu.DeviceID]; ok {
			gpu.Model = name
			gpu.Supported = true
			gpu.SupportReason = "Arc bridge driver"
			return
		}
		gpu.SupportReason = fmt.Sprintf("Intel device 0x%04X has no bridge driver", gpu.DeviceID)
	case VendorAMD:
		// Navi and older Polaris work with the stock driver stack.
		gpu.Supported = true
		gpu.SupportReason = "native driver"
	default:
		gpu.SupportReason = fmt.Sprintf("unrecognized display vendor 0x%04X", gpu.VendorID)
	}
	if gpu.Model == "" {
		gpu.Model = fmt.Sprintf("GPU %04X:%04X", gpu.VendorID, gpu.DeviceID)
	}
}
