package hwconfig

import "github.com/ocforge/ocforge/internal/hwprofile"

// cpuidPatch is the CPUID leaf-1 spoof a hybrid CPU class presents to
// the kernel. The mask exposes only the low dword, leaving feature bits
// untouched.
type cpuidPatch struct {
	data []byte
	mask []byte
}

var cpuidPatches = map[hwprofile.CPUClass]cpuidPatch{
	hwprofile.CPUAlderLake: {
		data: mustHex("55060A00000000000000000000000000"),
		mask: mustHex("FFFFFFFF000000000000000000000000"),
	},
	hwprofile.CPURaptorLake: {
		data: mustHex("B5060A00000000000000000000000000"),
		mask: mustHex("FFFFFFFF000000000000000000000000"),
	},
}

// CPUIDPatch returns the CPUID data/mask pair for a CPU class. ok is
// false for classes that boot unpatched.
func CPUIDPatch(class hwprofile.CPUClass) (data, mask []byte, ok bool) {
	p, found := cpuidPatches[class]
	if !found {
		return nil, nil, false
	}
	return append([]byte(nil), p.data...), append([]byte(nil), p.mask...), true
}
