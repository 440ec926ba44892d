package hwconfig

import (
	"bytes"
	"errors"
	"sort"
	"testing"

	"github.com/ocforge/ocforge/internal/hwprofile"
)

func TestLookupKnownProfiles(t *testing.T) {
	for _, name := range Names() {
		p, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if p.Name != name {
			t.Errorf("Lookup(%q).Name = %q", name, p.Name)
		}
		if len(p.Kexts) == 0 {
			t.Errorf("%s has no kexts", name)
		}
		if p.SMBIOS == "" {
			t.Errorf("%s has no SMBIOS identifier", name)
		}
	}
}

func TestLookupUnknownProfile(t *testing.T) {
	_, err := Lookup("amd_vega64")
	if err == nil {
		t.Fatal("Lookup accepted an unknown profile")
	}
	var unknown *UnknownProfileError
	if !errors.As(err, &unknown) {
		t.Fatalf("error type = %T, want *UnknownProfileError", err)
	}
	if unknown.Name != "amd_vega64" {
		t.Errorf("error carries name %q", unknown.Name)
	}
}

func TestLookupReturnsIsolatedCopy(t *testing.T) {
	a, _ := Lookup("nvidia_gtx970")
	a.Kexts[0] = "Tampered.kext"
	a.Patches[0].Path[0] = "Tampered"

	b, _ := Lookup("nvidia_gtx970")
	if b.Kexts[0] == "Tampered.kext" {
		t.Error("catalog kext list mutated through a lookup result")
	}
	if b.Patches[0].Path[0] == "Tampered" {
		t.Error("catalog patch path mutated through a lookup result")
	}
}

func TestRegistryPCIIDsAreLittleEndianData(t *testing.T) {
	p, _ := Lookup("nvidia_gtx970")
	var got []byte
	for _, tp := range p.Patches {
		if tp.Path[len(tp.Path)-1] == "device-id" {
			got = tp.Value.([]byte)
		}
	}
	if !bytes.Equal(got, []byte{0xC2, 0x13, 0x00, 0x00}) {
		t.Errorf("device-id bytes = % X, want C2 13 00 00", got)
	}
}

func TestMergeUnionsKextsFirstSeen(t *testing.T) {
	nv, _ := Lookup("nvidia_gtx970")
	adl, _ := Lookup("intel_alderlake")

	m := Merge([]Profile{nv, adl})

	counts := make(map[string]int)
	for _, k := range m.Kexts {
		counts[k]++
	}
	if counts["Lilu.kext"] != 1 {
		t.Errorf("Lilu.kext appears %d times, want 1", counts["Lilu.kext"])
	}
	if m.Kexts[0] != "Lilu.kext" {
		t.Errorf("first kext = %q, first-seen order lost", m.Kexts[0])
	}
	if counts["CpuTopologyRebuild.kext"] != 1 {
		t.Error("second profile's kexts missing from union")
	}
}

func TestMergeBootArgsSetUnion(t *testing.T) {
	nv, _ := Lookup("nvidia_gtx970")
	arc, _ := Lookup("intel_arc770")

	// Both carry -v; the union must keep exactly one.
	m := Merge([]Profile{nv, arc})
	vCount := 0
	for _, a := range m.BootArgs {
		if a == "-v" {
			vCount++
		}
	}
	if vCount != 1 {
		t.Errorf("-v appears %d times, want 1", vCount)
	}

	// Membership is order independent even though ordering is not.
	rev := Merge([]Profile{arc, nv})
	want := append([]string(nil), m.BootArgs...)
	got := append([]string(nil), rev.BootArgs...)
	sort.Strings(want)
	sort.Strings(got)
	if len(want) != len(got) {
		t.Fatalf("merge order changed the token set: %v vs %v", want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("token sets differ: %v vs %v", want, got)
			break
		}
	}
}

func TestMergeSMBIOSFirstWins(t *testing.T) {
	a := Profile{Name: "a", SMBIOS: "iMacPro1,1"}
	b := Profile{Name: "b", SMBIOS: "Mac14,3"}

	if got := Merge([]Profile{a, b}).SMBIOS; got != "iMacPro1,1" {
		t.Errorf("SMBIOS = %q, want first profile's", got)
	}
	if got := Merge([]Profile{b, a}).SMBIOS; got != "Mac14,3" {
		t.Errorf("SMBIOS = %q, want first profile's", got)
	}
	if got := Merge([]Profile{{Name: "none"}, a}).SMBIOS; got != "iMacPro1,1" {
		t.Errorf("SMBIOS = %q, empty entry must not win", got)
	}
}

func TestResolveAbortsOnUnknownName(t *testing.T) {
	_, err := Resolve([]string{"nvidia_gtx970", "bogus"})
	var unknown *UnknownProfileError
	if !errors.As(err, &unknown) {
		t.Fatalf("Resolve error = %v, want UnknownProfileError", err)
	}
}

func TestSelect(t *testing.T) {
	vram := uint64(4 << 30)
	tests := []struct {
		name string
		hw   hwprofile.Profile
		want []string
	}{
		{
			name: "alder lake with gtx 970",
			hw: hwprofile.Profile{
				CPU: hwprofile.CPU{Family: 6, Model: 0x97},
				GPUs: []hwprofile.GPU{
					{VendorID: 0x10DE, DeviceID: 0x13C2, Supported: true, VRAMBytes: &vram},
				},
			},
			want: []string{"intel_alderlake", "nvidia_gtx970"},
		},
		{
			name: "raptor lake with arc",
			hw: hwprofile.Profile{
				CPU:  hwprofile.CPU{Family: 6, Model: 0xB7},
				GPUs: []hwprofile.GPU{{VendorID: 0x8086, DeviceID: 0x56A0, Supported: true}},
			},
			want: []string{"intel_raptorlake", "intel_arc770"},
		},
		{
			name: "unsupported gpu contributes nothing",
			hw: hwprofile.Profile{
				CPU:  hwprofile.CPU{Family: 6, Model: 0xA5},
				GPUs: []hwprofile.GPU{{VendorID: 0x10DE, DeviceID: 0x2204}},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(&tt.hw)
			if len(got) != len(tt.want) {
				t.Fatalf("Select = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Select = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestLookupBoardPatch(t *testing.T) {
	bp, err := LookupBoardPatch("snb-board-id")
	if err != nil {
		t.Fatalf("LookupBoardPatch: %v", err)
	}
	if bp.Executable != "Contents/MacOS/AppleIntelSNBGraphicsFB" {
		t.Errorf("Executable = %q", bp.Executable)
	}
	if len(bp.Find) != 20 {
		t.Errorf("Find length = %d, board IDs are 20 bytes", len(bp.Find))
	}
	if _, err := LookupBoardPatch("nope"); err == nil {
		t.Error("LookupBoardPatch accepted unknown name")
	}
}
