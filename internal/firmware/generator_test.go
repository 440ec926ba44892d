package firmware

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ocforge/ocforge/internal/conftree"
	"github.com/ocforge/ocforge/internal/hwconfig"
	"github.com/ocforge/ocforge/internal/hwprofile"
)

func gtx970Host() *hwprofile.Profile {
	vram := uint64(4 << 30)
	return &hwprofile.Profile{
		CPU:      hwprofile.CPU{Vendor: "GenuineIntel", Brand: "12th Gen Intel(R) Core(TM) i9-12900K", Family: 6, Model: 0x97, Cores: 16, Threads: 24},
		RAMBytes: 32 << 30,
		Board:    hwprofile.Board{Vendor: "ASUSTeK COMPUTER INC.", Name: "PRIME Z690-P"},
		GPUs: []hwprofile.GPU{{
			VendorID:  0x10DE,
			DeviceID:  0x13C2,
			Model:     "NVIDIA GeForce GTX 970",
			PCIPath:   "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)",
			VRAMBytes: &vram,
			Supported: true,
		}},
	}
}

func mustGenerate(t *testing.T, hw *hwprofile.Profile, merged hwconfig.Merged, opts Options) (*conftree.Document, *Summary) {
	t.Helper()
	doc, sum, err := Generate(hw, merged, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return doc, sum
}

func bootArgs(t *testing.T, doc *conftree.Document) string {
	t.Helper()
	v, ok := doc.GetPath([]string{"NVRAM", "Add", BootArgsGUID, "boot-args"})
	if !ok {
		t.Fatal("boot-args missing")
	}
	return v.(string)
}

func TestGenerateDeterministic(t *testing.T) {
	build := func() []byte {
		doc, _ := mustGenerate(t, gtx970Host(), hwconfig.Merged{}, Options{})
		out, err := doc.MarshalXML()
		if err != nil {
			t.Fatalf("MarshalXML: %v", err)
		}
		return out
	}
	if !bytes.Equal(build(), build()) {
		t.Error("two generation runs over the same profile differ")
	}
}

func TestGenerateGTX970Scenario(t *testing.T) {
	doc, sum := mustGenerate(t, gtx970Host(), hwconfig.Merged{}, Options{})

	props := doc.DeviceProperties.Dict("Add").Dict("PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)")
	if props == nil {
		t.Fatal("no device properties entry for the GPU path")
	}
	nvcap, _ := props.Get("NVCAP")
	if blob, ok := nvcap.([]byte); !ok || len(blob) != 22 {
		t.Errorf("NVCAP = %v, want 22-byte blob", nvcap)
	}
	if props.GetString("model") != "NVIDIA GeForce GTX 970" {
		t.Errorf("model = %q", props.GetString("model"))
	}
	if v, _ := props.Get("VRAM,totalsize"); v != int64(4<<30) {
		t.Errorf("VRAM,totalsize = %v", v)
	}

	args := bootArgs(t, doc)
	for _, tok := range []string{"nvda_drv=1", "ngfxcompat=1", "ngfxgl=1", "nvda_drv_vrl=1", "-ctrsmt=0"} {
		if !strings.Contains(args, tok) {
			t.Errorf("boot-args missing %q: %s", tok, args)
		}
	}

	if sum.SMBIOS != "iMacPro1,1" {
		t.Errorf("SMBIOS = %q, want iMacPro1,1", sum.SMBIOS)
	}

	wantKexts := map[string]bool{
		"Lilu.kext": false, "VirtualSMC.kext": false, "WhateverGreen.kext": false,
		"NVBridgeCore.kext": false, "NVBridgeMetal.kext": false, "NVBridgeCUDA.kext": false,
		"CpuTopologyRebuild.kext": false, "CPUFriend.kext": false,
	}
	for _, k := range sum.Kexts {
		if _, tracked := wantKexts[k]; tracked {
			wantKexts[k] = true
		}
	}
	for k, found := range wantKexts {
		if !found {
			t.Errorf("kext list missing %s", k)
		}
	}
}

func TestGenerateCPUStage(t *testing.T) {
	tests := []struct {
		name     string
		model    int
		wantData byte
		patched  bool
	}{
		{"alder lake", 0x97, 0x55, true},
		{"raptor lake", 0xB7, 0xB5, true},
		{"comet lake untouched", 0xA5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hw := &hwprofile.Profile{CPU: hwprofile.CPU{Vendor: "GenuineIntel", Family: 6, Model: tt.model}}
			doc, _ := mustGenerate(t, hw, hwconfig.Merged{}, Options{})

			emulate := doc.Kernel.Dict("Emulate")
			data, _ := emulate.Get("Cpuid1Data")
			blob := data.([]byte)
			args := bootArgs(t, doc)
			provide, _ := doc.Kernel.Dict("Quirks").Get("ProvideCurrentCpuInfo")

			if tt.patched {
				if len(blob) != 16 || blob[0] != tt.wantData {
					t.Errorf("Cpuid1Data = % X", blob)
				}
				if !strings.Contains(args, "-ctrsmt=0") {
					t.Error("boot-args missing -ctrsmt=0")
				}
				if provide != true {
					t.Error("ProvideCurrentCpuInfo not enabled")
				}
			} else {
				if len(blob) != 0 {
					t.Errorf("Cpuid1Data set for unpatched CPU: % X", blob)
				}
				if strings.Contains(args, "-ctrsmt=0") {
					t.Error("boot-args has -ctrsmt=0 for unpatched CPU")
				}
				if provide != false {
					t.Error("ProvideCurrentCpuInfo enabled for unpatched CPU")
				}
			}
		})
	}
}

func TestGenerateSMBIOSPrecedence(t *testing.T) {
	gpu := func(vendor uint16) hwprofile.GPU {
		return hwprofile.GPU{VendorID: vendor, Supported: true}
	}
	tests := []struct {
		name   string
		gpus   []hwprofile.GPU
		merged hwconfig.Merged
		want   string
	}{
		{"nvidia wins over arc", []hwprofile.GPU{gpu(0x8086), gpu(0x10DE)}, hwconfig.Merged{}, "iMacPro1,1"},
		{"arc only", []hwprofile.GPU{gpu(0x8086)}, hwconfig.Merged{}, "Mac14,3"},
		{"amd only", []hwprofile.GPU{gpu(0x1002)}, hwconfig.Merged{}, "iMac20,2"},
		{"no gpu falls back", nil, hwconfig.Merged{}, "iMacPro1,1"},
		{"catalog choice wins", []hwprofile.GPU{gpu(0x10DE)}, hwconfig.Merged{SMBIOS: "MacPro7,1"}, "MacPro7,1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hw := &hwprofile.Profile{GPUs: tt.gpus}
			doc, sum := mustGenerate(t, hw, tt.merged, Options{})
			if sum.SMBIOS != tt.want {
				t.Errorf("SMBIOS = %q, want %q", sum.SMBIOS, tt.want)
			}
			got := doc.PlatformInfo.Dict("Generic").GetString("SystemProductName")
			if got != tt.want {
				t.Errorf("SystemProductName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateBootArgsSingleVerboseToken(t *testing.T) {
	merged := hwconfig.Merged{BootArgs: []string{"-v", "iarccompat=1", "-v"}}
	doc, _ := mustGenerate(t, &hwprofile.Profile{}, merged, Options{})

	args := strings.Fields(bootArgs(t, doc))
	count := 0
	for _, tok := range args {
		if tok == "-v" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("-v appears %d times in %v", count, args)
	}
	// First-seen order: defaults lead.
	if args[0] != "-v" || args[1] != "keepsyms=1" {
		t.Errorf("default tokens not first: %v", args)
	}
}

func TestGenerateSecurityDefaultsStaySecure(t *testing.T) {
	doc, sum := mustGenerate(t, gtx970Host(), hwconfig.Merged{}, Options{})

	if sum.SecurityDowngraded {
		t.Error("summary reports downgrade without opt-in")
	}
	csr, _ := doc.GetPath([]string{"NVRAM", "Add", BootArgsGUID, "csr-active-config"})
	if !bytes.Equal(csr.([]byte), []byte{0, 0, 0, 0}) {
		t.Errorf("csr-active-config = % X, want zeros", csr)
	}
	sec := doc.Misc.Dict("Security")
	if sec.GetString("SecureBootModel") != "Default" {
		t.Errorf("SecureBootModel = %q", sec.GetString("SecureBootModel"))
	}
}

func TestGenerateSecurityOptIn(t *testing.T) {
	doc, sum := mustGenerate(t, gtx970Host(), hwconfig.Merged{}, Options{AllowUnsigned: true})

	if !sum.SecurityDowngraded {
		t.Error("downgrade not reported")
	}
	csr, _ := doc.GetPath([]string{"NVRAM", "Add", BootArgsGUID, "csr-active-config"})
	if !bytes.Equal(csr.([]byte), []byte{0x03, 0, 0, 0}) {
		t.Errorf("csr-active-config = % X", csr)
	}
	sec := doc.Misc.Dict("Security")
	if sec.GetString("SecureBootModel") != "Disabled" || sec.GetString("Vault") != "Optional" {
		t.Errorf("security = %q/%q", sec.GetString("SecureBootModel"), sec.GetString("Vault"))
	}
}

func TestGenerateCatalogSIPPatchNeedsOptIn(t *testing.T) {
	merged, err := hwconfig.Resolve([]string{"nvidia_gtx970"})
	if err != nil {
		t.Fatal(err)
	}

	doc, sum := mustGenerate(t, gtx970Host(), merged, Options{})
	csr, _ := doc.GetPath([]string{"NVRAM", "Add", BootArgsGUID, "csr-active-config"})
	if !bytes.Equal(csr.([]byte), []byte{0, 0, 0, 0}) {
		t.Errorf("catalog patch weakened SIP without opt-in: % X", csr)
	}
	if sum.SecurityDowngraded {
		t.Error("downgrade reported without opt-in")
	}

	doc, sum = mustGenerate(t, gtx970Host(), merged, Options{AllowUnsigned: true})
	csr, _ = doc.GetPath([]string{"NVRAM", "Add", BootArgsGUID, "csr-active-config"})
	if !bytes.Equal(csr.([]byte), []byte{0x03, 0, 0, 0}) {
		t.Errorf("catalog SIP patch not applied with opt-in: % X", csr)
	}
	if !sum.SecurityDowngraded {
		t.Error("downgrade not reported with opt-in")
	}
}

func TestGenerateKextEntries(t *testing.T) {
	hw := &hwprofile.Profile{CPU: hwprofile.CPU{Vendor: "GenuineIntel", Family: 6, Model: 0x97}}
	merged := hwconfig.Merged{Kexts: []string{"Lilu.kext", "CpuTopologyRebuild.kext"}}
	doc, sum := mustGenerate(t, hw, merged, Options{})

	if sum.Kexts[0] != "Lilu.kext" {
		t.Errorf("first kext = %q, want Lilu.kext", sum.Kexts[0])
	}

	add := doc.Kernel.Array("Add")
	if add.Len() != len(sum.Kexts) {
		t.Fatalf("Kernel/Add entries = %d, summary kexts = %d", add.Len(), len(sum.Kexts))
	}

	seen := make(map[string]int)
	for _, item := range add.Items() {
		entry := item.(*conftree.Dict)
		bundle := entry.GetString("BundlePath")
		seen[bundle]++

		if entry.GetString("PlistPath") != "Contents/Info.plist" {
			t.Errorf("%s PlistPath = %q", bundle, entry.GetString("PlistPath"))
		}
		wantExec := "Contents/MacOS/" + strings.TrimSuffix(bundle, ".kext")
		if bundle == "CPUFriendDataProvider.kext" {
			wantExec = ""
		}
		if entry.GetString("ExecutablePath") != wantExec {
			t.Errorf("%s ExecutablePath = %q, want %q", bundle, entry.GetString("ExecutablePath"), wantExec)
		}
	}
	for bundle, n := range seen {
		if n != 1 {
			t.Errorf("%s appears %d times in Kernel/Add", bundle, n)
		}
	}
}

func TestGenerateACPITables(t *testing.T) {
	plain := &hwprofile.Profile{CPU: hwprofile.CPU{Family: 6, Model: 0xA5}}
	doc, _ := mustGenerate(t, plain, hwconfig.Merged{}, Options{})
	if got := doc.ACPI.Array("Add").Len(); got != 2 {
		t.Errorf("plain desktop ACPI tables = %d, want 2", got)
	}

	hybrid := &hwprofile.Profile{CPU: hwprofile.CPU{Family: 6, Model: 0x97}}
	doc, _ = mustGenerate(t, hybrid, hwconfig.Merged{}, Options{})
	add := doc.ACPI.Array("Add")
	if add.Len() != 3 {
		t.Fatalf("hybrid ACPI tables = %d, want 3", add.Len())
	}
	last := add.Items()[2].(*conftree.Dict)
	if last.GetString("Path") != "SSDT-ADLR.aml" {
		t.Errorf("hybrid table = %q", last.GetString("Path"))
	}
}

func TestGenerateSkipsUnsupportedGPUs(t *testing.T) {
	hw := &hwprofile.Profile{
		GPUs: []hwprofile.GPU{{
			VendorID: 0x10DE, DeviceID: 0x2204,
			Model: "GPU 10DE:2204", SupportReason: "no bridged driver",
			PCIPath: "PciRoot(0x0)/Pci(0x1,0x0)",
		}},
	}
	doc, sum := mustGenerate(t, hw, hwconfig.Merged{}, Options{})

	if doc.DeviceProperties.Dict("Add").Len() != 0 {
		t.Error("device properties emitted for unsupported GPU")
	}
	if len(sum.SkippedGPUs) != 1 {
		t.Errorf("SkippedGPUs = %v", sum.SkippedGPUs)
	}
}

func TestDeriveIdentityDeterministic(t *testing.T) {
	a := deriveIdentity("ASUS:PRIME Z690-P", "iMacPro1,1")
	b := deriveIdentity("ASUS:PRIME Z690-P", "iMacPro1,1")
	c := deriveIdentity("ASUS:PRIME Z690-P", "Mac14,3")

	if a.SerialNumber != b.SerialNumber || a.SystemUUID != b.SystemUUID {
		t.Error("identity derivation is not deterministic")
	}
	if a.SerialNumber == c.SerialNumber {
		t.Error("different models derived the same serial")
	}
	if len(a.SerialNumber) != 12 || !strings.HasPrefix(a.SerialNumber, "C02") {
		t.Errorf("SerialNumber = %q", a.SerialNumber)
	}
	if len(a.MLB) != 17 {
		t.Errorf("MLB = %q, want 17 characters", a.MLB)
	}
	if len(a.ROM) != 6 {
		t.Errorf("ROM = % X, want 6 bytes", a.ROM)
	}
	if a.SystemUUID != strings.ToUpper(a.SystemUUID) {
		t.Errorf("SystemUUID not uppercase: %s", a.SystemUUID)
	}
}
