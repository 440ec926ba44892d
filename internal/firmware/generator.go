// Package firmware turns a hardware profile and a set of catalog
// profiles into a boot configuration document. Generation is pure: no
// file reads, no probing, the same inputs always produce the same
// document.
package firmware

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ocforge/ocforge/internal/conftree"
	"github.com/ocforge/ocforge/internal/hwconfig"
	"github.com/ocforge/ocforge/internal/hwprofile"
)

var log = logrus.WithField("service", "firmware")

// Options tune a generation run.
type Options struct {
	// AllowUnsigned downgrades boot security so unsigned patched kexts
	// load: SIP off, secure boot model disabled, vault checks optional.
	// Off by default; the downgrade is recorded in the summary.
	AllowUnsigned bool
}

// Summary reports what generation decided, for logs and the run journal.
type Summary struct {
	SMBIOS             string
	BootArgs           string
	Kexts              []string
	CPUClass           hwprofile.CPUClass
	SecurityDowngraded bool
	SkippedGPUs        []string
	Identity           Identity
}

// generation carries the document and the accumulated boot argument set
// through the stages.
type generation struct {
	doc     *conftree.Document
	hw      *hwprofile.Profile
	merged  hwconfig.Merged
	opts    Options
	summary Summary

	argOrder []string
	argSeen  map[string]bool
}

// Generate builds the configuration document for hw, specialized by the
// merged catalog profiles.
func Generate(hw *hwprofile.Profile, merged hwconfig.Merged, opts Options) (*conftree.Document, *Summary, error) {
	g := &generation{
		doc:     newBaseline(),
		hw:      hw,
		merged:  merged,
		opts:    opts,
		argSeen: make(map[string]bool),
	}

	g.addBootArgs(defaultBootArgs...)

	g.stageCPU()
	g.stageGPUs()
	g.stageSMBIOS()
	g.stageKexts()
	g.stageACPI()
	if err := g.stagePatches(); err != nil {
		return nil, nil, err
	}
	g.stageSecurity()
	g.stageBootArgs()
	g.stageIdentity()

	log.WithFields(logrus.Fields{
		"smbios":    g.summary.SMBIOS,
		"kexts":     len(g.summary.Kexts),
		"boot_args": g.summary.BootArgs,
	}).Debug("configuration generated")
	return g.doc, &g.summary, nil
}

// addBootArgs unions tokens into the argument set, keeping first-seen
// order so repeated generation is stable.
func (g *generation) addBootArgs(tokens ...string) {
	for _, tok := range tokens {
		if tok == "" || g.argSeen[tok] {
			continue
		}
		g.argSeen[tok] = true
		g.argOrder = append(g.argOrder, tok)
	}
}

// stageCPU applies the CPUID spoof and scheduler hints hybrid Intel
// parts need. Unrecognized CPUs leave the baseline untouched.
func (g *generation) stageCPU() {
	class := hwprofile.ClassifyCPU(g.hw.CPU)
	g.summary.CPUClass = class

	data, mask, ok := hwconfig.CPUIDPatch(class)
	if !ok {
		return
	}

	emulate := g.doc.Kernel.Dict("Emulate")
	emulate.Set("Cpuid1Data", data)
	emulate.Set("Cpuid1Mask", mask)
	g.doc.Kernel.Dict("Quirks").Set("ProvideCurrentCpuInfo", true)
	g.addBootArgs("-ctrsmt=0")

	log.WithField("class", string(class)).Debug("applied hybrid CPU patches")
}

// stageGPUs emits one device-properties entry per supported GPU, keyed
// by its firmware device path. Unsupported GPUs are skipped and listed
// in the summary; they never fail generation.
func (g *generation) stageGPUs() {
	add := g.doc.DeviceProperties.Dict("Add")

	for _, gpu := range g.hw.GPUs {
		if !gpu.Supported {
			g.summary.SkippedGPUs = append(g.summary.SkippedGPUs,
				fmt.Sprintf("%s (%s)", gpu.Model, gpu.SupportReason))
			continue
		}

		switch gpu.Vendor() {
		case "nvidia":
			props, _ := add.EnsureDict(devicePathOrDefault(gpu, "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)"))
			props.Set("NVCAP", nvcapBlob())
			props.Set("VRAM,totalsize", int64(vramOrDefault(gpu)))
			props.Set("device_type", "VGA compatible controller")
			props.Set("model", gpu.Model)
			g.addBootArgs("nvda_drv=1", "ngfxcompat=1", "ngfxgl=1", "nvda_drv_vrl=1")

		case "intel":
			props, _ := add.EnsureDict(devicePathOrDefault(gpu, "PciRoot(0x0)/Pci(0x2,0x0)"))
			props.Set("AAPL,ig-platform-id", "0A00601")
			props.Set("device_type", "VGA compatible controller")
			props.Set("framebuffer-fbmem", "00009000")
			props.Set("framebuffer-patch-enable", int64(1))
			props.Set("framebuffer-stolenmem", "00003001")
			props.Set("model", gpu.Model)
			g.addBootArgs("iarccompat=1", "iarcgl=1")

		case "amd":
			// Native driver path, nothing to inject.
		}
	}
}

// stageSMBIOS picks the platform model. An explicit catalog choice wins;
// otherwise precedence runs bridged NVIDIA, then Arc, then AMD, with the
// discrete-workstation default as fallback. The product name is written
// exactly once.
func (g *generation) stageSMBIOS() {
	model := g.merged.SMBIOS
	if model == "" {
		model = smbiosForGPUs(g.hw)
	}
	g.doc.PlatformInfo.Dict("Generic").Set("SystemProductName", model)
	g.summary.SMBIOS = model
}

func smbiosForGPUs(hw *hwprofile.Profile) string {
	hasVendor := func(vendor string) bool {
		for _, gpu := range hw.SupportedGPUs() {
			if gpu.Vendor() == vendor {
				return true
			}
		}
		return false
	}
	switch {
	case hasVendor("nvidia"):
		return "iMacPro1,1"
	case hasVendor("intel"):
		return "Mac14,3"
	case hasVendor("amd"):
		return "iMac20,2"
	}
	return "iMacPro1,1"
}

// stageKexts builds Kernel/Add: the always set, then CPU and GPU bundles,
// then the merged catalog list, then baseline support kexts. Duplicates
// keep their first position.
func (g *generation) stageKexts() {
	var ordered []string
	seen := make(map[string]bool)
	appendKexts := func(bundles []string) {
		for _, b := range bundles {
			if !seen[b] {
				seen[b] = true
				ordered = append(ordered, b)
			}
		}
	}

	appendKexts(alwaysKexts)
	appendKexts(cpuKexts(g.hw))
	appendKexts(gpuKexts(g.hw))
	appendKexts(g.merged.Kexts)
	appendKexts(supportKexts)

	add := conftree.NewArray()
	for _, bundle := range ordered {
		add.Append(kextEntry(bundle))
	}
	g.doc.Kernel.Set("Add", add)
	g.summary.Kexts = ordered
}

// stageACPI adds the SSDTs desktop boards need, plus the hybrid-topology
// table for Alder/Raptor Lake.
func (g *generation) stageACPI() {
	add := g.doc.ACPI.Array("Add")

	tables := []struct{ comment, path string }{
		{"Embedded Controller and USB power", "SSDT-EC-USBX.aml"},
		{"CPU power management", "SSDT-PLUG.aml"},
	}
	if g.summary.CPUClass != hwprofile.CPUUnknown {
		tables = append(tables, struct{ comment, path string }{
			"Alder/Raptor Lake CPU support", "SSDT-ADLR.aml",
		})
	}

	for _, tbl := range tables {
		entry := conftree.NewDict()
		entry.Set("Comment", tbl.comment)
		entry.Set("Enabled", true)
		entry.Set("Path", tbl.path)
		add.Append(entry)
	}
}

// stagePatches applies the merged catalog tree patches. Boot-argument
// values never travel as patches; the catalog token lists feed the
// argument union instead. Patches that weaken SIP are held back unless
// the operator opted into unsigned code.
func (g *generation) stagePatches() error {
	g.addBootArgs(g.merged.BootArgs...)

	for _, patch := range g.merged.Patches {
		if isSIPPatch(patch.Path) && !g.opts.AllowUnsigned {
			log.Warn("catalog profile requests a SIP downgrade; skipped without --allow-unsigned")
			continue
		}
		if err := g.doc.SetPath(patch.Path, patch.Value); err != nil {
			return fmt.Errorf("applying catalog patch: %w", err)
		}
	}
	return nil
}

func isSIPPatch(path []string) bool {
	return len(path) > 0 && path[len(path)-1] == "csr-active-config"
}

// stageSecurity performs the explicit security downgrade. Nothing here
// runs unless the operator opted in.
func (g *generation) stageSecurity() {
	if g.opts.AllowUnsigned {
		security := g.doc.Misc.Dict("Security")
		security.Set("SecureBootModel", "Disabled")
		security.Set("Vault", "Optional")
		g.doc.SetPath([]string{"NVRAM", "Add", BootArgsGUID, "csr-active-config"},
			[]byte{0x03, 0x00, 0x00, 0x00})
	}

	// The downgrade is observable state, not a flag copy: catalog
	// patches can also weaken SIP, and the journal needs to know either
	// way.
	if v, ok := g.doc.GetPath([]string{"NVRAM", "Add", BootArgsGUID, "csr-active-config"}); ok {
		if b, ok := v.([]byte); ok && !bytes.Equal(b, []byte{0, 0, 0, 0}) {
			g.summary.SecurityDowngraded = true
			log.Warn("boot security downgraded: SIP disabled in generated configuration")
		}
	}
}

// stageBootArgs joins the accumulated token set. Verbose boot is always
// kept; everything downstream of a fresh install depends on readable
// panics.
func (g *generation) stageBootArgs() {
	g.addBootArgs("-v")
	joined := strings.Join(g.argOrder, " ")
	g.doc.SetPath([]string{"NVRAM", "Add", BootArgsGUID, "boot-args"}, joined)
	g.summary.BootArgs = joined
}

// stageIdentity fills PlatformInfo/Generic with the derived identity.
func (g *generation) stageIdentity() {
	seed := g.hw.Board.Vendor + ":" + g.hw.Board.Name
	ident := deriveIdentity(seed, g.summary.SMBIOS)

	generic := g.doc.PlatformInfo.Dict("Generic")
	generic.Set("MLB", ident.MLB)
	generic.Set("ROM", ident.ROM)
	generic.Set("SystemSerialNumber", ident.SerialNumber)
	generic.Set("SystemUUID", ident.SystemUUID)
	g.summary.Identity = ident
}

func devicePathOrDefault(gpu hwprofile.GPU, fallback string) string {
	if gpu.PCIPath != "" {
		return gpu.PCIPath
	}
	return fallback
}

func vramOrDefault(gpu hwprofile.GPU) uint64 {
	if gpu.VRAMBytes != nil && *gpu.VRAMBytes > 0 {
		return *gpu.VRAMBytes
	}
	return 4 << 30
}

// nvcapBlob is the display mask NVIDIA cards advertise to the
// framebuffer driver.
func nvcapBlob() []byte {
	return []byte{
		0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
}
