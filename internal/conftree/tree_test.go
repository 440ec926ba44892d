package conftree

import (
	"bytes"
	"strings"
	"testing"
)

func TestDictPreservesInsertionOrder(t *testing.T) {
	d := NewDict()
	d.Set("zeta", 1)
	d.Set("alpha", 2)
	d.Set("mid", 3)

	got := d.Keys()
	want := []string{"zeta", "alpha", "mid"}
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDictSetReplacesInPlace(t *testing.T) {
	d := NewDict()
	d.Set("first", 1)
	d.Set("second", 2)
	d.Set("first", 10)

	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
	if d.Keys()[0] != "first" {
		t.Errorf("replaced key moved: keys = %v", d.Keys())
	}
	v, _ := d.Get("first")
	if v != 10 {
		t.Errorf("Get(first) = %v, want 10", v)
	}
}

func TestDocumentHasAllSections(t *testing.T) {
	doc := NewDocument()
	for _, name := range SectionNames {
		if doc.Section(name) == nil {
			t.Errorf("Section(%q) = nil", name)
		}
	}
	if doc.Section("Kexts") != nil {
		t.Error("Section(Kexts) should be nil, section set is fixed")
	}
}

func TestSetPathCreatesIntermediateDicts(t *testing.T) {
	doc := NewDocument()
	path := []string{"NVRAM", "Add", "7C436110-AB2A-4BBB-A880-FE41995C9F82", "boot-args"}
	if err := doc.SetPath(path, "-v"); err != nil {
		t.Fatalf("SetPath: %v", err)
	}

	v, ok := doc.GetPath(path)
	if !ok {
		t.Fatal("GetPath did not find value written by SetPath")
	}
	if v != "-v" {
		t.Errorf("GetPath = %v, want -v", v)
	}
}

func TestSetPathKeysMayContainSlashes(t *testing.T) {
	doc := NewDocument()
	pciKey := "PciRoot(0x0)/Pci(0x1,0x0)/Pci(0x0,0x0)"
	path := []string{"DeviceProperties", "Add", pciKey, "device-id"}
	if err := doc.SetPath(path, []byte{0xC2, 0x13, 0x00, 0x00}); err != nil {
		t.Fatalf("SetPath: %v", err)
	}

	add := doc.DeviceProperties.Dict("Add")
	if add == nil {
		t.Fatal("DeviceProperties/Add missing")
	}
	if add.Dict(pciKey) == nil {
		t.Fatalf("device path key split apart: keys = %v", add.Keys())
	}
}

func TestSetPathRejectsUnknownSection(t *testing.T) {
	doc := NewDocument()
	err := doc.SetPath([]string{"Kexts", "Add"}, "x")
	if err == nil {
		t.Fatal("SetPath accepted unknown section")
	}
}

func TestSetPathRejectsScalarInPath(t *testing.T) {
	doc := NewDocument()
	if err := doc.SetPath([]string{"Misc", "Debug"}, "text"); err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	err := doc.SetPath([]string{"Misc", "Debug", "Target"}, 3)
	if err == nil {
		t.Fatal("SetPath walked through a scalar without error")
	}
}

func TestWriteXMLDeterministic(t *testing.T) {
	build := func() *Document {
		doc := NewDocument()
		doc.Misc.Set("Debug", true)
		doc.Kernel.Set("Quirks", NewDict())
		doc.SetPath([]string{"NVRAM", "Add", "guid", "boot-args"}, "-v keepsyms=1")
		return doc
	}

	a, err := build().MarshalXML()
	if err != nil {
		t.Fatalf("MarshalXML: %v", err)
	}
	b, err := build().MarshalXML()
	if err != nil {
		t.Fatalf("MarshalXML: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same build sequence produced different serializations")
	}
}

func TestWriteXMLValueForms(t *testing.T) {
	doc := NewDocument()
	doc.Misc.Set("Flag", true)
	doc.Misc.Set("Off", false)
	doc.Misc.Set("Count", int64(42))
	doc.Misc.Set("Name", "a<b&c")
	doc.Misc.Set("Blob", []byte{0x55, 0x06, 0x0A, 0x00})
	arr := NewArray()
	arr.Append("one")
	doc.Misc.Set("List", arr)

	out, err := doc.MarshalXML()
	if err != nil {
		t.Fatalf("MarshalXML: %v", err)
	}
	s := string(out)

	for _, want := range []string{
		"<true/>",
		"<false/>",
		"<integer>42</integer>",
		"<string>a&lt;b&amp;c</string>",
		"<data>VQYKAA==</data>",
		"<string>one</string>",
		"<key>ACPI</key>",
		"<key>UEFI</key>",
		`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q", want)
		}
	}

	// Empty sections collapse to a self-closing element.
	if !strings.Contains(s, "<dict/>") {
		t.Error("empty section not serialized as <dict/>")
	}
}

func TestWriteXMLSectionOrderFixed(t *testing.T) {
	doc := NewDocument()
	// Populate out of order; serialization order must not change.
	doc.UEFI.Set("x", 1)
	doc.ACPI.Set("y", 2)

	out, err := doc.MarshalXML()
	if err != nil {
		t.Fatalf("MarshalXML: %v", err)
	}
	s := string(out)

	last := -1
	for _, name := range SectionNames {
		idx := strings.Index(s, "<key>"+name+"</key>")
		if idx < 0 {
			t.Fatalf("section %s missing from output", name)
		}
		if idx < last {
			t.Errorf("section %s serialized out of order", name)
		}
		last = idx
	}
}

func TestWriteXMLRejectsUnknownType(t *testing.T) {
	doc := NewDocument()
	doc.Misc.Set("bad", 3.14)
	if _, err := doc.MarshalXML(); err == nil {
		t.Fatal("MarshalXML accepted an unsupported value type")
	}
}
