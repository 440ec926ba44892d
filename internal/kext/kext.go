// Package kext reads kernel extension bundles. A kext is a directory
// with a fixed internal layout: Contents/Info.plist for metadata and
// Contents/MacOS/<executable> for the code, when there is code at all.
package kext

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

// Info is the slice of bundle metadata the pipeline cares about.
type Info struct {
	BundleIdentifier string `plist:"CFBundleIdentifier"`
	Version          string `plist:"CFBundleVersion"`
	Executable       string `plist:"CFBundleExecutable"`
}

// Bundle is a kext on disk.
type Bundle struct {
	Path string
	Info Info
}

// Load reads the bundle rooted at dir. The name must carry the .kext
// suffix and Contents/Info.plist must parse; everything else is left to
// the consumers.
func Load(dir string) (*Bundle, error) {
	if !strings.HasSuffix(dir, ".kext") {
		return nil, fmt.Errorf("%s does not name a kext bundle", dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a bundle directory", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, "Contents", "Info.plist"))
	if err != nil {
		return nil, fmt.Errorf("reading %s Info.plist: %w", filepath.Base(dir), err)
	}

	b := &Bundle{Path: dir}
	if _, err := plist.Unmarshal(data, &b.Info); err != nil {
		return nil, fmt.Errorf("parsing %s Info.plist: %w", filepath.Base(dir), err)
	}
	return b, nil
}

// Name returns the bundle file name, e.g. Lilu.kext.
func (b *Bundle) Name() string {
	return filepath.Base(b.Path)
}

// ExecutableName returns the Mach-O name inside Contents/MacOS. When the
// plist omits CFBundleExecutable the convention is the bundle name
// without its suffix.
func (b *Bundle) ExecutableName() string {
	if b.Info.Executable != "" {
		return b.Info.Executable
	}
	return strings.TrimSuffix(b.Name(), ".kext")
}

// ExecutablePath returns the absolute path of the bundle executable.
func (b *Bundle) ExecutablePath() string {
	return filepath.Join(b.Path, "Contents", "MacOS", b.ExecutableName())
}

// HasExecutable reports whether the executable actually exists. Codeless
// kexts (pure Info.plist personalities) are valid and skip binary
// patching.
func (b *Bundle) HasExecutable() bool {
	info, err := os.Stat(b.ExecutablePath())
	return err == nil && info.Mode().IsRegular()
}

// RelativeExecutablePath is the path of the executable inside the
// bundle, the form boot loader configs record.
func (b *Bundle) RelativeExecutablePath() string {
	return "Contents/MacOS/" + b.ExecutableName()
}
