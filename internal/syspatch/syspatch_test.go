package syspatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ocforge/ocforge/internal/binpatch"
	"github.com/ocforge/ocforge/internal/privs"
)

type fakeRunner struct {
	mu       sync.Mutex
	commands [][]string
	failOn   string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, append([]string{name}, args...))
	if f.failOn == name {
		return nil, errors.New(name + ": exit status 1")
	}
	return nil, nil
}

func (f *fakeRunner) joined() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	for i, cmd := range f.commands {
		out[i] = strings.Join(cmd, " ")
	}
	return out
}

func writeKext(t *testing.T, dir, name string, body []byte) {
	t.Helper()
	executable := strings.TrimSuffix(name, ".kext")
	bundle := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Join(bundle, "Contents", "MacOS"), 0755); err != nil {
		t.Fatal(err)
	}
	plist := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0"><dict>
	<key>CFBundleIdentifier</key><string>test.%s</string>
	<key>CFBundleVersion</key><string>1.0.0</string>
	<key>CFBundleExecutable</key><string>%s</string>
</dict></plist>`, executable, executable)
	if err := os.WriteFile(filepath.Join(bundle, "Contents", "Info.plist"), []byte(plist), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundle, "Contents", "MacOS", executable), body, 0755); err != nil {
		t.Fatal(err)
	}
}

func newTestPatcher(t *testing.T, runner Runner) (*Patcher, string) {
	t.Helper()
	extDir := t.TempDir()
	p, err := New(Config{ExtensionsDir: extDir, Runner: runner}, privs.ForTesting())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, extDir
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{ExtensionsDir: t.TempDir(), Runner: &fakeRunner{}}, nil)
	if err == nil {
		t.Fatal("New accepted a nil privilege token")
	}
	if !strings.Contains(err.Error(), "privileges") {
		t.Errorf("err = %v", err)
	}
}

func TestInstallKextsCopiesPatchesAndOwns(t *testing.T) {
	runner := &fakeRunner{}
	p, extDir := newTestPatcher(t, runner)

	kexts := t.TempDir()
	find := []byte("Mac-94245B3640C91C81")
	body := append([]byte{0xCF, 0xFA, 0xED, 0xFE}, find...)
	writeKext(t, kexts, "AppleIntelSNBGraphicsFB.kext", body)

	err := p.InstallKexts(context.Background(), kexts,
		[]string{"AppleIntelSNBGraphicsFB.kext"},
		[]KextPatch{{
			Kext:       "AppleIntelSNBGraphicsFB.kext",
			Executable: "Contents/MacOS/AppleIntelSNBGraphicsFB",
			Patch:      binpatch.Patch{Name: "board-id", Find: find, Replace: []byte("Mac-TEST")},
		}})
	if err != nil {
		t.Fatalf("InstallKexts: %v", err)
	}

	installed, err := os.ReadFile(filepath.Join(extDir,
		"AppleIntelSNBGraphicsFB.kext", "Contents", "MacOS", "AppleIntelSNBGraphicsFB"))
	if err != nil {
		t.Fatalf("installed executable missing: %v", err)
	}
	if !bytes.Contains(installed, []byte("Mac-TEST")) {
		t.Error("installed copy not patched")
	}
	if bytes.Contains(installed, find) {
		t.Error("installed copy still carries the stock board ID")
	}

	cmds := strings.Join(runner.joined(), "\n")
	wantChown := "chown -R root:wheel " + filepath.Join(extDir, "AppleIntelSNBGraphicsFB.kext")
	if !strings.Contains(cmds, wantChown) {
		t.Errorf("ownership not fixed, commands:\n%s", cmds)
	}
}

func TestInstallKextsRejectsBrokenBundle(t *testing.T) {
	runner := &fakeRunner{}
	p, _ := newTestPatcher(t, runner)

	kexts := t.TempDir()
	if err := os.MkdirAll(filepath.Join(kexts, "Broken.kext", "Contents"), 0755); err != nil {
		t.Fatal(err)
	}

	err := p.InstallKexts(context.Background(), kexts, []string{"Broken.kext"}, nil)
	if err == nil {
		t.Fatal("InstallKexts accepted a bundle without Info.plist")
	}
	if len(runner.commands) != 0 {
		t.Errorf("%d tool commands ran for a rejected bundle", len(runner.commands))
	}
}

func TestApplyBootArgs(t *testing.T) {
	runner := &fakeRunner{}
	p, _ := newTestPatcher(t, runner)

	if err := p.ApplyBootArgs(context.Background(), "-v keepsyms=1"); err != nil {
		t.Fatalf("ApplyBootArgs: %v", err)
	}

	want := "nvram boot-args=-v keepsyms=1"
	if got := runner.joined(); len(got) != 1 || got[0] != want {
		t.Errorf("commands = %v, want [%s]", got, want)
	}
}

func TestRebuildKernelCache(t *testing.T) {
	runner := &fakeRunner{}
	p, extDir := newTestPatcher(t, runner)

	if err := p.RebuildKernelCache(context.Background()); err != nil {
		t.Fatalf("RebuildKernelCache: %v", err)
	}

	got := runner.joined()
	if len(got) != 2 || got[0] != "touch "+extDir || got[1] != "kextcache -i /" {
		t.Errorf("commands = %v", got)
	}
}

func TestRebuildKernelCacheToolFailure(t *testing.T) {
	runner := &fakeRunner{failOn: "kextcache"}
	p, _ := newTestPatcher(t, runner)

	if err := p.RebuildKernelCache(context.Background()); err == nil {
		t.Error("tool failure not surfaced")
	}
}
