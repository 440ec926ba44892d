package libmerge

import (
	"os"
	"path/filepath"
	"testing"
)

func mkLibDir(t *testing.T, base, name string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(base, name, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReconcileMergesFromSibling(t *testing.T) {
	base := t.TempDir()
	mkLibDir(t, base, "31001.600", map[string]string{
		"libCompiler.dylib":    "compiler bits",
		"sub/libSupport.dylib": "support bits",
	})

	res, err := Reconcile(base, "31001.669")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeMerged {
		t.Fatalf("Outcome = %q, want merged", res.Outcome)
	}
	if res.Source != filepath.Join(base, "31001.600") {
		t.Errorf("Source = %q", res.Source)
	}

	// Contents copied, donor intact.
	got, err := os.ReadFile(filepath.Join(base, "31001.669/sub/libSupport.dylib"))
	if err != nil {
		t.Fatalf("merged file missing: %v", err)
	}
	if string(got) != "support bits" {
		t.Errorf("merged content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(base, "31001.600/libCompiler.dylib")); err != nil {
		t.Error("donor directory was moved, not copied")
	}
}

func TestReconcilePrefersNewestSibling(t *testing.T) {
	base := t.TempDir()
	mkLibDir(t, base, "31001.550", map[string]string{"lib.dylib": "old"})
	mkLibDir(t, base, "31001.600", map[string]string{"lib.dylib": "new"})

	res, err := Reconcile(base, "31001.669")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Source != filepath.Join(base, "31001.600") {
		t.Errorf("Source = %q, want the newest sibling", res.Source)
	}
	got, _ := os.ReadFile(filepath.Join(base, "31001.669/lib.dylib"))
	if string(got) != "new" {
		t.Errorf("content = %q, want from newest sibling", got)
	}
}

func TestReconcileAlreadySatisfied(t *testing.T) {
	base := t.TempDir()
	mkLibDir(t, base, "31001.669", map[string]string{"lib.dylib": "present"})
	mkLibDir(t, base, "31001.600", map[string]string{"lib.dylib": "donor"})

	res, err := Reconcile(base, "31001.669")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeAlreadySatisfied {
		t.Fatalf("Outcome = %q", res.Outcome)
	}

	// Existing directory must not be overwritten.
	got, _ := os.ReadFile(filepath.Join(base, "31001.669/lib.dylib"))
	if string(got) != "present" {
		t.Errorf("existing directory content replaced: %q", got)
	}
}

func TestReconcileNotFound(t *testing.T) {
	base := t.TempDir()
	mkLibDir(t, base, "30500.400", map[string]string{"lib.dylib": "other train"})

	res, err := Reconcile(base, "31001.669")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("Outcome = %q, want not_found", res.Outcome)
	}
	if _, err := os.Stat(filepath.Join(base, "31001.669")); !os.IsNotExist(err) {
		t.Error("expected directory created despite missing donor")
	}
}

func TestReconcileMissingBaseDir(t *testing.T) {
	// A payload without the library directory at all has nothing to
	// reconcile; that is a skip, not a failure.
	base := filepath.Join(t.TempDir(), "GPUCompiler.framework", "Versions")

	res, err := Reconcile(base, "31001.669")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("Outcome = %q, want not_found", res.Outcome)
	}
}

func TestReconcileIgnoresFiles(t *testing.T) {
	base := t.TempDir()
	// A regular file sharing the prefix is not a donor.
	if err := os.WriteFile(filepath.Join(base, "31001.600"), []byte("a file"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := Reconcile(base, "31001.669")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Errorf("Outcome = %q, a plain file must not donate", res.Outcome)
	}
}

func TestReconcileRejectsPathSeparators(t *testing.T) {
	if _, err := Reconcile(t.TempDir(), "a/b"); err == nil {
		t.Error("Reconcile accepted a name with a path separator")
	}
}

func TestReleasePrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"31001.669", "31001"},
		{"31001.600.1", "31001"},
		{"31001", "31001"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := releasePrefix(tt.in); got != tt.want {
			t.Errorf("releasePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
