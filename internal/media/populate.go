package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ocforge/ocforge/internal/binpatch"
	"github.com/ocforge/ocforge/internal/conftree"
	"github.com/ocforge/ocforge/internal/fsutil"
	"github.com/ocforge/ocforge/internal/kext"
	"github.com/ocforge/ocforge/internal/libmerge"
	"github.com/ocforge/ocforge/internal/payload"
)

// ocDirs are the directories a populated loader tree carries.
var ocDirs = []string{
	filepath.Join("EFI", "BOOT"),
	filepath.Join("EFI", "OC", "ACPI"),
	filepath.Join("EFI", "OC", "Drivers"),
	filepath.Join("EFI", "OC", "Kexts"),
	filepath.Join("EFI", "OC", "Resources"),
	filepath.Join("EFI", "OC", "Tools"),
}

// KextPatch is a binary substitution applied to one staged bundle.
type KextPatch struct {
	Kext       string
	Executable string
	Patch      binpatch.Patch
}

// LibraryMerge asks for a versioned library directory to be reconciled
// inside the staged payload.
type LibraryMerge struct {
	// Dir is resolved relative to the data partition root.
	Dir      string
	Expected string
}

// PopulateInput carries everything Populate writes onto the media.
type PopulateInput struct {
	// Document is serialized to EFI/OC/config.plist.
	Document *conftree.Document

	// EFITemplate is a prepared loader tree (EFI/BOOT, EFI/OC with
	// drivers and tools) copied onto the EFI partition first.
	EFITemplate string

	// KextsDir holds the source bundles named in Kexts.
	KextsDir string
	Kexts    []string

	// Patches are applied to the staged bundles, never to the sources.
	Patches []KextPatch

	// Payload is staged onto the data partition, then Libraries are
	// reconciled inside it.
	Payload   *payload.Source
	Libraries []LibraryMerge
}

// stageWorkers bounds concurrent kext staging. Bundles are small; more
// workers than this just thrash the USB bridge.
func stageWorkers() int {
	n := runtime.NumCPU()
	if n > 4 {
		return 4
	}
	return n
}

// Populate writes the loader tree, configuration, kexts, and payload
// onto the mounted partitions.
func (a *Assembler) Populate(ctx context.Context, in PopulateInput) error {
	if a.state != StateMounted {
		return &StateError{Op: "populate", State: a.state}
	}
	// Nothing has been written yet, so a missing document is the
	// caller's error, not a failed medium.
	if in.Document == nil {
		return fmt.Errorf("no configuration document")
	}

	if err := a.writeLoaderTree(in); err != nil {
		return a.fail("populating", err)
	}
	if err := a.stageKexts(ctx, in); err != nil {
		return a.fail("populating", err)
	}
	if in.Payload != nil {
		if err := in.Payload.Stage(a.DataPath()); err != nil {
			return a.fail("populating", err)
		}
		if err := a.reconcileLibraries(in.Libraries); err != nil {
			return a.fail("populating", err)
		}
	}

	a.state = StatePopulated
	return nil
}

// writeLoaderTree lays down the EFI directory skeleton, the template
// contents, and the generated configuration.
func (a *Assembler) writeLoaderTree(in PopulateInput) error {
	if in.EFITemplate != "" {
		if err := fsutil.CopyDir(in.EFITemplate, a.ESPPath()); err != nil {
			return fmt.Errorf("copying loader template: %w", err)
		}
	}
	for _, dir := range ocDirs {
		if err := os.MkdirAll(filepath.Join(a.ESPPath(), dir), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	xml, err := in.Document.MarshalXML()
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}
	configPath := filepath.Join(a.ESPPath(), "EFI", "OC", "config.plist")
	if err := os.WriteFile(configPath, xml, 0644); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}

	log.WithField("config", configPath).Debug("loader tree written")
	return nil
}

// stageKexts copies the bundles onto the EFI partition and patches the
// staged copies. Bundles stage in parallel; patches against one bundle
// run inside its own task so writes to the same executable never race.
// The first failure cancels the jobs that have not started yet.
func (a *Assembler) stageKexts(ctx context.Context, in PopulateInput) error {
	if len(in.Kexts) == 0 {
		return nil
	}

	patchesFor := make(map[string][]KextPatch)
	for _, p := range in.Patches {
		patchesFor[p.Kext] = append(patchesFor[p.Kext], p)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, stageWorkers())
	errs := make([]error, len(in.Kexts))
	var wg sync.WaitGroup

	for i, name := range in.Kexts {
		wg.Add(1)
		go func(idx int, bundle string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				errs[idx] = ctx.Err()
				return
			}
			if err := a.stageKext(in.KextsDir, bundle, patchesFor[bundle]); err != nil {
				errs[idx] = err
				cancel()
			}
		}(i, name)
	}
	wg.Wait()

	// Report the staging failure, not the cancellations it caused.
	var canceled error
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			canceled = err
		default:
			return err
		}
	}
	return canceled
}

func (a *Assembler) stageKext(kextsDir, bundle string, patches []KextPatch) error {
	src := filepath.Join(kextsDir, bundle)
	if _, err := kext.Load(src); err != nil {
		return fmt.Errorf("kext %s: %w", bundle, err)
	}

	dst := filepath.Join(a.ESPPath(), "EFI", "OC", "Kexts", bundle)
	if err := fsutil.CopyDir(src, dst); err != nil {
		return fmt.Errorf("staging %s: %w", bundle, err)
	}

	for _, p := range patches {
		target := filepath.Join(dst, p.Executable)
		res, err := binpatch.ApplyPatch(target, p.Patch)
		if err != nil {
			return fmt.Errorf("patching %s: %w", bundle, err)
		}

		entry := log.WithFields(logrus.Fields{
			"kext":  bundle,
			"patch": p.Patch.Name,
		})
		if res.Outcome == binpatch.OutcomeApplied {
			entry.WithField("offset", res.Offset).Info("patched staged kext")
		} else {
			entry.Warn("patch target not found in staged kext; skipped")
		}
	}
	return nil
}

// reconcileLibraries fixes up versioned library directories the payload
// expects but its source tree shipped under an older build number.
func (a *Assembler) reconcileLibraries(merges []LibraryMerge) error {
	for _, m := range merges {
		baseDir := filepath.Join(a.DataPath(), m.Dir)
		res, err := libmerge.Reconcile(baseDir, m.Expected)
		if err != nil {
			return fmt.Errorf("reconciling %s: %w", m.Expected, err)
		}

		entry := log.WithFields(logrus.Fields{
			"expected": m.Expected,
			"outcome":  string(res.Outcome),
		})
		switch res.Outcome {
		case libmerge.OutcomeMerged:
			entry.WithField("source", res.Source).Info("merged versioned library")
		case libmerge.OutcomeNotFound:
			entry.Warn("no donor for versioned library; payload left as shipped")
		default:
			entry.Debug("versioned library already present")
		}
	}
	return nil
}
